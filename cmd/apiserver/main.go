// Command apiserver serves the concept annotation API over HTTP and gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/KeyConcept/internal/application/ontology_loader"
	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	kcgrpc "github.com/turtacn/KeyConcept/internal/interfaces/grpc"
	"github.com/turtacn/KeyConcept/internal/interfaces/grpc/services"
	httpserver "github.com/turtacn/KeyConcept/internal/interfaces/http"
	"github.com/turtacn/KeyConcept/internal/interfaces/http/handlers"
)

const defaultConfigPath = "configs/config.yaml"

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	grpcPort := flag.Int("grpc-port", 0, "gRPC server port (overrides config)")
	flag.Parse()

	if err := run(*configPath, *httpPort, *grpcPort); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, httpPort, grpcPort int) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, watcher, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if httpPort > 0 {
		cfg.Server.Port = httpPort
	}
	if grpcPort > 0 {
		cfg.GRPC.Port = grpcPort
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logging.SetDefault(logger)
	logger.Info("starting KeyConcept API server",
		logging.String("version", version),
		logging.Int("http_port", cfg.Server.Port),
		logging.Bool("grpc_enabled", cfg.GRPC.Enabled),
		logging.String("ontology_source", cfg.Ontology.Source))

	comp, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comp.close(context.Background(), logger)

	// Config changes only swap the exclusion policy; everything else needs
	// a restart.
	if watcher != nil {
		watcher.OnChange(func(next *config.Config) {
			logger.Info("configuration reloaded")
			comp.loader.ApplyConfig(next)
		})
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		AnnotationHandler: handlers.NewAnnotationHandler(comp.annotation, logger),
		IndexHandler:      handlers.NewIndexHandler(comp.index, comp.loader, logger),
		TermsHandler:      handlers.NewTermsHandler(comp.terms, logger),
		HealthHandler:     handlers.NewHealthHandler(version, comp.checkers...),
		Server:            cfg.Server,
		Auth:              cfg.Auth,
		Logger:            logger,
		MetricsCollector:  comp.collector,
		Metrics:           comp.metrics,
	})
	httpSrv := httpserver.NewServer(cfg.Server, router, logger)

	var grpcSrv *kcgrpc.Server
	if cfg.GRPC.Enabled {
		grpcSrv, err = kcgrpc.NewServer(cfg.GRPC,
			kcgrpc.WithLogger(logger),
			kcgrpc.WithMetrics(comp.metrics),
			kcgrpc.WithAuth(cfg.Auth))
		if err != nil {
			return err
		}
		grpcSrv.RegisterService(&services.AnnotationServiceDesc,
			services.NewAnnotationServiceServer(comp.annotation, comp.index, logger))
		grpcSrv.SetServing(false)
	}

	g, gctx := errgroup.WithContext(ctx)

	// The first load runs in the background; readiness probes and the gRPC
	// health status report NOT_SERVING until it succeeds.
	g.Go(func() error {
		stats, err := comp.loader.Load(gctx)
		if err != nil {
			logger.Error("initial ontology load failed", logging.Err(err))
			return err
		}
		logger.Info("concept index ready",
			logging.Int("concepts", stats.Concepts),
			logging.Int("labels", stats.Labels),
			logging.Int("prefixes", stats.Prefixes))
		if grpcSrv != nil {
			grpcSrv.SetServing(true)
		}
		if cfg.Ontology.Watch && cfg.Ontology.Source == ontology_loader.SourceFile {
			return comp.loader.Watch(gctx)
		}
		return nil
	})
	g.Go(httpSrv.Start)
	if grpcSrv != nil {
		g.Go(grpcSrv.Start)
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if grpcSrv != nil {
			if err := grpcSrv.Stop(shutdownCtx); err != nil {
				logger.Error("gRPC server shutdown error", logging.Err(err))
			}
		}
		return httpSrv.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("servers stopped")
	return nil
}

// loadConfig watches the file at path when it exists and falls back to the
// environment and defaults otherwise.
func loadConfig(path string) (*config.Config, *config.Watcher, error) {
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, err
		}
		fmt.Fprintf(os.Stderr, "apiserver: %s not found, using environment and defaults\n", path)
		cfg, err := config.LoadFromEnv()
		return cfg, nil, err
	}
	w, err := config.Watch(path, nil, func(err error) {
		logging.Default().Warn("configuration reload rejected", logging.Err(err))
	})
	if err != nil {
		return nil, nil, err
	}
	return w.Current(), w, nil
}
