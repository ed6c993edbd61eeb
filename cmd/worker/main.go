// Command worker consumes annotation jobs from Kafka.  Each job names a
// document in MinIO; the worker writes an enhanced copy next to it, indexes
// its concepts in OpenSearch and publishes the outcome.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/KeyConcept/internal/application/annotation"
	"github.com/turtacn/KeyConcept/internal/application/jobs"
	"github.com/turtacn/KeyConcept/internal/application/ontology_loader"
	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/domain/conceptindex"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/neo4j"
	"github.com/turtacn/KeyConcept/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyConcept/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyConcept/internal/infrastructure/storage/minio"
	"github.com/turtacn/KeyConcept/internal/intelligence/textanalysis"
	httpserver "github.com/turtacn/KeyConcept/internal/interfaces/http"
	"github.com/turtacn/KeyConcept/internal/interfaces/http/handlers"
)

const (
	defaultWorkerConfigPath = "configs/config.yaml"
	defaultHealthPort       = 8081
)

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", defaultWorkerConfigPath, "path to configuration file")
	workers := flag.Int("workers", 0, "number of concurrent consumers (overrides worker.concurrency)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port of the health and metrics endpoint")
	flag.Parse()

	if err := run(*configPath, *workers, *healthPort); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, workers, healthPort int) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Worker.Concurrency = workers
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting KeyConcept worker",
		logging.String("version", version),
		logging.Int("consumers", cfg.Worker.Concurrency),
		logging.String("job_topic", cfg.Kafka.JobTopic))

	w := &worker{cfg: cfg, logger: logger}
	defer w.close()
	if err := w.init(ctx); err != nil {
		return err
	}

	healthCfg := cfg.Server
	healthCfg.Port = healthPort
	healthSrv := httpserver.NewServer(healthCfg, httpserver.NewRouter(httpserver.RouterConfig{
		HealthHandler:    handlers.NewHealthHandler(version, w.checkers...),
		Server:           healthCfg,
		Logger:           logger,
		MetricsCollector: w.collector,
		Metrics:          w.metrics,
	}), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(healthSrv.Start)
	g.Go(func() error {
		// Jobs need the concept index; consumers start after the first load.
		if _, err := w.loader.Load(gctx); err != nil {
			return err
		}
		if err := w.startConsumers(gctx); err != nil {
			return err
		}
		if cfg.Ontology.Watch && cfg.Ontology.Source == ontology_loader.SourceFile {
			return w.loader.Watch(gctx)
		}
		<-gctx.Done()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down worker")
		w.stopConsumers()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return healthSrv.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("worker stopped")
	return nil
}

// worker owns the clients of one worker process.
type worker struct {
	cfg    *config.Config
	logger logging.Logger

	collector prometheus.MetricsCollector
	metrics   *prometheus.AppMetrics

	loader    *ontology_loader.Loader
	handler   *jobs.Handler
	graph     *neo4j.Driver
	storage   *minio.Client
	search    *opensearch.Client
	producer  *kafka.Producer
	checkers  []handlers.HealthChecker

	mu        sync.Mutex
	consumers []*kafka.Consumer
}

func (w *worker) init(ctx context.Context) error {
	cfg, logger := w.cfg, w.logger
	var err error

	if cfg.Metrics.Enabled {
		w.collector, err = prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			Subsystem:            "worker",
			EnableProcessMetrics: cfg.Metrics.ProcessMetrics,
			EnableGoMetrics:      cfg.Metrics.GoMetrics,
		}, logger)
		if err != nil {
			return err
		}
		w.metrics = prometheus.NewAppMetrics(w.collector)
	}

	analyzer, err := textanalysis.FromConfig(cfg.Analysis, logger)
	if err != nil {
		return err
	}
	index := conceptindex.New(analyzer, ontology_loader.PolicyFrom(cfg.Ontology))
	var exec neo4j.Executor
	if cfg.Ontology.Source == ontology_loader.SourceNeo4j {
		if w.graph, err = neo4j.NewDriver(ctx, cfg.Neo4j, logger); err != nil {
			return fmt.Errorf("neo4j: %w", err)
		}
		exec = w.graph
	}
	w.loader, err = ontology_loader.FromConfig(cfg.Ontology, index, exec,
		ontology_loader.WithLogger(logger),
		ontology_loader.WithMetrics(w.metrics))
	if err != nil {
		return err
	}
	w.checkers = append(w.checkers, handlers.CheckFunc("concept_index", func(context.Context) error {
		if !w.loader.Ready() {
			return fmt.Errorf("concept index not loaded")
		}
		return nil
	}))

	annCfg, err := annotation.ConfigFrom(cfg.Annotation, cfg.Analysis)
	if err != nil {
		return err
	}
	svc, err := annotation.NewService(analyzer, index, annCfg,
		annotation.WithLogger(logger),
		annotation.WithMetrics(w.metrics))
	if err != nil {
		return err
	}

	if w.storage, err = minio.NewClient(ctx, cfg.MinIO, logger); err != nil {
		return fmt.Errorf("minio: %w", err)
	}
	w.checkers = append(w.checkers, handlers.CheckFunc("minio", func(ctx context.Context) error {
		_, err := w.storage.HealthCheck(ctx)
		return err
	}))

	opts := []jobs.Option{
		jobs.WithOutputSuffix(cfg.Worker.OutputSuffix),
		jobs.WithTimeout(cfg.Worker.JobTimeout),
		jobs.WithLogger(logger),
		jobs.WithMetrics(w.metrics),
	}
	if len(cfg.OpenSearch.Addresses) > 0 {
		if w.search, err = opensearch.NewClient(ctx, cfg.OpenSearch, logger); err != nil {
			return fmt.Errorf("opensearch: %w", err)
		}
		indexer := opensearch.NewIndexer(w.search, "", logger)
		if err := indexer.EnsureIndex(ctx); err != nil {
			return err
		}
		opts = append(opts, jobs.WithIndexer(indexer))
		w.checkers = append(w.checkers, handlers.CheckFunc("opensearch", w.search.Ping))
	}

	w.ensureTopics(ctx)
	if w.producer, err = kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger); err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	opts = append(opts, jobs.WithResults(w.producer, cfg.Kafka.ResultTopic))

	w.handler, err = jobs.NewHandler(svc, minio.NewDocumentRepository(w.storage, logger), opts...)
	return err
}

// ensureTopics creates missing topics.  Clusters that forbid topic creation
// are expected to provide them, so failures are only logged.
func (w *worker) ensureTopics(ctx context.Context) {
	tm, err := kafka.NewTopicManager(ctx, w.cfg.Kafka.Brokers, w.logger)
	if err != nil {
		w.logger.Warn("kafka topic manager unavailable", logging.Err(err))
		return
	}
	defer tm.Close()
	if err := tm.EnsureTopics(ctx, kafka.DefaultTopics(w.cfg.Kafka)); err != nil {
		w.logger.Warn("creating kafka topics failed", logging.Err(err))
	}
}

// startConsumers joins the consumer group worker.concurrency times; the
// group spreads the job topic's partitions over them.
func (w *worker) startConsumers(ctx context.Context) error {
	for i := 0; i < w.cfg.Worker.Concurrency; i++ {
		c, err := kafka.NewConsumer(kafka.ConsumerConfigFrom(w.cfg.Kafka, w.cfg.Worker, w.cfg.Kafka.JobTopic), w.logger)
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		c.Subscribe(w.cfg.Kafka.JobTopic, w.handler.Handle)
		w.mu.Lock()
		w.consumers = append(w.consumers, c)
		w.mu.Unlock()
		if err := c.Start(ctx); err != nil {
			return err
		}
	}
	w.logger.Info("consumers started", logging.Int("count", w.cfg.Worker.Concurrency))
	return nil
}

func (w *worker) stopConsumers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.consumers) == 0 {
		return
	}
	for _, c := range w.consumers {
		if err := c.Close(); err != nil {
			w.logger.Warn("closing consumer failed", logging.Err(err))
		}
	}
	consumed, processed, failed, deadLettered := int64(0), int64(0), int64(0), int64(0)
	for _, c := range w.consumers {
		c1, p1, f1, d1 := c.Stats()
		consumed, processed, failed, deadLettered = consumed+c1, processed+p1, failed+f1, deadLettered+d1
	}
	w.logger.Info("consumers stopped",
		logging.Int64("consumed", consumed),
		logging.Int64("processed", processed),
		logging.Int64("failed", failed),
		logging.Int64("dead_lettered", deadLettered))
	w.consumers = nil
}

func (w *worker) close() {
	w.stopConsumers()
	if w.producer != nil {
		if err := w.producer.Close(); err != nil {
			w.logger.Warn("closing producer failed", logging.Err(err))
		}
	}
	if w.search != nil {
		_ = w.search.Close()
	}
	if w.storage != nil {
		_ = w.storage.Close()
	}
	if w.graph != nil {
		if err := w.graph.Close(context.Background()); err != nil {
			w.logger.Warn("closing neo4j driver failed", logging.Err(err))
		}
	}
}
