package main

import (
	"context"

	"github.com/turtacn/KeyConcept/internal/application/annotation"
	"github.com/turtacn/KeyConcept/internal/application/ontology_loader"
	"github.com/turtacn/KeyConcept/internal/application/termstats"
	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/domain/conceptindex"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/neo4j"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyConcept/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyConcept/internal/intelligence/textanalysis"
	"github.com/turtacn/KeyConcept/internal/interfaces/http/handlers"
)

// components holds everything the servers are built from.  Optional
// backends stay nil when their section is not configured.
type components struct {
	collector prometheus.MetricsCollector
	metrics   *prometheus.AppMetrics

	index      *conceptindex.Index
	loader     *ontology_loader.Loader
	annotation annotation.Service
	terms      termstats.Service

	graph    *neo4j.Driver
	db       *postgres.Connection
	cache    *redis.Client
	search   *opensearch.Client
	checkers []handlers.HealthChecker
}

func buildComponents(ctx context.Context, cfg *config.Config, logger logging.Logger) (*components, error) {
	c := &components{}
	if err := c.build(ctx, cfg, logger); err != nil {
		c.close(context.Background(), logger)
		return nil, err
	}
	return c, nil
}

func (c *components) build(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	var err error
	if cfg.Metrics.Enabled {
		c.collector, err = prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableProcessMetrics: cfg.Metrics.ProcessMetrics,
			EnableGoMetrics:      cfg.Metrics.GoMetrics,
		}, logger)
		if err != nil {
			return err
		}
		c.metrics = prometheus.NewAppMetrics(c.collector)
	}

	analyzer, err := textanalysis.FromConfig(cfg.Analysis, logger)
	if err != nil {
		return err
	}
	c.index = conceptindex.New(analyzer, ontology_loader.PolicyFrom(cfg.Ontology))

	var exec neo4j.Executor
	if cfg.Ontology.Source == ontology_loader.SourceNeo4j {
		if c.graph, err = neo4j.NewDriver(ctx, cfg.Neo4j, logger); err != nil {
			return err
		}
		exec = c.graph
		c.checkers = append(c.checkers, &neo4jHealthAdapter{driver: c.graph})
	}
	c.loader, err = ontology_loader.FromConfig(cfg.Ontology, c.index, exec,
		ontology_loader.WithLogger(logger),
		ontology_loader.WithMetrics(c.metrics))
	if err != nil {
		return err
	}
	c.checkers = append(c.checkers, &indexHealthAdapter{loader: c.loader})

	annCfg, err := annotation.ConfigFrom(cfg.Annotation, cfg.Analysis)
	if err != nil {
		return err
	}
	annOpts := []annotation.Option{annotation.WithLogger(logger), annotation.WithMetrics(c.metrics)}

	if cfg.Annotation.CacheEnabled && cfg.Redis.Addr != "" {
		if c.cache, err = redis.NewClient(cfg.Redis, logger); err != nil {
			return err
		}
		annOpts = append(annOpts, annotation.WithCache(redis.NewRedisCache(c.cache, logger,
			redis.WithPrefix(cfg.Redis.KeyPrefix),
			redis.WithDefaultTTL(cfg.Annotation.CacheTTL),
			redis.WithMetrics(c.metrics, "annotation"))))
		c.checkers = append(c.checkers, &redisHealthAdapter{client: c.cache})
	}

	if len(cfg.OpenSearch.Addresses) > 0 {
		if c.search, err = opensearch.NewClient(ctx, cfg.OpenSearch, logger); err != nil {
			return err
		}
		annOpts = append(annOpts, annotation.WithSearcher(opensearch.NewSearcher(c.search, logger)))
		c.checkers = append(c.checkers, &opensearchHealthAdapter{client: c.search})
	}

	if c.annotation, err = annotation.NewService(analyzer, c.index, annCfg, annOpts...); err != nil {
		return err
	}

	termOpts := []termstats.Option{
		termstats.WithExclusions(annCfg.Exclusions),
		termstats.WithLogger(logger),
		termstats.WithMetrics(c.metrics),
	}
	if cfg.Database.Enabled {
		if c.db, err = postgres.NewConnection(ctx, cfg.Database, logger); err != nil {
			return err
		}
		m, err := postgres.NewMigrator(c.db.DB(), cfg.Database.MigrationPath, logger)
		if err != nil {
			return err
		}
		if err := m.Up(); err != nil {
			return err
		}
		termOpts = append(termOpts, termstats.WithRepository(repositories.NewPostgresTermStatsRepo(c.db, logger, c.metrics)))
		c.checkers = append(c.checkers, &postgresHealthAdapter{conn: c.db})
	}
	c.terms, err = termstats.NewService(analyzer, c.index, termOpts...)
	return err
}

// close releases the backends in reverse order of creation.
func (c *components) close(ctx context.Context, logger logging.Logger) {
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			logger.Warn("closing database failed", logging.Err(err))
		}
	}
	if c.search != nil {
		if err := c.search.Close(); err != nil {
			logger.Warn("closing opensearch client failed", logging.Err(err))
		}
	}
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			logger.Warn("closing redis client failed", logging.Err(err))
		}
	}
	if c.graph != nil {
		if err := c.graph.Close(ctx); err != nil {
			logger.Warn("closing neo4j driver failed", logging.Err(err))
		}
	}
}
