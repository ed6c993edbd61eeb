package cli

import (
	"context"

	"github.com/turtacn/KeyConcept/internal/application/annotation"
	"github.com/turtacn/KeyConcept/internal/application/ontology_loader"
	"github.com/turtacn/KeyConcept/internal/application/termstats"
	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/domain/conceptindex"
	domainTerms "github.com/turtacn/KeyConcept/internal/domain/termstats"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/neo4j"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/intelligence/textanalysis"
)

// Engine is the in-process analysis pipeline used by the commands.
type Engine struct {
	Analyzer   *textanalysis.Analyzer
	Index      *conceptindex.Index
	Loader     *ontology_loader.Loader
	Annotation annotation.Service

	annCfg annotation.Config
	logger logging.Logger
	graph  *neo4j.Driver
}

// NewEngine builds the analyzer, loads the configured ontology into a fresh
// index and wires the annotation service on top.
func NewEngine(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Engine, error) {
	logger = logging.OrNop(logger)
	analyzer, err := textanalysis.FromConfig(cfg.Analysis, logger)
	if err != nil {
		return nil, err
	}
	index := conceptindex.New(analyzer, ontology_loader.PolicyFrom(cfg.Ontology))

	e := &Engine{Analyzer: analyzer, Index: index, logger: logger}
	var exec neo4j.Executor
	if cfg.Ontology.Source == ontology_loader.SourceNeo4j {
		if e.graph, err = neo4j.NewDriver(ctx, cfg.Neo4j, logger); err != nil {
			return nil, err
		}
		exec = e.graph
	}

	// One-shot commands never watch the file.
	ontCfg := cfg.Ontology
	ontCfg.Watch = false
	if e.Loader, err = ontology_loader.FromConfig(ontCfg, index, exec, ontology_loader.WithLogger(logger)); err != nil {
		e.Close(ctx)
		return nil, err
	}
	stats, err := e.Loader.Load(ctx)
	if err != nil {
		e.Close(ctx)
		return nil, err
	}
	logger.Debug("ontology loaded",
		logging.Int("concepts", stats.Concepts),
		logging.Int("labels", stats.Labels),
		logging.Duration("duration", stats.Duration))

	if e.annCfg, err = annotation.ConfigFrom(cfg.Annotation, cfg.Analysis); err != nil {
		e.Close(ctx)
		return nil, err
	}
	if e.Annotation, err = annotation.NewService(analyzer, index, e.annCfg, annotation.WithLogger(logger)); err != nil {
		e.Close(ctx)
		return nil, err
	}
	return e, nil
}

// Terms returns a term statistics service, storing reports in repo when it
// is non-nil.
func (e *Engine) Terms(repo domainTerms.Repository) (termstats.Service, error) {
	opts := []termstats.Option{
		termstats.WithExclusions(e.annCfg.Exclusions),
		termstats.WithLogger(e.logger),
	}
	if repo != nil {
		opts = append(opts, termstats.WithRepository(repo))
	}
	return termstats.NewService(e.Analyzer, e.Index, opts...)
}

// Close releases the graph connection, if any.
func (e *Engine) Close(ctx context.Context) {
	if e.graph != nil {
		if err := e.graph.Close(ctx); err != nil {
			e.logger.Warn("closing neo4j driver failed", logging.Err(err))
		}
		e.graph = nil
	}
}
