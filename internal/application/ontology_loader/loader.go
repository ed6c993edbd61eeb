// Package ontology_loader keeps the concept index in step with its ontology:
// it reads the configured source, rebuilds the index, rebuilds again when
// the ontology file changes on disk and swaps the exclusion policy when the
// configuration changes.
package ontology_loader

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/domain/conceptindex"
	"github.com/turtacn/KeyConcept/internal/domain/ontology"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/neo4j"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

const (
	SourceFile  = "file"
	SourceNeo4j = "neo4j"

	DefaultWatchDebounce = 500 * time.Millisecond
)

// PolicyFrom builds the exclusion policy described by cfg.
func PolicyFrom(cfg config.OntologyConfig) ontology.ExclusionPolicy {
	return ontology.ExclusionPolicy{
		IncludeNamespaces: cfg.IncludeNamespaces,
		ExcludeNamespaces: cfg.ExcludeNamespaces,
		IgnoreProperties:  cfg.IgnoreProperties,
	}
}

// NewSource returns the ontology source named by cfg.Source.  exec is only
// consulted for the neo4j source and may be nil otherwise.
func NewSource(cfg config.OntologyConfig, exec neo4j.Executor, logger logging.Logger) (ontology.Source, error) {
	switch cfg.Source {
	case "", SourceFile:
		if cfg.Path == "" {
			return nil, errors.New(errors.ErrCodeValidation, "ontology file path is required")
		}
		return ontology.NewFileSource(cfg.Path), nil
	case SourceNeo4j:
		if exec == nil {
			return nil, errors.New(errors.ErrCodeValidation, "neo4j source needs a driver")
		}
		return neo4j.NewOntologySource(exec, logger), nil
	default:
		return nil, errors.New(errors.ErrCodeOntologySourceUnknown, "unknown ontology source").WithDetail(cfg.Source)
	}
}

type Option func(*Loader)

// WithSourceName labels metrics and logs; defaults to "file".
func WithSourceName(name string) Option { return func(l *Loader) { l.sourceName = name } }

// WithWatchPath enables Watch on path.  Events are coalesced for debounce.
func WithWatchPath(path string, debounce time.Duration) Option {
	return func(l *Loader) {
		l.watchPath = path
		if debounce > 0 {
			l.debounce = debounce
		}
	}
}

func WithLogger(log logging.Logger) Option { return func(l *Loader) { l.logger = log } }

func WithMetrics(m *prometheus.AppMetrics) Option { return func(l *Loader) { l.metrics = m } }

// Loader is safe for concurrent use.  Loads are serialized.
type Loader struct {
	index      *conceptindex.Index
	source     ontology.Source
	sourceName string
	watchPath  string
	debounce   time.Duration
	logger     logging.Logger
	metrics    *prometheus.AppMetrics

	mu       sync.Mutex
	last     conceptindex.Stats
	loadedAt time.Time
	loaded   bool
}

func New(index *conceptindex.Index, source ontology.Source, opts ...Option) (*Loader, error) {
	if index == nil {
		return nil, errors.InvalidParam("concept index is required")
	}
	if source == nil {
		return nil, errors.InvalidParam("ontology source is required")
	}
	l := &Loader{index: index, source: source, sourceName: SourceFile, debounce: DefaultWatchDebounce}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrNop(l.logger).Named("ontology_loader")
	return l, nil
}

// FromConfig wires a Loader for cfg: its source, policy and file watch.
func FromConfig(cfg config.OntologyConfig, index *conceptindex.Index, exec neo4j.Executor, opts ...Option) (*Loader, error) {
	if index == nil {
		return nil, errors.InvalidParam("concept index is required")
	}
	source, err := NewSource(cfg, exec, nil)
	if err != nil {
		return nil, err
	}
	name := cfg.Source
	if name == "" {
		name = SourceFile
	}
	base := []Option{WithSourceName(name)}
	if cfg.Watch && name == SourceFile {
		base = append(base, WithWatchPath(cfg.Path, cfg.WatchDebounce))
	}
	index.SetPolicy(PolicyFrom(cfg))
	return New(index, source, append(base, opts...)...)
}

// Load reads the source and rebuilds the index.  On failure the index keeps
// serving its previous content.
func (l *Loader) Load(ctx context.Context) (conceptindex.Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	model, err := l.source.Load(ctx)
	if err != nil {
		prometheus.RecordIndexBuild(l.metrics, l.sourceName, 0, 0, 0, l.index.Generation(), time.Since(start), err)
		l.logger.Error("ontology load failed", logging.String("source", l.sourceName), logging.Err(err))
		if !errors.IsCode(err, errors.ErrCodeOntologyUnreadable) && !errors.IsCode(err, errors.ErrCodeOntologyInvalid) {
			err = errors.Wrap(err, errors.ErrCodeOntologyUnreadable, "load ontology")
		}
		return conceptindex.Stats{}, err
	}

	stats, err := l.index.Build(ctx, model)
	prometheus.RecordIndexBuild(l.metrics, l.sourceName, stats.Labels, stats.Prefixes, stats.Concepts, l.index.Generation(), time.Since(start), err)
	if err != nil {
		l.logger.Error("index build failed", logging.String("source", l.sourceName), logging.Err(err))
		return conceptindex.Stats{}, err
	}

	l.last, l.loadedAt, l.loaded = stats, time.Now(), true
	l.logger.Info("concept index rebuilt",
		logging.String("source", l.sourceName),
		logging.Int("concepts", stats.Concepts),
		logging.Int("labels", stats.Labels),
		logging.Int64("generation", int64(stats.Generation)),
		logging.Duration("took", time.Since(start)))
	return stats, nil
}

// Ready reports whether a load has succeeded.
func (l *Loader) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// LastStats returns the figures and time of the last successful load.
func (l *Loader) LastStats() (conceptindex.Stats, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.loadedAt
}

// SetPolicy swaps the exclusion policy without rebuilding.  Only query-time
// visibility observes it.
func (l *Loader) SetPolicy(p ontology.ExclusionPolicy) {
	l.index.SetPolicy(p)
	l.logger.Info("exclusion policy updated",
		logging.Strings("include_namespaces", p.IncludeNamespaces),
		logging.Strings("exclude_namespaces", p.ExcludeNamespaces),
		logging.Strings("ignore_properties", p.IgnoreProperties))
}

// ApplyConfig is the config watcher callback.
func (l *Loader) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	l.SetPolicy(PolicyFrom(cfg.Ontology))
}

// Watch rebuilds the index whenever the watched ontology file changes and
// blocks until ctx is done.  The parent directory is watched so editors
// that replace the file on save are noticed.
func (l *Loader) Watch(ctx context.Context) error {
	if l.watchPath == "" {
		return errors.New(errors.ErrCodeValidation, "no ontology file to watch")
	}
	target, err := filepath.Abs(l.watchPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "resolve ontology path")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "create file watcher")
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return errors.Wrap(err, errors.ErrCodeOntologyUnreadable, "watch ontology directory").WithDetail(filepath.Dir(target))
	}
	l.logger.Info("watching ontology file", logging.String("path", target), logging.Duration("debounce", l.debounce))

	timer := time.NewTimer(l.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(l.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("ontology watcher error", logging.Err(err))
		case <-timer.C:
			if _, err := l.Load(ctx); err != nil {
				l.logger.Warn("ontology reload failed, keeping previous index", logging.Err(err))
			}
		}
	}
}
