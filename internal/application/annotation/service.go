// Package annotation orchestrates concept recognition over wiki pages: it
// strips markup into a plain view, runs the analyzer and the concept matcher
// over the plain text and maps every concept span back to the page.  On top
// of that it renders link markup for recognised concepts and looks up
// annotated documents carrying related concepts.
package annotation

import (
	"context"
	"regexp"
	"time"

	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/domain/conceptindex"
	"github.com/turtacn/KeyConcept/internal/domain/ontology"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyConcept/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyConcept/internal/intelligence/plaintext"
	"github.com/turtacn/KeyConcept/internal/intelligence/textanalysis"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// ============================================================================
// Constants
// ============================================================================

const (
	DefaultCacheTTL = 30 * time.Minute

	// MaxTextSize bounds a single request text.
	MaxTextSize = 8 << 20

	cacheKeyPrefix = "annotation:enhance:"
)

// ============================================================================
// DTOs
// ============================================================================

// Annotation is one recognised concept span in original text offsets.
type Annotation struct {
	Start    int                  `json:"start"`
	End      int                  `json:"end"`
	Surface  string               `json:"surface"`
	Key      string               `json:"key"`
	Concepts []ontology.ConceptID `json:"concepts"`
	Labels   []string             `json:"labels,omitempty"`
}

type ExtractRequest struct {
	Text       string `json:"text"`
	Privileged bool   `json:"privileged"`
	// Exclusions replaces the configured markup profile when non-nil.
	Exclusions []string `json:"exclusions,omitempty"`
}

type ExtractResult struct {
	Annotations []Annotation `json:"annotations"`
	Tokens      int          `json:"tokens"`
	Generation  uint64       `json:"generation"`
}

type EnhanceRequest struct {
	Text       string   `json:"text"`
	Privileged bool     `json:"privileged"`
	Exclusions []string `json:"exclusions,omitempty"`
}

type EnhanceResult struct {
	Text        string       `json:"text"`
	Links       int          `json:"links"`
	Annotations []Annotation `json:"annotations"`
	Tokens      int          `json:"tokens"`
	Generation  uint64       `json:"generation"`
	Cached      bool         `json:"cached"`
}

type SearchRequest struct {
	Term       string `json:"term"`
	Privileged bool   `json:"privileged"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}

type SearchResponse struct {
	Term     string                 `json:"term"`
	Concepts []ontology.ConceptID   `json:"concepts"`
	Labels   []string               `json:"labels"`
	Total    int64                  `json:"total"`
	Hits     []opensearch.SearchHit `json:"hits"`
}

type SimilarRequest struct {
	Concepts []ontology.ConceptID `json:"concepts"`
	Limit    int                  `json:"limit"`
}

type SimilarResult struct {
	Concepts []ontology.ConceptID `json:"concepts"`
	Labels   []string             `json:"labels"`
}

// TokenInfo is an analyzed token as returned to callers.
type TokenInfo struct {
	Text             string `json:"text"`
	Start            int    `json:"start"`
	End              int    `json:"end"`
	AfterPunctuation bool   `json:"after_punctuation,omitempty"`
	Keyword          bool   `json:"keyword,omitempty"`
}

type TokenizeResult struct {
	Tokens []TokenInfo `json:"tokens"`
}

type PlainTextResult struct {
	Plain       string                 `json:"plain"`
	Breakpoints []plaintext.Breakpoint `json:"breakpoints"`
}

// ============================================================================
// Collaborators
// ============================================================================

// Cache stores enhancement results.  redis.Cache implements it.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DocumentSearcher finds indexed documents by concept.
type DocumentSearcher interface {
	SearchConcepts(ctx context.Context, q opensearch.ConceptQuery) (*opensearch.SearchResult, error)
}

// Config carries the rendering and caching parameters.
type Config struct {
	MaxSimilarConcepts int
	SearchURL          string
	LinkClass          string
	TitlePrefix        string
	CacheTTL           time.Duration
	Exclusions         []*regexp.Regexp
}

// ConfigFrom resolves the configured exclusion profile and copies the
// annotation settings.
func ConfigFrom(ann config.AnnotationConfig, analysis config.AnalysisConfig) (Config, error) {
	patterns, err := plaintext.Profile(analysis.ExclusionProfile)
	if err != nil {
		return Config{}, err
	}
	return Config{
		MaxSimilarConcepts: ann.MaxSimilarConcepts,
		SearchURL:          ann.SearchURL,
		LinkClass:          ann.LinkClass,
		TitlePrefix:        ann.TitlePrefix,
		CacheTTL:           ann.CacheTTL,
		Exclusions:         patterns,
	}, nil
}

func (c *Config) applyDefaults() {
	if c.MaxSimilarConcepts <= 0 {
		c.MaxSimilarConcepts = config.DefaultMaxSimilarConcepts
	}
	if c.SearchURL == "" {
		c.SearchURL = config.DefaultSearchURL
	}
	if c.LinkClass == "" {
		c.LinkClass = config.DefaultLinkClass
	}
	if c.TitlePrefix == "" {
		c.TitlePrefix = config.DefaultTitlePrefix
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
}

// ============================================================================
// Service
// ============================================================================

type Service interface {
	Extract(ctx context.Context, req *ExtractRequest) (*ExtractResult, error)
	Enhance(ctx context.Context, req *EnhanceRequest) (*EnhanceResult, error)
	Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error)
	Similar(ctx context.Context, req *SimilarRequest) (*SimilarResult, error)
	Tokenize(ctx context.Context, text string) (*TokenizeResult, error)
	PlainText(ctx context.Context, text string, exclusions []string) (*PlainTextResult, error)
}

type Option func(*serviceImpl)

func WithCache(c Cache) Option { return func(s *serviceImpl) { s.cache = c } }

func WithSearcher(ds DocumentSearcher) Option { return func(s *serviceImpl) { s.searcher = ds } }

func WithLogger(l logging.Logger) Option { return func(s *serviceImpl) { s.logger = l } }

func WithMetrics(m *prometheus.AppMetrics) Option { return func(s *serviceImpl) { s.metrics = m } }

type serviceImpl struct {
	analyzer *textanalysis.Analyzer
	index    *conceptindex.Index
	cfg      Config
	cache    Cache
	searcher DocumentSearcher
	logger   logging.Logger
	metrics  *prometheus.AppMetrics
}

// NewService wires the annotation pipeline.  Cache and searcher are optional;
// without a searcher Search fails with a service-unavailable error.
func NewService(analyzer *textanalysis.Analyzer, index *conceptindex.Index, cfg Config, opts ...Option) (Service, error) {
	if analyzer == nil {
		return nil, errors.InvalidParam("analyzer is required")
	}
	if index == nil {
		return nil, errors.InvalidParam("concept index is required")
	}
	cfg.applyDefaults()
	s := &serviceImpl{analyzer: analyzer, index: index, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("annotation")
	return s, nil
}
