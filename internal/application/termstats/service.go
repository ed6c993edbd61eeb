// Package termstats computes term statistics over a document corpus: how
// often every word that is not part of a recognised concept occurs, in how
// many documents, and how it is spelled.  The figures point editors at
// vocabulary the ontology is missing.
package termstats

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/KeyConcept/internal/application/batch"
	"github.com/turtacn/KeyConcept/internal/domain/conceptindex"
	domainTerms "github.com/turtacn/KeyConcept/internal/domain/termstats"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyConcept/internal/intelligence/concept_matcher"
	"github.com/turtacn/KeyConcept/internal/intelligence/plaintext"
	"github.com/turtacn/KeyConcept/internal/intelligence/textanalysis"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// ComputeRequest names a corpus and its documents (name → wiki text).
type ComputeRequest struct {
	Name       string            `json:"name"`
	Documents  map[string]string `json:"documents"`
	Privileged bool              `json:"privileged"`
	// Exclusions replaces the configured markup profile when non-nil.
	Exclusions []string `json:"exclusions,omitempty"`
	// Save stores the report in the repository.
	Save bool `json:"save"`
}

type Service interface {
	Compute(ctx context.Context, req *ComputeRequest) (*domainTerms.Report, error)
	Get(ctx context.Context, id uuid.UUID) (*domainTerms.Report, error)
	Latest(ctx context.Context, name string) (*domainTerms.Report, error)
	List(ctx context.Context, limit, offset int) ([]domainTerms.Summary, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Option func(*serviceImpl)

func WithRepository(r domainTerms.Repository) Option { return func(s *serviceImpl) { s.repo = r } }

// WithExclusions sets the markup removed before analysis.  Defaults to the
// XWiki 2.1 profile.
func WithExclusions(p []*regexp.Regexp) Option { return func(s *serviceImpl) { s.exclusions = p } }

// WithConcurrency bounds the number of documents analyzed at once.
func WithConcurrency(n int) Option { return func(s *serviceImpl) { s.concurrency = n } }

func WithLogger(l logging.Logger) Option { return func(s *serviceImpl) { s.logger = l } }

func WithMetrics(m *prometheus.AppMetrics) Option { return func(s *serviceImpl) { s.metrics = m } }

type serviceImpl struct {
	analyzer    *textanalysis.Analyzer
	index       *conceptindex.Index
	repo        domainTerms.Repository
	exclusions  []*regexp.Regexp
	concurrency int
	logger      logging.Logger
	metrics     *prometheus.AppMetrics
}

func NewService(analyzer *textanalysis.Analyzer, index *conceptindex.Index, opts ...Option) (Service, error) {
	if analyzer == nil {
		return nil, errors.InvalidParam("analyzer is required")
	}
	if index == nil {
		return nil, errors.InvalidParam("concept index is required")
	}
	s := &serviceImpl{analyzer: analyzer, index: index, exclusions: plaintext.DefaultExclusions()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("termstats")
	return s, nil
}

// document is one corpus entry handed to the batch processor.
type document struct {
	name string
	text string
}

// counts holds the figures of a single document.
type counts struct {
	tokens    int
	tf        map[string]int
	spellings map[string]map[string]int
}

func (s *serviceImpl) Compute(ctx context.Context, req *ComputeRequest) (*domainTerms.Report, error) {
	if req == nil || strings.TrimSpace(req.Name) == "" {
		return nil, errors.InvalidParam("corpus name is required")
	}
	if req.Save && s.repo == nil {
		return nil, errors.Unavailable("term statistics store is not configured")
	}
	patterns := s.exclusions
	if req.Exclusions != nil {
		var err error
		if patterns, err = plaintext.Compile(req.Exclusions); err != nil {
			return nil, err
		}
	}
	start := time.Now()

	docs := make([]document, 0, len(req.Documents))
	for name, text := range req.Documents {
		docs = append(docs, document{name: name, text: text})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].name < docs[j].name })

	lookup := s.index.Lookup(req.Privileged)
	proc := batch.NewProcessor[document, *counts](
		batch.WithConcurrency(s.concurrency),
		batch.WithLogger(s.logger),
	)
	defer proc.Shutdown(context.Background())

	res, err := proc.Process(ctx, docs, func(ctx context.Context, d document) (*counts, error) {
		return s.count(ctx, d, lookup, patterns)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "term statistics")
	}
	for _, item := range res.Items {
		if item.Error == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(ctxErr, errors.ErrCodeTimeout, "term statistics cancelled")
		}
		return nil, errors.Wrap(item.Error, errors.ErrCodeAnalysisFailed, "analyze document").WithDetail(docs[item.Index].name)
	}

	perDoc := make([]*counts, len(res.Items))
	for i, item := range res.Items {
		perDoc[i] = item.Result
	}
	report := merge(req.Name, perDoc)

	s.logger.Info("term statistics computed",
		logging.String("name", req.Name),
		logging.Int("documents", report.Documents),
		logging.Int("tokens", report.Tokens),
		logging.Int("terms", report.Len()),
		logging.Duration("took", time.Since(start)))
	prometheus.RecordAnnotation(s.metrics, "terms", req.Privileged, report.Tokens, 0, time.Since(start))

	if req.Save {
		if err := s.repo.Save(ctx, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// count tallies the non-concept tokens of one document.  The spelling of a
// token is its surface form in the plain view.
func (s *serviceImpl) count(ctx context.Context, d document, lookup concept_matcher.Lookup, patterns []*regexp.Regexp) (*counts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	view := plaintext.NewView(d.text, patterns...)
	plain := view.Plain()
	stream := s.analyzer.Analyze(plain)
	matcher := concept_matcher.New(stream, lookup, s.logger)

	c := &counts{tf: make(map[string]int), spellings: make(map[string]map[string]int)}
	for n := 0; ; n++ {
		m, ok := matcher.Next()
		if !ok {
			break
		}
		if n%256 == 255 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if m.IsConcept() {
			continue
		}
		c.tokens++
		c.tf[m.Text]++
		sp := c.spellings[m.Text]
		if sp == nil {
			sp = make(map[string]int)
			c.spellings[m.Text] = sp
		}
		sp[plain[m.Start:m.End]]++
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// merge combines the document figures into a report:
//
//	tf-idf = TF/(tokens+1) · ln(documents/DF)
//	avg-tf = TF/DF
func merge(name string, docs []*counts) *domainTerms.Report {
	tf := make(map[string]int)
	df := make(map[string]int)
	spellings := make(map[string]map[string]int)
	tokens := 0
	for _, c := range docs {
		tokens += c.tokens
		for term, n := range c.tf {
			tf[term] += n
			df[term]++
		}
		for term, sp := range c.spellings {
			all := spellings[term]
			if all == nil {
				all = make(map[string]int)
				spellings[term] = all
			}
			for spelling, n := range sp {
				all[spelling] += n
			}
		}
	}

	terms := make([]domainTerms.Term, 0, len(tf))
	for term, n := range tf {
		idf := float64(len(docs)) / float64(df[term])
		terms = append(terms, domainTerms.Term{
			Term:      term,
			TF:        n,
			DF:        df[term],
			TFIDF:     float64(n) / float64(tokens+1) * math.Log(idf),
			AverageTF: float64(n) / float64(df[term]),
			Variants:  variants(spellings[term]),
		})
	}
	return domainTerms.NewReport(name, len(docs), tokens, terms)
}

func variants(sp map[string]int) []domainTerms.Variant {
	out := make([]domainTerms.Variant, 0, len(sp))
	for spelling, n := range sp {
		out = append(out, domainTerms.Variant{Spelling: spelling, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Spelling < out[j].Spelling
	})
	return out
}

func (s *serviceImpl) store() (domainTerms.Repository, error) {
	if s.repo == nil {
		return nil, errors.Unavailable("term statistics store is not configured")
	}
	return s.repo, nil
}

func (s *serviceImpl) Get(ctx context.Context, id uuid.UUID) (*domainTerms.Report, error) {
	repo, err := s.store()
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, id)
}

func (s *serviceImpl) Latest(ctx context.Context, name string) (*domainTerms.Report, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.InvalidParam("corpus name is required")
	}
	repo, err := s.store()
	if err != nil {
		return nil, err
	}
	return repo.Latest(ctx, name)
}

func (s *serviceImpl) List(ctx context.Context, limit, offset int) ([]domainTerms.Summary, error) {
	if limit < 0 || offset < 0 {
		return nil, errors.InvalidParam("limit and offset must not be negative")
	}
	repo, err := s.store()
	if err != nil {
		return nil, err
	}
	return repo.List(ctx, limit, offset)
}

func (s *serviceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	repo, err := s.store()
	if err != nil {
		return err
	}
	return repo.Delete(ctx, id)
}
