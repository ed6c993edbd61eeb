// Package conceptindex maps stemmed label token sequences to ontology
// concepts and answers the prefix and exact-match queries the concept matcher
// needs.
//
// An Index is built from an ontology.Model.  Each build produces an immutable
// snapshot that is published atomically, so readers never block and always
// see one complete build.  Builds themselves are serialised.
package conceptindex

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/KeyConcept/internal/domain/ontology"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// Separator joins stemmed tokens into label keys.
const Separator = " "

// LabelTokenizer turns a label into its stemmed tokens.  It must use the
// same pipeline as the text that is matched against the index.
type LabelTokenizer interface {
	TokenizeLabel(label string) ([]string, bool)
}

// Stats summarises an index build.
type Stats struct {
	Labels     int           `json:"labels"`
	Prefixes   int           `json:"prefixes"`
	Concepts   int           `json:"concepts"`
	Generation uint64        `json:"generation"`
	Duration   time.Duration `json:"duration"`
}

type snapshot struct {
	model    *ontology.Model
	labels   map[string][]ontology.ConceptID
	prefixes map[string]struct{}
	concepts int
}

func emptySnapshot(m *ontology.Model) *snapshot {
	return &snapshot{
		model:    m,
		labels:   map[string][]ontology.ConceptID{},
		prefixes: map[string]struct{}{},
	}
}

// Index is the shared concept index.  All methods are safe for concurrent
// use.
type Index struct {
	tokenizer LabelTokenizer
	logger    logging.Logger

	buildMu    sync.Mutex
	snap       atomic.Pointer[snapshot]
	policy     atomic.Pointer[ontology.ExclusionPolicy]
	generation atomic.Uint64
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the index logger.
func WithLogger(l logging.Logger) Option {
	return func(x *Index) { x.logger = l }
}

// New returns an empty Index.  tokenizer must not be nil.
func New(tokenizer LabelTokenizer, policy ontology.ExclusionPolicy, opts ...Option) *Index {
	if tokenizer == nil {
		panic("conceptindex: nil label tokenizer")
	}
	x := &Index{tokenizer: tokenizer}
	for _, opt := range opts {
		opt(x)
	}
	x.logger = logging.OrNop(x.logger).Named("conceptindex")
	x.snap.Store(emptySnapshot(nil))
	x.policy.Store(&policy)
	return x
}

// Build replaces the index content with the labels of model.  An empty or
// nil model leaves an empty index.  On cancellation the previous content is
// kept.
func (x *Index) Build(ctx context.Context, model *ontology.Model) (Stats, error) {
	x.buildMu.Lock()
	defer x.buildMu.Unlock()

	start := time.Now()
	policy := x.Policy()

	if model.Len() == 0 {
		x.snap.Store(emptySnapshot(model))
		gen := x.generation.Add(1)
		x.logger.Warn("ontology model is empty, index left empty", logging.Int64("generation", int64(gen)))
		return Stats{Generation: gen, Duration: time.Since(start)}, nil
	}

	s := emptySnapshot(model)
	indexed := make(map[ontology.ConceptID]struct{})
	add := func(c *ontology.Concept) {
		for _, label := range c.Labels {
			tokens, ok := x.tokenizer.TokenizeLabel(label)
			if !ok {
				x.logger.Debug("label yields no tokens", logging.String("concept", c.ID.String()), logging.String("label", label))
				continue
			}
			key := strings.Join(tokens, Separator)
			s.labels[key] = appendID(s.labels[key], c.ID)
			for n := 1; n < len(tokens); n++ {
				s.prefixes[strings.Join(tokens[:n], Separator)] = struct{}{}
			}
			indexed[c.ID] = struct{}{}
		}
	}

	for i, c := range model.Classes() {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return Stats{}, errors.Wrap(err, errors.ErrCodeIndexBuildFailed, "index build cancelled")
			}
		}
		if policy.Exclude(c) {
			continue
		}
		add(c)
	}
	for i, ind := range model.Individuals() {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return Stats{}, errors.Wrap(err, errors.ErrCodeIndexBuildFailed, "index build cancelled")
			}
		}
		if excludeIndividual(policy, model, ind) {
			continue
		}
		add(ind)
	}
	s.concepts = len(indexed)

	x.snap.Store(s)
	gen := x.generation.Add(1)
	stats := Stats{
		Labels:     len(s.labels),
		Prefixes:   len(s.prefixes),
		Concepts:   s.concepts,
		Generation: gen,
		Duration:   time.Since(start),
	}
	x.logger.Info("concept index built",
		logging.Int("labels", stats.Labels),
		logging.Int("prefixes", stats.Prefixes),
		logging.Int("concepts", stats.Concepts),
		logging.Int64("generation", int64(gen)),
		logging.Duration("took", stats.Duration))
	return stats, nil
}

func excludeIndividual(p ontology.ExclusionPolicy, m *ontology.Model, ind *ontology.Concept) bool {
	if p.Exclude(ind) {
		return true
	}
	for _, cid := range m.AllClassesOf(ind.ID) {
		c, _ := m.Get(cid)
		if p.Exclude(c) {
			return true
		}
	}
	return false
}

func appendID(ids []ontology.ConceptID, id ontology.ConceptID) []ontology.ConceptID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

// Reset empties the index and drops the model.
func (x *Index) Reset() {
	x.buildMu.Lock()
	defer x.buildMu.Unlock()
	x.snap.Store(emptySnapshot(nil))
	x.generation.Add(1)
}

// Generation counts builds and resets.  It changes whenever the content may
// have changed.
func (x *Index) Generation() uint64 { return x.generation.Load() }

// SetPolicy swaps the exclusion policy.  Query-time filtering and expansion
// observe it at once; the indexed labels change only with the next Build.
func (x *Index) SetPolicy(p ontology.ExclusionPolicy) {
	x.policy.Store(&p)
}

// Policy returns the current exclusion policy.
func (x *Index) Policy() ontology.ExclusionPolicy { return *x.policy.Load() }

// Model returns the model of the current build, nil when none.
func (x *Index) Model() *ontology.Model { return x.snap.Load().model }

// Concept returns a concept of the current model.
func (x *Index) Concept(id ontology.ConceptID) (*ontology.Concept, bool) {
	return x.snap.Load().model.Get(id)
}

// IsPrefix reports whether tokens are a proper prefix of some label key.
func (x *Index) IsPrefix(tokens []string) bool { return x.snap.Load().isPrefix(tokens) }

// HasExactMatch reports whether tokens form a label key.
func (x *Index) HasExactMatch(tokens []string) bool { return len(x.ExactMatches(tokens)) > 0 }

// ExactMatches returns the concepts labelled by tokens.  A miss returns nil.
func (x *Index) ExactMatches(tokens []string) []ontology.ConceptID {
	return x.snap.Load().exact(tokens)
}

func (s *snapshot) isPrefix(tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	_, ok := s.prefixes[strings.Join(tokens, Separator)]
	return ok
}

func (s *snapshot) exact(tokens []string) []ontology.ConceptID {
	if len(tokens) == 0 {
		return nil
	}
	ids := s.labels[strings.Join(tokens, Separator)]
	if len(ids) == 0 {
		return nil
	}
	return append([]ontology.ConceptID(nil), ids...)
}

// Stats describes the current content.
func (x *Index) Stats() Stats {
	s := x.snap.Load()
	return Stats{
		Labels:     len(s.labels),
		Prefixes:   len(s.prefixes),
		Concepts:   s.concepts,
		Generation: x.Generation(),
	}
}

// Dump writes the sorted label index followed by the sorted prefix index.
func (x *Index) Dump(w io.Writer) error {
	s := x.snap.Load()

	labels := make([]string, 0, len(s.labels))
	for k := range s.labels {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	prefixes := make([]string, 0, len(s.prefixes))
	for k := range s.prefixes {
		prefixes = append(prefixes, k)
	}
	sort.Strings(prefixes)

	var b strings.Builder
	b.WriteString("Concept index\n")
	for _, k := range labels {
		fmt.Fprintf(&b, "%s:\t%v\n", k, s.labels[k])
	}
	b.WriteString("\nPrefix index\n")
	for _, p := range prefixes {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
