package annotation

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/turtacn/KeyConcept/internal/domain/ontology"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyConcept/internal/intelligence/concept_matcher"
	"github.com/turtacn/KeyConcept/internal/intelligence/plaintext"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// annotated is the outcome of one pass over a text.
type annotated struct {
	annotations []Annotation
	tokens      int
	generation  uint64
}

func (s *serviceImpl) Extract(ctx context.Context, req *ExtractRequest) (*ExtractResult, error) {
	if req == nil {
		return nil, errors.InvalidParam("request is required")
	}
	start := time.Now()
	patterns, err := s.patterns(req.Exclusions)
	if err != nil {
		return nil, err
	}
	res, err := s.annotate(ctx, req.Text, req.Privileged, patterns)
	if err != nil {
		return nil, err
	}
	prometheus.RecordAnnotation(s.metrics, "extract", req.Privileged, res.tokens, len(res.annotations), time.Since(start))
	return &ExtractResult{
		Annotations: res.annotations,
		Tokens:      res.tokens,
		Generation:  res.generation,
	}, nil
}

// patterns returns the configured exclusions, or the compiled caller
// patterns when the caller supplied any.
func (s *serviceImpl) patterns(custom []string) ([]*regexp.Regexp, error) {
	if custom == nil {
		return s.cfg.Exclusions, nil
	}
	return plaintext.Compile(custom)
}

func validateText(text string) error {
	if len(text) > MaxTextSize {
		return errors.New(errors.ErrCodeValidation, "text too large").
			WithDetail("max_bytes=" + strconv.Itoa(MaxTextSize))
	}
	return nil
}

// annotate maps every concept span of the plain view back to text.
func (s *serviceImpl) annotate(ctx context.Context, text string, privileged bool, patterns []*regexp.Regexp) (*annotated, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTimeout, "annotation cancelled")
	}

	generation := s.index.Generation()
	model := s.index.Model()
	view := plaintext.NewView(text, patterns...)
	stream := s.analyzer.Analyze(view.Plain())
	matcher := concept_matcher.New(stream, s.index.Lookup(privileged), s.logger)

	out := &annotated{annotations: []Annotation{}, generation: generation}
	for n := 0; ; n++ {
		m, ok := matcher.Next()
		if !ok {
			break
		}
		if n%256 == 255 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeTimeout, "annotation cancelled")
			}
		}
		out.tokens += m.Tokens
		if !m.IsConcept() {
			continue
		}
		start, end := view.OriginalPosition(m.Start), view.OriginalEndPosition(m.End)
		out.annotations = append(out.annotations, Annotation{
			Start:    start,
			End:      end,
			Surface:  text[start:end],
			Key:      m.Text,
			Concepts: m.Concepts,
			Labels:   conceptLabels(model, m.Concepts),
		})
	}
	if err := stream.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAnalysisFailed, "analyze text")
	}

	s.logger.Debug("text annotated",
		logging.Int("bytes", len(text)),
		logging.Int("tokens", out.tokens),
		logging.Int("concepts", len(out.annotations)),
		logging.Bool("privileged", privileged))
	return out, nil
}

func conceptLabels(model *ontology.Model, ids []ontology.ConceptID) []string {
	if model == nil {
		return nil
	}
	seen := make(map[string]bool)
	var labels []string
	for _, id := range ids {
		for _, l := range model.Labels(id) {
			if !seen[l] {
				seen[l] = true
				labels = append(labels, l)
			}
		}
	}
	return labels
}

func (s *serviceImpl) Tokenize(ctx context.Context, text string) (*TokenizeResult, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTimeout, "tokenize cancelled")
	}
	start := time.Now()
	stream := s.analyzer.Analyze(text)
	res := &TokenizeResult{Tokens: []TokenInfo{}}
	for {
		tok, ok := stream.Next()
		if !ok {
			break
		}
		res.Tokens = append(res.Tokens, TokenInfo{
			Text:             tok.Text,
			Start:            tok.Start,
			End:              tok.End,
			AfterPunctuation: tok.AfterPunctuation,
			Keyword:          tok.Keyword,
		})
	}
	if err := stream.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAnalysisFailed, "analyze text")
	}
	prometheus.RecordAnnotation(s.metrics, "tokenize", false, len(res.Tokens), 0, time.Since(start))
	return res, nil
}

func (s *serviceImpl) PlainText(ctx context.Context, text string, exclusions []string) (*PlainTextResult, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTimeout, "plain text cancelled")
	}
	patterns, err := s.patterns(exclusions)
	if err != nil {
		return nil, err
	}
	view := plaintext.NewView(text, patterns...)
	bps := view.Breakpoints()
	if bps == nil {
		bps = []plaintext.Breakpoint{}
	}
	return &PlainTextResult{Plain: view.Plain(), Breakpoints: bps}, nil
}
