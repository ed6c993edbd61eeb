package annotation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyConcept/internal/intelligence/stemmer"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// XWiki 2.1 escapes with a tilde inside link parameters.
var titleEscaper = strings.NewReplacer(`~`, `~~`, `"`, `~"`)

// Enhance rewrites every concept span of the text into a link to the search
// page listing similar concepts.  Text outside the spans is copied unchanged,
// including markup the plain view removed.
func (s *serviceImpl) Enhance(ctx context.Context, req *EnhanceRequest) (*EnhanceResult, error) {
	if req == nil {
		return nil, errors.InvalidParam("request is required")
	}
	start := time.Now()
	patterns, err := s.patterns(req.Exclusions)
	if err != nil {
		return nil, err
	}

	generation := s.index.Generation()
	key := cacheKey(req, generation)
	if s.cache != nil {
		var cached EnhanceResult
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			cached.Cached = true
			return &cached, nil
		}
		if !errors.IsCode(err, errors.ErrCodeNotFound) {
			s.logger.Warn("enhance cache read failed", logging.Err(err))
		}
	}

	res, err := s.annotate(ctx, req.Text, req.Privileged, patterns)
	if err != nil {
		return nil, err
	}
	text, links := s.render(req.Text, res.annotations)
	out := &EnhanceResult{
		Text:        text,
		Links:       links,
		Annotations: res.annotations,
		Tokens:      res.tokens,
		Generation:  res.generation,
	}

	if s.cache != nil {
		if res.generation != generation {
			key = cacheKey(req, res.generation)
		}
		if err := s.cache.Set(ctx, key, out, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("enhance cache store failed", logging.Err(err))
		}
	}
	prometheus.RecordAnnotation(s.metrics, "enhance", req.Privileged, res.tokens, len(res.annotations), time.Since(start))
	return out, nil
}

// cacheKey hashes everything the enhanced text depends on.
func cacheKey(req *EnhanceRequest, generation uint64) string {
	h := sha256.New()
	h.Write([]byte(req.Text))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(req.Privileged)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatUint(generation, 10)))
	if req.Exclusions != nil {
		h.Write([]byte{0, 'x'})
		for _, p := range req.Exclusions {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (s *serviceImpl) render(text string, anns []Annotation) (string, int) {
	var b strings.Builder
	b.Grow(len(text) + 96*len(anns))
	last, links := 0, 0
	for _, a := range anns {
		if a.Start < last {
			continue
		}
		b.WriteString(text[last:a.Start])
		if link, ok := s.link(a); ok {
			b.WriteString(link)
			links++
		} else {
			b.WriteString(a.Surface)
		}
		last = a.End
	}
	b.WriteString(text[last:])
	return b.String(), links
}

// link renders
//
//	[[surface>>searchURL?text=a+b||class="similarconcept" title="Ähnliche Begriffe: a, b"]]
//
// The title leaves out labels that stem to the matched key.  It returns false
// when the concepts have no similar labels.
func (s *serviceImpl) link(a Annotation) (string, bool) {
	labels := s.index.SimilarMatchLabels(a.Concepts, s.cfg.MaxSimilarConcepts)
	if len(labels) == 0 {
		return "", false
	}

	var shown []string
	for _, l := range labels {
		if s.labelKey(l) != a.Key {
			shown = append(shown, l)
		}
	}
	title := s.cfg.TitlePrefix
	if len(shown) > 0 {
		title += " " + strings.Join(shown, ", ")
	}

	sep := "?"
	if strings.Contains(s.cfg.SearchURL, "?") {
		sep = "&"
	}
	target := s.cfg.SearchURL + sep + "text=" + url.QueryEscape(strings.Join(labels, " "))

	var b strings.Builder
	b.WriteString("[[")
	b.WriteString(a.Surface)
	b.WriteString(">>")
	b.WriteString(target)
	b.WriteString(`||class="`)
	b.WriteString(s.cfg.LinkClass)
	b.WriteString(`" title="`)
	b.WriteString(titleEscaper.Replace(title))
	b.WriteString(`"]]`)
	return b.String(), true
}

// labelKey stems every word of a label the way matched keys are stemmed.
func (s *serviceImpl) labelKey(label string) string {
	lower := cases.Lower(language.German).String(label)
	return stemmer.MultiWord{Inner: s.analyzer.Stemmer()}.Stem(lower)
}
