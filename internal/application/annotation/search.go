package annotation

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/KeyConcept/internal/domain/ontology"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyConcept/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyConcept/internal/intelligence/concept_matcher"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// Search resolves the concepts named by a search term, expands them with
// their similar concepts and returns the documents annotated with any of
// them.  A term naming no concept yields an empty response.
func (s *serviceImpl) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	if req == nil || strings.TrimSpace(req.Term) == "" {
		return nil, errors.InvalidParam("search term is required")
	}
	if req.Limit < 0 || req.Offset < 0 {
		return nil, errors.InvalidParam("limit and offset must not be negative")
	}
	if s.searcher == nil {
		return nil, errors.Unavailable("document search is not configured")
	}
	start := time.Now()

	seed := s.resolve(req.Term, req.Privileged)
	resp := &SearchResponse{
		Term:     req.Term,
		Concepts: []ontology.ConceptID{},
		Labels:   []string{},
		Hits:     []opensearch.SearchHit{},
	}
	if len(seed) == 0 {
		return resp, nil
	}

	expanded := s.index.SimilarMatches(seed, s.cfg.MaxSimilarConcepts)
	resp.Concepts = expanded
	if labels := s.index.SimilarMatchLabels(seed, s.cfg.MaxSimilarConcepts); labels != nil {
		resp.Labels = labels
	}

	ids := make([]string, len(expanded))
	for i, id := range expanded {
		ids[i] = string(id)
	}
	result, err := s.searcher.SearchConcepts(ctx, opensearch.ConceptQuery{
		ConceptIDs: ids,
		Privileged: req.Privileged,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		s.logger.Error("document search failed", logging.String("term", req.Term), logging.Err(err))
		prometheus.RecordError(s.metrics, "annotation", string(errors.GetCode(err)))
		return nil, err
	}
	resp.Total = result.Total
	if result.Hits != nil {
		resp.Hits = result.Hits
	}
	prometheus.RecordAnnotation(s.metrics, "search", req.Privileged, 0, len(seed), time.Since(start))
	return resp, nil
}

// resolve returns the concepts recognised in term, each once.
func (s *serviceImpl) resolve(term string, privileged bool) []ontology.ConceptID {
	stream := s.analyzer.Analyze(term)
	matcher := concept_matcher.New(stream, s.index.Lookup(privileged), s.logger)
	seen := make(map[ontology.ConceptID]bool)
	var ids []ontology.ConceptID
	for _, m := range matcher.All() {
		for _, id := range m.Concepts {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Similar expands known concepts with their synonyms, children and parents.
func (s *serviceImpl) Similar(ctx context.Context, req *SimilarRequest) (*SimilarResult, error) {
	if req == nil || len(req.Concepts) == 0 {
		return nil, errors.InvalidParam("at least one concept is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTimeout, "similar cancelled")
	}
	for _, id := range req.Concepts {
		if _, ok := s.index.Concept(id); !ok {
			return nil, errors.New(errors.ErrCodeConceptNotFound, "concept not found").WithDetail(string(id))
		}
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.MaxSimilarConcepts
	}
	res := &SimilarResult{
		Concepts: s.index.SimilarMatches(req.Concepts, limit),
		Labels:   s.index.SimilarMatchLabels(req.Concepts, limit),
	}
	if res.Labels == nil {
		res.Labels = []string{}
	}
	return res, nil
}
