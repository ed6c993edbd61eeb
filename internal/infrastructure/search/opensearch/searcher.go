package opensearch

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

// ConceptQuery selects documents annotated with any of ConceptIDs.
type ConceptQuery struct {
	ConceptIDs []string
	// Privileged callers also see documents annotated in privileged mode.
	Privileged bool
	Limit      int
	Offset     int
}

type SearchHit struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Document AnnotatedDocument `json:"document"`
}

type SearchResult struct {
	Total  int64       `json:"total"`
	TookMs int64       `json:"took_ms"`
	Hits   []SearchHit `json:"hits"`
}

// Searcher queries annotated documents by concept.
type Searcher struct {
	client *Client
	logger logging.Logger
}

func NewSearcher(client *Client, log logging.Logger) *Searcher {
	return &Searcher{client: client, logger: logging.OrNop(log).Named("searcher")}
}

// SearchConcepts ranks documents by the number of requested concepts they
// carry.  An empty concept list yields an empty result without a request.
func (s *Searcher) SearchConcepts(ctx context.Context, q ConceptQuery) (*SearchResult, error) {
	if len(q.ConceptIDs) == 0 {
		return &SearchResult{}, nil
	}
	body, err := json.Marshal(buildConceptQuery(q))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal query")
	}

	resp, err := opensearchapi.SearchRequest{
		Index: []string{s.client.index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client.transport)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearchError, "search request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, responseError(resp, "search failed")
	}
	result, err := parseSearchResponse(resp)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("concept search",
		logging.Int("concepts", len(q.ConceptIDs)),
		logging.Int64("total", result.Total),
		logging.Int64("took_ms", result.TookMs))
	return result, nil
}

func buildConceptQuery(q ConceptQuery) map[string]interface{} {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	should := make([]interface{}, 0, len(q.ConceptIDs))
	for _, id := range q.ConceptIDs {
		should = append(should, map[string]interface{}{"term": map[string]interface{}{"concepts": id}})
	}
	boolQuery := map[string]interface{}{
		"should":               should,
		"minimum_should_match": 1,
	}
	if !q.Privileged {
		boolQuery["filter"] = []interface{}{
			map[string]interface{}{"term": map[string]interface{}{"privileged": false}},
		}
	}
	return map[string]interface{}{
		"from":  offset,
		"size":  limit,
		"query": map[string]interface{}{"bool": boolQuery},
		"sort": []interface{}{
			"_score",
			map[string]interface{}{"indexed_at": map[string]interface{}{"order": "desc"}},
		},
		"track_scores": true,
	}
}

func parseSearchResponse(resp *opensearchapi.Response) (*SearchResult, error) {
	var raw struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string            `json:"_id"`
				Score  float64           `json:"_score"`
				Source AnnotatedDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	result := &SearchResult{Total: raw.Hits.Total.Value, TookMs: raw.Took}
	for _, h := range raw.Hits.Hits {
		result.Hits = append(result.Hits, SearchHit{ID: h.ID, Score: h.Score, Document: h.Source})
	}
	return result, nil
}
