package client

import (
	"context"
	"net/http"
	"time"
)

type IndexStats struct {
	Labels     int           `json:"labels"`
	Prefixes   int           `json:"prefixes"`
	Concepts   int           `json:"concepts"`
	Generation uint64        `json:"generation"`
	Duration   time.Duration `json:"duration"`
}

type IndexStatus struct {
	Ready    bool       `json:"ready"`
	Stats    IndexStats `json:"stats"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
}

// IndexClient wraps the concept index endpoints.  Reload and Dump need a
// privileged API key.
type IndexClient struct {
	client *Client
}

func (ic *IndexClient) Stats(ctx context.Context) (*IndexStatus, error) {
	var res IndexStatus
	if err := ic.client.do(ctx, http.MethodGet, apiPrefix+"/index/stats", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Reload rebuilds the server's index from its ontology source.  Reloads are
// not retried.
func (ic *IndexClient) Reload(ctx context.Context) (*IndexStats, error) {
	body, err := ic.client.send(ctx, http.MethodPost, apiPrefix+"/index/reload", nil, nil, mimeJSON, 0)
	if err != nil {
		return nil, err
	}
	var res IndexStats
	if err := decode(body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Dump returns the label index as text, one label per line.
func (ic *IndexClient) Dump(ctx context.Context) (string, error) {
	return ic.client.text(ctx, http.MethodGet, apiPrefix+"/index/dump", nil, nil)
}
