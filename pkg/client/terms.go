package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Rankings accepted by the term endpoints.
const (
	RankTFIDF     = "tfidf"
	RankTF        = "tf"
	RankDF        = "df"
	RankAverageTF = "avg-tf"
)

// ComputeRequest asks for the term statistics of a corpus.  Documents maps
// document names to their text.  Save stores the report on the server.
type ComputeRequest struct {
	Name       string            `json:"name"`
	Documents  map[string]string `json:"documents"`
	Exclusions []string          `json:"exclusions,omitempty"`
	Save       bool              `json:"save"`
}

type Variant struct {
	Spelling string `json:"spelling"`
	Count    int    `json:"count"`
}

type Term struct {
	Term      string    `json:"term"`
	TF        int       `json:"tf"`
	DF        int       `json:"df"`
	TFIDF     float64   `json:"tfidf"`
	AverageTF float64   `json:"average_tf"`
	Variants  []Variant `json:"variants"`
}

// Report is one page of a term report.
type Report struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Documents int       `json:"documents"`
	Tokens    int       `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
	Rank      string    `json:"rank"`
	Total     int       `json:"total"`
	Terms     []Term    `json:"terms"`
}

type ReportSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Documents int       `json:"documents"`
	Tokens    int       `json:"tokens"`
	Terms     int       `json:"terms"`
	CreatedAt time.Time `json:"created_at"`
}

// PageOptions selects the ranking and window of a report.  Zero values use
// the server defaults.
type PageOptions struct {
	Rank   string
	Limit  int
	Offset int
}

func (o *PageOptions) query() url.Values {
	q := url.Values{}
	if o == nil {
		return q
	}
	if o.Rank != "" {
		q.Set("rank", o.Rank)
	}
	setPage(q, o.Limit, o.Offset)
	return q
}

// TermsClient wraps the term statistics endpoints.  Saved reports need the
// server to have a database.
type TermsClient struct {
	client *Client
}

// Compute runs the statistics.  Saving compute requests are not retried.
func (tc *TermsClient) Compute(ctx context.Context, req *ComputeRequest, page *PageOptions) (*Report, error) {
	retries := tc.client.retryMax
	if req != nil && req.Save {
		retries = 0
	}
	body, err := tc.client.send(ctx, http.MethodPost, apiPrefix+"/terms", page.query(), req, mimeJSON, retries)
	if err != nil {
		return nil, err
	}
	var res Report
	if err := decode(body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (tc *TermsClient) List(ctx context.Context, limit, offset int) ([]ReportSummary, error) {
	q := url.Values{}
	setPage(q, limit, offset)
	var res struct {
		Reports []ReportSummary `json:"reports"`
	}
	if err := tc.client.do(ctx, http.MethodGet, apiPrefix+"/terms", q, nil, &res); err != nil {
		return nil, err
	}
	return res.Reports, nil
}

func (tc *TermsClient) Get(ctx context.Context, id string, page *PageOptions) (*Report, error) {
	var res Report
	if err := tc.client.do(ctx, http.MethodGet, apiPrefix+"/terms/"+url.PathEscape(id), page.query(), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetText returns a page of a saved report in the rank file format.
func (tc *TermsClient) GetText(ctx context.Context, id string, page *PageOptions) (string, error) {
	return tc.client.text(ctx, http.MethodGet, apiPrefix+"/terms/"+url.PathEscape(id), page.query(), nil)
}

// Latest returns the newest saved report of a corpus.
func (tc *TermsClient) Latest(ctx context.Context, corpus string, page *PageOptions) (*Report, error) {
	var res Report
	path := fmt.Sprintf("%s/corpora/%s/terms", apiPrefix, url.PathEscape(corpus))
	if err := tc.client.do(ctx, http.MethodGet, path, page.query(), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (tc *TermsClient) Delete(ctx context.Context, id string) error {
	return tc.client.do(ctx, http.MethodDelete, apiPrefix+"/terms/"+url.PathEscape(id), nil, nil, nil)
}

func decode(body []byte, dst interface{}) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
