package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// TextRequest is the body of every text processing call.  Exclusions name
// configured exclusion profiles.
type TextRequest struct {
	Text       string   `json:"text"`
	Exclusions []string `json:"exclusions,omitempty"`
}

// Annotation is one matched concept label in a text.  Start and End are
// byte offsets into the submitted text.
type Annotation struct {
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Surface  string   `json:"surface"`
	Key      string   `json:"key"`
	Concepts []string `json:"concepts"`
	Labels   []string `json:"labels,omitempty"`
}

type ExtractResult struct {
	Annotations []Annotation `json:"annotations"`
	Tokens      int          `json:"tokens"`
	Generation  uint64       `json:"generation"`
}

type EnhanceResult struct {
	Text        string       `json:"text"`
	Links       int          `json:"links"`
	Annotations []Annotation `json:"annotations"`
	Tokens      int          `json:"tokens"`
	Generation  uint64       `json:"generation"`
	Cached      bool         `json:"cached"`
}

type Token struct {
	Text             string `json:"text"`
	Start            int    `json:"start"`
	End              int    `json:"end"`
	AfterPunctuation bool   `json:"after_punctuation,omitempty"`
	Keyword          bool   `json:"keyword,omitempty"`
}

type TokenizeResult struct {
	Tokens []Token `json:"tokens"`
}

// Breakpoint maps a position of the plain text back to the original: from
// Position on, original offset = plain offset + Correction.
type Breakpoint struct {
	Position   int `json:"position"`
	Correction int `json:"correction"`
}

type PlainTextResult struct {
	Plain       string       `json:"plain"`
	Breakpoints []Breakpoint `json:"breakpoints"`
}

type SimilarResult struct {
	Concepts []string `json:"concepts"`
	Labels   []string `json:"labels"`
}

// SearchHit is an annotated document found by concept search.
type SearchHit struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	Document struct {
		Bucket       string   `json:"bucket"`
		Object       string   `json:"object"`
		OutputObject string   `json:"output_object,omitempty"`
		Concepts     []string `json:"concepts"`
		Labels       []string `json:"labels"`
		Annotations  int      `json:"annotations"`
	} `json:"document"`
}

type SearchResult struct {
	Term     string      `json:"term"`
	Concepts []string    `json:"concepts"`
	Labels   []string    `json:"labels"`
	Total    int64       `json:"total"`
	Hits     []SearchHit `json:"hits"`
}

// AnnotationClient wraps the concept extraction endpoints.
type AnnotationClient struct {
	client *Client
}

func (a *AnnotationClient) Extract(ctx context.Context, req *TextRequest) (*ExtractResult, error) {
	var res ExtractResult
	if err := a.client.do(ctx, http.MethodPost, apiPrefix+"/extract", nil, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Enhance returns the text with similar-concept links inserted together
// with the annotations they were built from.
func (a *AnnotationClient) Enhance(ctx context.Context, req *TextRequest) (*EnhanceResult, error) {
	var res EnhanceResult
	if err := a.client.do(ctx, http.MethodPost, apiPrefix+"/enhance", nil, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// EnhanceText returns only the enhanced text.
func (a *AnnotationClient) EnhanceText(ctx context.Context, req *TextRequest) (string, error) {
	return a.client.text(ctx, http.MethodPost, apiPrefix+"/enhance", nil, req)
}

func (a *AnnotationClient) Tokenize(ctx context.Context, text string) (*TokenizeResult, error) {
	var res TokenizeResult
	if err := a.client.do(ctx, http.MethodPost, apiPrefix+"/tokenize", nil, &TextRequest{Text: text}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (a *AnnotationClient) PlainText(ctx context.Context, req *TextRequest) (*PlainTextResult, error) {
	var res PlainTextResult
	if err := a.client.do(ctx, http.MethodPost, apiPrefix+"/plaintext", nil, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Similar returns the concepts related to ids.  A limit of zero uses the
// server's maximum.
func (a *AnnotationClient) Similar(ctx context.Context, ids []string, limit int) (*SimilarResult, error) {
	q := url.Values{"id": ids}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var res SimilarResult
	if err := a.client.do(ctx, http.MethodGet, apiPrefix+"/concepts/similar", q, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Search finds documents annotated with concepts matching term.
func (a *AnnotationClient) Search(ctx context.Context, term string, limit, offset int) (*SearchResult, error) {
	q := url.Values{"term": {term}}
	setPage(q, limit, offset)
	var res SearchResult
	if err := a.client.do(ctx, http.MethodGet, apiPrefix+"/search", q, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func setPage(q url.Values, limit, offset int) {
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
}
