package opensearch

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]interface{}
}

// handlerTransport serves SDK requests from an http.Handler in-process.
type handlerTransport struct {
	mu       sync.Mutex
	handler  http.HandlerFunc
	requests []recordedRequest
}

func (t *handlerTransport) Perform(req *http.Request) (*http.Response, error) {
	rec := recordedRequest{Method: req.Method, Path: req.URL.Path, Query: req.URL.RawQuery}
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &rec.Body)
	}
	t.mu.Lock()
	t.requests = append(t.requests, rec)
	t.mu.Unlock()

	w := httptest.NewRecorder()
	t.handler(w, req)
	return w.Result(), nil
}

func (t *handlerTransport) last() recordedRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requests[len(t.requests)-1]
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}
