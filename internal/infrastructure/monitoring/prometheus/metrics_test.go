package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestAppMetrics(t *testing.T) (*AppMetrics, MetricsCollector) {
	t.Helper()
	c := newTestCollector(t)
	return NewAppMetrics(c), c
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	m, c := newTestAppMetrics(t)
	RecordHTTPRequest(m, "POST", "/api/v1/extract", 200, 20*time.Millisecond)

	out := scrape(t, c)
	assert.Contains(t, out, `test_unit_http_requests_total{method="POST",path="/api/v1/extract",status_code="200"} 1`)
	assert.Contains(t, out, `test_unit_http_request_duration_seconds_count{method="POST",path="/api/v1/extract"} 1`)
}

func TestRecordGRPCRequest(t *testing.T) {
	t.Parallel()
	m, c := newTestAppMetrics(t)
	RecordGRPCRequest(m, "/keyconcept.v1.AnnotationService/Extract", "OK")

	assert.Contains(t, scrape(t, c), `test_unit_grpc_requests_total{code="OK",method="/keyconcept.v1.AnnotationService/Extract"} 1`)
}

func TestRecordAnnotation(t *testing.T) {
	t.Parallel()
	m, c := newTestAppMetrics(t)
	RecordAnnotation(m, "extract", false, 12, 3, time.Millisecond)
	RecordAnnotation(m, "extract", true, 4, 1, time.Millisecond)

	out := scrape(t, c)
	assert.Contains(t, out, `test_unit_tokens_analyzed_total{operation="extract"} 16`)
	assert.Contains(t, out, `test_unit_concepts_matched_total{operation="extract",privileged="false"} 3`)
	assert.Contains(t, out, `test_unit_concepts_matched_total{operation="extract",privileged="true"} 1`)
}

func TestRecordIndexBuild(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		contains []string
		absent   []string
	}{
		{
			name: "success updates sizes",
			contains: []string{
				`test_unit_index_builds_total{source="file",status="success"} 1`,
				`test_unit_index_size{kind="labels"} 8`,
				`test_unit_index_size{kind="prefixes"} 3`,
				`test_unit_index_generation 4`,
			},
		},
		{
			name:     "failure keeps sizes",
			err:      errors.New("cancelled"),
			contains: []string{`test_unit_index_builds_total{source="file",status="failure"} 1`},
			absent:   []string{`test_unit_index_size{`},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, c := newTestAppMetrics(t)
			RecordIndexBuild(m, "file", 8, 3, 6, 4, 10*time.Millisecond, tt.err)
			out := scrape(t, c)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestRecordCacheAccess(t *testing.T) {
	t.Parallel()
	m, c := newTestAppMetrics(t)
	RecordCacheAccess(m, "enhance", true)
	RecordCacheAccess(m, "enhance", false)
	RecordCacheAccess(m, "enhance", false)

	out := scrape(t, c)
	assert.Contains(t, out, `test_unit_cache_hits_total{cache="enhance"} 1`)
	assert.Contains(t, out, `test_unit_cache_misses_total{cache="enhance"} 2`)
}

func TestRecordJobAndError(t *testing.T) {
	t.Parallel()
	m, c := newTestAppMetrics(t)
	RecordJob(m, false, time.Second)
	RecordError(m, "worker", "JOB_004")
	RecordDBQuery(m, "postgres", "save_report", time.Millisecond)

	out := scrape(t, c)
	assert.Contains(t, out, `test_unit_jobs_processed_total{status="failure"} 1`)
	assert.Contains(t, out, `test_unit_errors_total{code="JOB_004",component="worker"} 1`)
	assert.Contains(t, out, `test_unit_db_query_duration_seconds_count{db="postgres",operation="save_report"} 1`)
}

func TestRecorders_NilMetrics(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() {
		RecordHTTPRequest(nil, "GET", "/", 200, 0)
		RecordGRPCRequest(nil, "/a/b", "OK")
		RecordAnnotation(nil, "extract", false, 1, 1, 0)
		RecordIndexBuild(nil, "file", 0, 0, 0, 0, 0, nil)
		RecordCacheAccess(nil, "x", true)
		RecordDBQuery(nil, "pg", "q", 0)
		RecordJob(nil, true, 0)
		RecordError(nil, "c", "e")
	})
}
