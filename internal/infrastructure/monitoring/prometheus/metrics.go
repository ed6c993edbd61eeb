package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds the series exported by the KeyConcept binaries.
type AppMetrics struct {
	// HTTP / gRPC
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	GRPCRequestsTotal   CounterVec

	// Analysis pipeline
	TokensAnalyzedTotal   CounterVec
	ConceptsMatchedTotal  CounterVec
	AnnotationDuration    HistogramVec
	PlainTextBreakpoints  HistogramVec

	// Concept index
	IndexBuildDuration HistogramVec
	IndexBuildsTotal   CounterVec
	IndexSize          GaugeVec
	IndexGeneration    GaugeVec

	// Infrastructure
	CacheHitsTotal     CounterVec
	CacheMissesTotal   CounterVec
	DBQueryDuration    HistogramVec
	JobsProcessedTotal CounterVec
	JobDuration        HistogramVec

	ErrorsTotal CounterVec
}

var (
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultBuildDurationBuckets = []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60}
	DefaultCountBuckets         = []float64{0, 1, 5, 10, 50, 100, 500, 1000}
	DefaultDBDurationBuckets    = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// NewAppMetrics registers every series on collector.
func NewAppMetrics(c MetricsCollector) *AppMetrics {
	return &AppMetrics{
		HTTPRequestsTotal:   c.RegisterCounter("http_requests_total", "HTTP requests served", "method", "path", "status_code"),
		HTTPRequestDuration: c.RegisterHistogram("http_request_duration_seconds", "HTTP request latency", DefaultHTTPDurationBuckets, "method", "path"),
		GRPCRequestsTotal:   c.RegisterCounter("grpc_requests_total", "gRPC calls served", "method", "code"),

		TokensAnalyzedTotal:  c.RegisterCounter("tokens_analyzed_total", "Tokens emitted by the analyzer", "operation"),
		ConceptsMatchedTotal: c.RegisterCounter("concepts_matched_total", "Concept spans recognised", "operation", "privileged"),
		AnnotationDuration:   c.RegisterHistogram("annotation_duration_seconds", "Time spent annotating one document", DefaultHTTPDurationBuckets, "operation"),
		PlainTextBreakpoints: c.RegisterHistogram("plaintext_breakpoints", "Breakpoints per plain text view", DefaultCountBuckets, "profile"),

		IndexBuildDuration: c.RegisterHistogram("index_build_duration_seconds", "Concept index build time", DefaultBuildDurationBuckets, "source"),
		IndexBuildsTotal:   c.RegisterCounter("index_builds_total", "Concept index builds", "source", "status"),
		IndexSize:          c.RegisterGauge("index_size", "Entries in the concept index", "kind"),
		IndexGeneration:    c.RegisterGauge("index_generation", "Current concept index generation"),

		CacheHitsTotal:     c.RegisterCounter("cache_hits_total", "Cache hits", "cache"),
		CacheMissesTotal:   c.RegisterCounter("cache_misses_total", "Cache misses", "cache"),
		DBQueryDuration:    c.RegisterHistogram("db_query_duration_seconds", "Database query latency", DefaultDBDurationBuckets, "db", "operation"),
		JobsProcessedTotal: c.RegisterCounter("jobs_processed_total", "Annotation jobs processed", "status"),
		JobDuration:        c.RegisterHistogram("job_duration_seconds", "Annotation job latency", DefaultBuildDurationBuckets),

		ErrorsTotal: c.RegisterCounter("errors_total", "Errors by component and code", "component", "code"),
	}
}

// RecordHTTPRequest updates the HTTP counters.  Nil-safe.
func RecordHTTPRequest(m *AppMetrics, method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordGRPCRequest counts one unary call by full method and status code.
func RecordGRPCRequest(m *AppMetrics, method, code string) {
	if m == nil {
		return
	}
	m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
}

// RecordAnnotation records one analysed document.
func RecordAnnotation(m *AppMetrics, op string, privileged bool, tokens, concepts int, d time.Duration) {
	if m == nil {
		return
	}
	m.TokensAnalyzedTotal.WithLabelValues(op).Add(float64(tokens))
	m.ConceptsMatchedTotal.WithLabelValues(op, strconv.FormatBool(privileged)).Add(float64(concepts))
	m.AnnotationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordIndexBuild records a finished build.  On failure the size gauges keep
// describing the snapshot that stayed live.
func RecordIndexBuild(m *AppMetrics, source string, labels, prefixes, concepts int, generation uint64, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.IndexBuildDuration.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		m.IndexBuildsTotal.WithLabelValues(source, "failure").Inc()
		return
	}
	m.IndexBuildsTotal.WithLabelValues(source, "success").Inc()
	m.IndexSize.WithLabelValues("labels").Set(float64(labels))
	m.IndexSize.WithLabelValues("prefixes").Set(float64(prefixes))
	m.IndexSize.WithLabelValues("concepts").Set(float64(concepts))
	m.IndexGeneration.WithLabelValues().Set(float64(generation))
}

func RecordCacheAccess(m *AppMetrics, cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordDBQuery(m *AppMetrics, db, op string, d time.Duration) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(db, op).Observe(d.Seconds())
}

func RecordJob(m *AppMetrics, success bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.JobsProcessedTotal.WithLabelValues(status).Inc()
	m.JobDuration.WithLabelValues().Observe(d.Seconds())
}

func RecordError(m *AppMetrics, component, code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, code).Inc()
}
