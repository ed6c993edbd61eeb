package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyConcept/internal/testutil"
)

func init() { gin.SetMode(gin.TestMode) }

var authCfg = config.AuthConfig{APIKeys: []config.APIKey{
	{Name: "editor", Key: "k-editor", Role: config.RoleUser},
	{Name: "curator", Key: "k-curator", Role: config.RolePrivileged},
}}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/who", func(c *gin.Context) {
		caller := CallerFrom(c)
		c.JSON(http.StatusOK, gin.H{"name": caller.Name, "role": caller.Role, "privileged": caller.Privileged()})
	})
	return r
}

func do(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		key            string
		wantStatus     int
		wantPrivileged bool
		wantName       string
	}{
		{"anonymous", "", http.StatusOK, false, ""},
		{"user key", "k-editor", http.StatusOK, false, "editor"},
		{"privileged key", "k-curator", http.StatusOK, true, "curator"},
		{"unknown key", "nope", http.StatusUnauthorized, false, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newEngine(RequestID(), APIKeyAuth(authCfg, testutil.NewMockLogger()))
			rec := do(r, http.MethodGet, "/who", map[string]string{DefaultAPIKeyHeader: tt.key})
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				var body ErrorBody
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "COMMON_003", body.Code)
				assert.NotEmpty(t, body.RequestID)
				return
			}
			var body struct {
				Name       string `json:"name"`
				Privileged bool   `json:"privileged"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantPrivileged, body.Privileged)
			assert.Equal(t, tt.wantName, body.Name)
		})
	}
}

func TestAPIKeyAuth_CustomHeader(t *testing.T) {
	t.Parallel()
	cfg := authCfg
	cfg.Header = "X-Wiki-Key"
	r := newEngine(APIKeyAuth(cfg, nil))

	rec := do(r, http.MethodGet, "/who", map[string]string{"X-Wiki-Key": "k-curator"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"privileged":true`)
}

func TestRequirePrivileged(t *testing.T) {
	t.Parallel()
	r := gin.New()
	r.Use(APIKeyAuth(authCfg, nil))
	r.POST("/reload", RequirePrivileged(), func(c *gin.Context) { c.Status(http.StatusAccepted) })

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/reload", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/reload", map[string]string{DefaultAPIKeyHeader: "k-editor"}).Code)
	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/reload", map[string]string{DefaultAPIKeyHeader: "k-curator"}).Code)
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	var seen string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) {
		seen = logging.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	rec := do(r, http.MethodGet, "/x", map[string]string{RequestIDHeader: "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-42", seen)

	rec = do(r, http.MethodGet, "/x", nil)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}

func TestRequestLogging(t *testing.T) {
	t.Parallel()
	log := testutil.NewMockLogger()
	r := gin.New()
	r.Use(RequestID(), RequestLogging(log, DefaultLoggingConfig()))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	do(r, http.MethodGet, "/ok", nil)
	do(r, http.MethodGet, "/bad", nil)
	do(r, http.MethodGet, "/boom", nil)
	do(r, http.MethodGet, "/healthz", nil)

	assert.True(t, log.HasMessage(logging.LevelInfo, "request completed"))
	assert.True(t, log.HasMessage(logging.LevelWarn, "request rejected"))
	assert.True(t, log.HasMessage(logging.LevelError, "request failed"))
	assert.Equal(t, 1, log.Count(logging.LevelInfo), "health probes are not logged")
}

func TestRecovery(t *testing.T) {
	t.Parallel()
	log := testutil.NewMockLogger()
	r := gin.New()
	r.Use(RequestID(), Recovery(log))
	r.GET("/panic", func(c *gin.Context) { panic("kaputt") })

	rec := do(r, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"COMMON_001"`)
	assert.True(t, log.HasMessage(logging.LevelError, "panic serving request"))
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "mwtest"}, nil)
	require.NoError(t, err)
	m := prometheus.NewAppMetrics(c)

	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/api/v1/terms/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	do(r, http.MethodGet, "/api/v1/terms/abc", nil)
	do(r, http.MethodGet, "/nowhere", nil)

	out := do(c.Handler(), http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, out, `mwtest_http_requests_total{method="GET",path="/api/v1/terms/:id",status_code="200"} 1`)
	assert.Contains(t, out, `mwtest_http_requests_total{method="GET",path="unmatched",status_code="404"} 1`)
}

func TestCORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		origins    []string
		origin     string
		method     string
		wantStatus int
		wantAllow  string
	}{
		{"exact origin", []string{"https://wiki.example.org"}, "https://wiki.example.org", http.MethodGet, http.StatusOK, "https://wiki.example.org"},
		{"subdomain wildcard", []string{"*.example.org"}, "https://intra.example.org", http.MethodGet, http.StatusOK, "https://intra.example.org"},
		{"any origin", []string{"*"}, "https://elsewhere.test", http.MethodGet, http.StatusOK, "*"},
		{"foreign origin", []string{"https://wiki.example.org"}, "https://evil.test", http.MethodGet, http.StatusOK, ""},
		{"preflight", []string{"https://wiki.example.org"}, "https://wiki.example.org", http.MethodOptions, http.StatusNoContent, "https://wiki.example.org"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := gin.New()
			r.Use(CORS(DefaultCORSConfig(tt.origins)))
			r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			rec := do(r, tt.method, "/x", map[string]string{"Origin": tt.origin})
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.method == http.MethodOptions {
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), DefaultAPIKeyHeader)
			}
		})
	}
}
