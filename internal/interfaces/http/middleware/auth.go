// Package middleware holds the gin middleware of the KeyConcept HTTP API:
// API key authentication, request ids, request logging, metrics and CORS.
package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

const (
	DefaultAPIKeyHeader = "X-API-Key"

	roleKey = "keyconcept.role"
)

// Caller is the identity attached to a request.
type Caller struct {
	Name string
	Role string
}

// Privileged reports whether the caller may see privileged concepts.
func (c Caller) Privileged() bool { return c.Role == config.RolePrivileged }

// APIKeyAuth resolves the API key header into a Caller.  Requests without a
// key continue as anonymous users.  A key that is presented but unknown is
// rejected with 401 so typos do not silently downgrade privilege.
func APIKeyAuth(cfg config.AuthConfig, logger logging.Logger) gin.HandlerFunc {
	header := cfg.Header
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(header))
		if key == "" {
			c.Set(roleKey, Caller{Role: config.RoleUser})
			c.Next()
			return
		}
		caller, ok := lookupKey(cfg.APIKeys, key)
		if !ok {
			logger.Warn("rejected unknown api key", logging.String("path", c.Request.URL.Path), logging.String("client_ip", c.ClientIP()))
			c.Header("WWW-Authenticate", `APIKey realm="keyconcept"`)
			abort(c, errors.Unauthorized("invalid API key"))
			return
		}
		c.Set(roleKey, caller)
		c.Next()
	}
}

func lookupKey(keys []config.APIKey, key string) (Caller, bool) {
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k.Key), []byte(key)) == 1 {
			return Caller{Name: k.Name, Role: k.Role}, true
		}
	}
	return Caller{}, false
}

// RequirePrivileged rejects callers without the privileged role with 403.
func RequirePrivileged() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CallerFrom(c).Privileged() {
			abort(c, errors.Forbidden("privileged API key required"))
			return
		}
		c.Next()
	}
}

// CallerFrom returns the caller set by APIKeyAuth, or an anonymous user.
func CallerFrom(c *gin.Context) Caller {
	if v, ok := c.Get(roleKey); ok {
		if caller, ok := v.(Caller); ok {
			return caller
		}
	}
	return Caller{Role: config.RoleUser}
}

// IsPrivileged is shorthand for CallerFrom(c).Privileged().
func IsPrivileged(c *gin.Context) bool { return CallerFrom(c).Privileged() }

// ErrorBody is the JSON error envelope of every failed request.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// abort writes err as the error envelope and stops the chain.
func abort(c *gin.Context, err *errors.AppError) {
	c.AbortWithStatusJSON(errors.HTTPStatusForCode(err.Code), ErrorBody{
		Code:      string(err.Code),
		Message:   err.Message,
		Detail:    err.Detail,
		RequestID: RequestIDFrom(c),
	})
}
