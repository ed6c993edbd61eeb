// Package handlers implements the gin handlers of the KeyConcept HTTP API.
package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/interfaces/http/middleware"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// writeError renders err as the error envelope.  Server-side failures are
// logged and masked; the client only sees the code and a generic message.
func writeError(c *gin.Context, logger logging.Logger, err error) {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown || code == errors.CodeOK {
		code = errors.ErrCodeInternal
	}
	status := errors.HTTPStatusForCode(code)
	body := middleware.ErrorBody{
		Code:      string(code),
		Message:   errors.DefaultMessageForCode(code),
		RequestID: middleware.RequestIDFrom(c),
	}

	var ae *errors.AppError
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && status != http.StatusGatewayTimeout:
		logging.OrNop(logger).Error("request failed",
			logging.Err(err),
			logging.String("path", c.FullPath()),
			logging.String("request_id", body.RequestID))
		body.Message = "internal server error"
	case stderrors.As(err, &ae):
		body.Message = ae.Message
		body.Detail = ae.Detail
	}
	c.AbortWithStatusJSON(status, body)
}

// bindJSON decodes the request body into dst, answering 400 on failure.
func bindJSON(c *gin.Context, logger logging.Logger, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			writeError(c, logger, errors.Newf(errors.ErrCodeBadRequest, "request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		writeError(c, logger, errors.Wrap(err, errors.ErrCodeBadRequest, "malformed request body"))
		return false
	}
	return true
}

// pagination reads limit and offset.  Limit defaults to 20 and is capped at
// 200; malformed or negative values are rejected.
func pagination(c *gin.Context) (limit, offset int, err error) {
	limit, err = intQuery(c, "limit", defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	offset, err = intQuery(c, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, offset, nil
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.Newf(errors.ErrCodeBadRequest, "%s must be a non-negative integer", name).WithDetail(raw)
	}
	return v, nil
}
