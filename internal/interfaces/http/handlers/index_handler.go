package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyConcept/internal/domain/conceptindex"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/interfaces/http/middleware"
)

// ConceptIndex is the read side of the concept index.
type ConceptIndex interface {
	Stats() conceptindex.Stats
	Dump(w io.Writer) error
}

// IndexLoader rebuilds the concept index.  ontology_loader.Loader
// implements it.
type IndexLoader interface {
	Load(ctx context.Context) (conceptindex.Stats, error)
	Ready() bool
	LastStats() (conceptindex.Stats, time.Time)
}

type IndexStatusResponse struct {
	Ready    bool               `json:"ready"`
	Stats    conceptindex.Stats `json:"stats"`
	LoadedAt *time.Time         `json:"loaded_at,omitempty"`
}

// IndexHandler reports on and rebuilds the concept index.
type IndexHandler struct {
	index  ConceptIndex
	loader IndexLoader
	logger logging.Logger
}

func NewIndexHandler(index ConceptIndex, loader IndexLoader, logger logging.Logger) *IndexHandler {
	return &IndexHandler{index: index, loader: loader, logger: logging.OrNop(logger).Named("index_handler")}
}

// RegisterRoutes mounts the index routes.  Reload and dump need a
// privileged key.
func (h *IndexHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/index/stats", h.Stats)
	r.POST("/index/reload", middleware.RequirePrivileged(), h.Reload)
	r.GET("/index/dump", middleware.RequirePrivileged(), h.Dump)
}

// Stats handles GET /index/stats.
func (h *IndexHandler) Stats(c *gin.Context) {
	resp := IndexStatusResponse{Stats: h.index.Stats()}
	if h.loader != nil {
		resp.Ready = h.loader.Ready()
		if _, at := h.loader.LastStats(); !at.IsZero() {
			resp.LoadedAt = &at
		}
	} else {
		resp.Ready = resp.Stats.Generation > 0
	}
	c.JSON(http.StatusOK, resp)
}

// Reload handles POST /index/reload.  A failed reload leaves the current
// index in place.
func (h *IndexHandler) Reload(c *gin.Context) {
	if h.loader == nil {
		c.AbortWithStatus(http.StatusNotImplemented)
		return
	}
	stats, err := h.loader.Load(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("index reloaded on request",
		logging.String("caller", middleware.CallerFrom(c).Name),
		logging.Int64("generation", int64(stats.Generation)))
	c.JSON(http.StatusOK, stats)
}

// Dump handles GET /index/dump as plain text.
func (h *IndexHandler) Dump(c *gin.Context) {
	c.Header("Content-Type", gin.MIMEPlain+"; charset=utf-8")
	c.Status(http.StatusOK)
	if err := h.index.Dump(c.Writer); err != nil {
		h.logger.Error("index dump failed", logging.Err(err))
	}
}
