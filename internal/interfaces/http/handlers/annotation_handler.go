package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyConcept/internal/application/annotation"
	"github.com/turtacn/KeyConcept/internal/domain/ontology"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/interfaces/http/middleware"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// TextRequest is the body of the text processing endpoints.  The caller's
// privilege comes from its API key, never from the body.
type TextRequest struct {
	Text       string   `json:"text"`
	Exclusions []string `json:"exclusions,omitempty"`
}

// AnnotationHandler exposes concept extraction and enhancement.
type AnnotationHandler struct {
	svc    annotation.Service
	logger logging.Logger
}

func NewAnnotationHandler(svc annotation.Service, logger logging.Logger) *AnnotationHandler {
	return &AnnotationHandler{svc: svc, logger: logging.OrNop(logger).Named("annotation_handler")}
}

func (h *AnnotationHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/extract", h.Extract)
	r.POST("/enhance", h.Enhance)
	r.POST("/tokenize", h.Tokenize)
	r.POST("/plaintext", h.PlainText)
	r.GET("/concepts/similar", h.Similar)
	r.GET("/search", h.Search)
}

// Extract handles POST /extract.
func (h *AnnotationHandler) Extract(c *gin.Context) {
	var req TextRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.Extract(c.Request.Context(), &annotation.ExtractRequest{
		Text:       req.Text,
		Privileged: middleware.IsPrivileged(c),
		Exclusions: req.Exclusions,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Enhance handles POST /enhance.  With Accept: text/plain only the enhanced
// text is returned.
func (h *AnnotationHandler) Enhance(c *gin.Context) {
	var req TextRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.Enhance(c.Request.Context(), &annotation.EnhanceRequest{
		Text:       req.Text,
		Privileged: middleware.IsPrivileged(c),
		Exclusions: req.Exclusions,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEPlain) == gin.MIMEPlain {
		c.String(http.StatusOK, res.Text)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Tokenize handles POST /tokenize.
func (h *AnnotationHandler) Tokenize(c *gin.Context) {
	var req TextRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.Tokenize(c.Request.Context(), req.Text)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PlainText handles POST /plaintext.
func (h *AnnotationHandler) PlainText(c *gin.Context) {
	var req TextRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.svc.PlainText(c.Request.Context(), req.Text, req.Exclusions)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Similar handles GET /concepts/similar?id=...&id=...&limit=n.
func (h *AnnotationHandler) Similar(c *gin.Context) {
	ids := c.QueryArray("id")
	if len(ids) == 0 {
		writeError(c, h.logger, errors.InvalidParam("at least one id is required"))
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	req := &annotation.SimilarRequest{Limit: limit}
	for _, id := range ids {
		req.Concepts = append(req.Concepts, ontology.ConceptID(id))
	}
	res, err := h.svc.Similar(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Search handles GET /search?term=...&limit=&offset=.
func (h *AnnotationHandler) Search(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	res, err := h.svc.Search(c.Request.Context(), &annotation.SearchRequest{
		Term:       c.Query("term"),
		Privileged: middleware.IsPrivileged(c),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
