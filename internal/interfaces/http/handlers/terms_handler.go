package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/KeyConcept/internal/application/termstats"
	domainTerms "github.com/turtacn/KeyConcept/internal/domain/termstats"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/interfaces/http/middleware"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// ReportView is a page of a term report in the requested ranking.
type ReportView struct {
	*domainTerms.Report
	Rank  domainTerms.Ranking `json:"rank"`
	Total int                 `json:"total"`
	Terms []domainTerms.Term  `json:"terms"`
}

// TermsHandler computes and serves term statistics reports.
type TermsHandler struct {
	svc    termstats.Service
	logger logging.Logger
}

func NewTermsHandler(svc termstats.Service, logger logging.Logger) *TermsHandler {
	return &TermsHandler{svc: svc, logger: logging.OrNop(logger).Named("terms_handler")}
}

func (h *TermsHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/terms", h.Compute)
	r.GET("/terms", h.List)
	r.GET("/terms/:id", h.Get)
	r.DELETE("/terms/:id", middleware.RequirePrivileged(), h.Delete)
	r.GET("/corpora/:name/terms", h.Latest)
}

// Compute handles POST /terms.  The response pages the new report with the
// same query parameters as Get.
func (h *TermsHandler) Compute(c *gin.Context) {
	var req termstats.ComputeRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	req.Privileged = middleware.IsPrivileged(c)
	report, err := h.svc.Compute(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if req.Save {
		status = http.StatusCreated
	}
	h.render(c, status, report)
}

// List handles GET /terms.
func (h *TermsHandler) List(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	items, err := h.svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if items == nil {
		items = []domainTerms.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"reports": items, "limit": limit, "offset": offset})
}

// Get handles GET /terms/:id?rank=&limit=&offset=.
func (h *TermsHandler) Get(c *gin.Context) {
	id, ok := h.reportID(c)
	if !ok {
		return
	}
	report, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.render(c, http.StatusOK, report)
}

// Latest handles GET /corpora/:name/terms.
func (h *TermsHandler) Latest(c *gin.Context) {
	report, err := h.svc.Latest(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.render(c, http.StatusOK, report)
}

// Delete handles DELETE /terms/:id.
func (h *TermsHandler) Delete(c *gin.Context) {
	id, ok := h.reportID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TermsHandler) reportID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, h.logger, errors.InvalidParam("report id must be a UUID").WithDetail(c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}

// render writes one page of report.  Accept: text/plain selects the rank
// file format.
func (h *TermsHandler) render(c *gin.Context, status int, report *domainTerms.Report) {
	rank := domainTerms.Ranking(c.DefaultQuery("rank", string(domainTerms.RankTFIDF)))
	if !rank.Valid() {
		writeError(c, h.logger, errors.InvalidParam("unknown ranking").WithDetail(string(rank)))
		return
	}
	limit, offset, err := pagination(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	ranked := report.Ranked(rank)
	page := []domainTerms.Term{}
	if offset < len(ranked) {
		end := offset + limit
		if end > len(ranked) {
			end = len(ranked)
		}
		page = ranked[offset:end]
	}

	if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEPlain) == gin.MIMEPlain {
		c.Header("Content-Type", gin.MIMEPlain+"; charset=utf-8")
		c.Status(status)
		if err := domainTerms.WriteText(c.Writer, page, rank); err != nil {
			h.logger.Error("writing rank file failed", logging.Err(err))
		}
		return
	}
	c.JSON(status, ReportView{Report: report, Rank: rank, Total: report.Len(), Terms: page})
}
