package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rendiffdev/containerintegrity/internal/adapter"
	"github.com/rendiffdev/containerintegrity/internal/diag"
	"github.com/rendiffdev/containerintegrity/internal/models"
	"github.com/rendiffdev/containerintegrity/internal/services"
)

// InspectionHandler exposes the inspection core over HTTP: submit a staged
// file for inspection, poll its status, and list or fetch past reports.
type InspectionHandler struct {
	service *services.InspectionService
	logger  zerolog.Logger
}

func NewInspectionHandler(service *services.InspectionService, logger zerolog.Logger) *InspectionHandler {
	return &InspectionHandler{
		service: service,
		logger:  logger.With().Str("handler", "inspection").Logger(),
	}
}

type submitInspectionRequest struct {
	SourceKey string `json:"source_key" binding:"required"`
	Depth     string `json:"depth"`
}

type submitBatchRequest struct {
	SourceKeys []string `json:"source_keys" binding:"required,min=1"`
	Depth      string   `json:"depth"`
}

// Submit stages the file already uploaded to storage under source_key and
// runs it through the container inspection core, returning the completed
// report. The core itself runs synchronously; SubmitBatch accepts many files
// in one request.
func (h *InspectionHandler) Submit(c *gin.Context) {
	var req submitInspectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	depth := diag.DepthStandard
	if req.Depth != "" {
		d, ok := parseDepth(req.Depth)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid depth: must be quick, standard, or thorough"})
			return
		}
		depth = d
	}

	insp, err := h.service.Submit(c.Request.Context(), req.SourceKey, depth)
	if err != nil {
		h.logger.Error().Err(err).Str("source_key", req.SourceKey).Msg("failed to submit inspection")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit inspection"})
		return
	}

	c.JSON(http.StatusOK, insp)
}

// SubmitBatch stages and inspects many files at once, bounded by the host's
// concurrency pool, and returns each record's initial (pending) state.
func (h *InspectionHandler) SubmitBatch(c *gin.Context) {
	var req submitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	depth := diag.DepthStandard
	if req.Depth != "" {
		d, ok := parseDepth(req.Depth)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid depth: must be quick, standard, or thorough"})
			return
		}
		depth = d
	}

	inspections, err := h.service.SubmitBatch(c.Request.Context(), req.SourceKeys, depth)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to submit inspection batch")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit inspection batch"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"inspections": inspections})
}

// Get returns a single inspection record, including its report if complete.
func (h *InspectionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inspection id"})
		return
	}

	insp, err := h.service.GetInspection(c.Request.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("id", id.String()).Msg("failed to load inspection")
		c.JSON(http.StatusNotFound, gin.H{"error": "inspection not found"})
		return
	}

	c.JSON(http.StatusOK, insp)
}

// List returns recent inspections, most recent first.
func (h *InspectionHandler) List(c *gin.Context) {
	limit := 50
	offset := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	inspections, err := h.service.ListInspections(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list inspections")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list inspections"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"inspections": inspections, "limit": limit, "offset": offset})
}

type correlateRequest struct {
	DecodeFailureSeverity string `json:"decode_failure_severity" binding:"required"`
}

// Correlate runs the adapter's decode-failure correlation (C15) against a
// persisted inspection's stored diagnostics: it translates every Diagnostic
// into the analyzer's generic MediaIssue shape, then, when the caller
// reports a downstream decode error on the same file, escalates any
// containerMetadata warning to an error with a likely-cause note.
func (h *InspectionHandler) Correlate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inspection id"})
		return
	}

	var req correlateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	severity := diag.Severity(req.DecodeFailureSeverity)
	switch severity {
	case diag.SeverityInfo, diag.SeverityWarning, diag.SeverityError:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "decode_failure_severity must be info, warning, or error"})
		return
	}

	insp, err := h.service.GetInspection(c.Request.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("id", id.String()).Msg("failed to load inspection")
		c.JSON(http.StatusNotFound, gin.H{"error": "inspection not found"})
		return
	}
	if insp.Status != models.InspectionStatusCompleted || insp.Report == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "inspection has no completed report"})
		return
	}

	issues := adapter.ToMediaIssues(insp.Report.Diagnostics)
	issues = adapter.CorrelateDecodeFailure(issues, adapter.DecodeFailure{Severity: severity})

	c.JSON(http.StatusOK, gin.H{"issues": issues})
}

func parseDepth(v string) (diag.Depth, bool) {
	switch diag.Depth(v) {
	case diag.DepthQuick, diag.DepthStandard, diag.DepthThorough:
		return diag.Depth(v), true
	default:
		return "", false
	}
}
