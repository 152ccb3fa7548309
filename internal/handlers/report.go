package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rendiffdev/containerintegrity/internal/models"
	"github.com/rendiffdev/containerintegrity/internal/services"
)

// ReportHandler renders a completed inspection's diagnostic report into
// downloadable export formats (PDF, XLSX). JSON is already served directly
// by InspectionHandler.Get.
type ReportHandler struct {
	service  *services.InspectionService
	renderer *services.ReportRenderer
	logger   zerolog.Logger
}

func NewReportHandler(service *services.InspectionService, renderer *services.ReportRenderer, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		service:  service,
		renderer: renderer,
		logger:   logger.With().Str("handler", "report").Logger(),
	}
}

func (h *ReportHandler) loadCompleted(c *gin.Context) (*models.Inspection, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inspection id"})
		return nil, false
	}

	insp, err := h.service.GetInspection(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "inspection not found"})
		return nil, false
	}

	if insp.Status != models.InspectionStatusCompleted || insp.Report == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "inspection has no completed report"})
		return nil, false
	}

	return insp, true
}

// Export renders the inspection's completed report in the format named by
// the ?format= query parameter (pdf or xlsx).
func (h *ReportHandler) Export(c *gin.Context) {
	insp, ok := h.loadCompleted(c)
	if !ok {
		return
	}

	switch c.Query("format") {
	case "pdf":
		h.downloadPDF(c, insp)
	case "xlsx":
		h.downloadXLSX(c, insp)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be pdf or xlsx"})
	}
}

func (h *ReportHandler) downloadPDF(c *gin.Context, insp *models.Inspection) {
	data, err := h.renderer.RenderPDF(insp)
	if err != nil {
		h.logger.Error().Err(err).Str("id", insp.ID.String()).Msg("failed to render pdf report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render pdf report"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", insp.ID))
	c.Data(http.StatusOK, "application/pdf", data)
}

func (h *ReportHandler) downloadXLSX(c *gin.Context, insp *models.Inspection) {
	data, err := h.renderer.RenderXLSX(insp)
	if err != nil {
		h.logger.Error().Err(err).Str("id", insp.ID.String()).Msg("failed to render xlsx report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render xlsx report"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", insp.ID))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
