package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/capital-declarations-api/internal/dto"
	"github.com/noah-isme/capital-declarations-api/internal/models"
	"github.com/noah-isme/capital-declarations-api/pkg/response"
)

type timelineService interface {
	Assemble(ctx context.Context, firmID, declarationID string, limit int) (*models.Timeline, error)
	Export(ctx context.Context, firmID, declarationID string, format dto.TimelineExportFormat) (*dto.TimelineExport, error)
}

// TimelineHandler serves the merged declaration timeline.
type TimelineHandler struct {
	service timelineService
}

// NewTimelineHandler builds the handler.
func NewTimelineHandler(service timelineService) *TimelineHandler {
	return &TimelineHandler{service: service}
}

// Get godoc
// @Summary Declaration timeline
// @Tags Timeline
// @Produce json
// @Param id path string true "Declaration ID"
// @Param limit query int false "Maximum entries, 0 for all"
// @Success 200 {object} response.Envelope
// @Router /declarations/{id}/timeline [get]
func (h *TimelineHandler) Get(c *gin.Context) {
	firmID, _, ok := staffScope(c)
	if !ok {
		return
	}
	timeline, err := h.service.Assemble(c.Request.Context(), firmID, c.Param("id"), queryInt(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timeline, nil)
}

// Export godoc
// @Summary Download the declaration timeline
// @Tags Timeline
// @Produce application/pdf
// @Produce text/csv
// @Param id path string true "Declaration ID"
// @Param format query string false "pdf or csv"
// @Success 200 {file} binary
// @Router /declarations/{id}/timeline/export [get]
func (h *TimelineHandler) Export(c *gin.Context) {
	firmID, _, ok := staffScope(c)
	if !ok {
		return
	}
	format := dto.TimelineExportFormat(strings.ToLower(c.DefaultQuery("format", string(dto.TimelineExportPDF))))
	file, err := h.service.Export(c.Request.Context(), firmID, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.FileName))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
