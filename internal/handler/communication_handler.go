package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/capital-declarations-api/internal/dto"
	"github.com/noah-isme/capital-declarations-api/internal/models"
	"github.com/noah-isme/capital-declarations-api/pkg/response"
)

type communicationService interface {
	Log(ctx context.Context, firmID, declarationID string, actor models.Actor, req dto.CreateCommunicationRequest) (*models.CommunicationEntry, error)
	List(ctx context.Context, firmID, declarationID string) ([]models.CommunicationEntry, error)
}

// CommunicationHandler records client interactions.
type CommunicationHandler struct {
	service communicationService
}

// NewCommunicationHandler builds the handler.
func NewCommunicationHandler(service communicationService) *CommunicationHandler {
	return &CommunicationHandler{service: service}
}

// Create godoc
// @Summary Log a client communication
// @Tags Communications
// @Accept json
// @Produce json
// @Param id path string true "Declaration ID"
// @Param payload body dto.CreateCommunicationRequest true "Communication"
// @Success 201 {object} response.Envelope
// @Router /declarations/{id}/communications [post]
func (h *CommunicationHandler) Create(c *gin.Context) {
	firmID, actor, ok := staffScope(c)
	if !ok {
		return
	}
	var req dto.CreateCommunicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid communication payload"))
		return
	}
	entry, err := h.service.Log(c.Request.Context(), firmID, c.Param("id"), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// List godoc
// @Summary List client communications
// @Tags Communications
// @Produce json
// @Param id path string true "Declaration ID"
// @Success 200 {object} response.Envelope
// @Router /declarations/{id}/communications [get]
func (h *CommunicationHandler) List(c *gin.Context) {
	firmID, _, ok := staffScope(c)
	if !ok {
		return
	}
	entries, err := h.service.List(c.Request.Context(), firmID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
