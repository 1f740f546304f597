package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/capital-declarations-api/internal/dto"
	"github.com/noah-isme/capital-declarations-api/internal/models"
	"github.com/noah-isme/capital-declarations-api/pkg/response"
)

type declarationService interface {
	Create(ctx context.Context, firmID string, actor models.Actor, req dto.CreateDeclarationRequest) (*models.Declaration, error)
	Get(ctx context.Context, firmID, id string) (*models.Declaration, error)
	List(ctx context.Context, firmID string, query dto.DeclarationQuery) ([]models.Declaration, *models.Pagination, error)
	SendToClient(ctx context.Context, firmID, id string, actor models.Actor, req dto.SendToClientRequest) (*dto.SendToClientResponse, error)
	RegenerateToken(ctx context.Context, firmID, id string) (models.IssuedToken, error)
	RevokeToken(ctx context.Context, firmID, id string) error
	UpdateAssignment(ctx context.Context, firmID, id string, req dto.AssignmentRequest) (*models.Declaration, error)
	UpdateDeadlines(ctx context.Context, firmID, id string, req dto.DeadlinesRequest) (*models.Declaration, error)
	UpdatePenalty(ctx context.Context, firmID, id string, req dto.PenaltyRequest) (*models.Declaration, error)
	Transition(ctx context.Context, firmID, id string, actor models.Actor, req dto.TransitionRequest) (*models.StatusHistoryEntry, error)
}

// DeclarationHandler exposes staff declaration endpoints.
type DeclarationHandler struct {
	service declarationService
}

// NewDeclarationHandler builds the handler.
func NewDeclarationHandler(service declarationService) *DeclarationHandler {
	return &DeclarationHandler{service: service}
}

// Create godoc
// @Summary Create a draft declaration
// @Tags Declarations
// @Accept json
// @Produce json
// @Param payload body dto.CreateDeclarationRequest true "Declaration payload"
// @Success 201 {object} response.Envelope
// @Router /declarations [post]
func (h *DeclarationHandler) Create(c *gin.Context) {
	firmID, actor, ok := staffScope(c)
	if !ok {
		return
	}
	var req dto.CreateDeclarationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid declaration payload"))
		return
	}
	decl, err := h.service.Create(c.Request.Context(), firmID, actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, decl)
}

// List godoc
// @Summary List declarations
// @Tags Declarations
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param assignedTo query string false "Assigned staff ID"
// @Param clientId query string false "Client ID"
// @Param taxYear query int false "Tax year"
// @Param overdue query bool false "Only overdue declarations"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Param sortBy query string false "Sort column"
// @Param sortOrder query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /declarations [get]
func (h *DeclarationHandler) List(c *gin.Context) {
	firmID, _, ok := staffScope(c)
	if !ok {
		return
	}
	query := dto.DeclarationQuery{
		AssignedTo: c.Query("assignedTo"),
		ClientID:   c.Query("clientId"),
		TaxYear:    queryInt(c, "taxYear", 0),
		Overdue:    c.Query("overdue") == "true",
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "pageSize", 25),
		SortBy:     c.Query("sortBy"),
		SortOrder:  c.Query("sortOrder"),
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				query.Statuses = append(query.Statuses, models.DeclarationStatus(s))
			}
		}
	}
	items, pagination, err := h.service.List(c.Request.Context(), firmID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a declaration
// @Tags Declarations
// @Produce json
// @Param id path string true "Declaration ID"
// @Success 200 {object} response.Envelope
// @Router /declarations/{id} [get]
func (h *DeclarationHandler) Get(c *gin.Context) {
	firmID, _, ok := staffScope(c)
	if !ok {
		return
	}
	decl, err := h.service.Get(c.Request.Context(), firmID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decl, nil)
}

// Transition godoc
// @Summary Change declaration status
// @Tags Declarations
// @Accept json
// @Produce json
// @Param id path string true "Declaration ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /declarations/{id}/transitions [post]
func (h *DeclarationHandler) Transition(c *gin.Context) {
	firmID, actor, ok := staffScope(c)
	if !ok {
		return
	}
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid transition payload"))
		return
	}
	entry, err := h.service.Transition(c.Request.Context(), firmID, c.Param("id"), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Send godoc
// @Summary Send the portal link to the client
// @Tags Declarations
// @Accept json
// @Produce json
// @Param id path string true "Declaration ID"
// @Param payload body dto.SendToClientRequest false "Notification channel"
// @Success 200 {object} response.Envelope
// @Router /declarations/{id}/send [post]
func (h *DeclarationHandler) Send(c *gin.Context) {
	firmID, actor, ok := staffScope(c)
	if !ok {
		return
	}
	var req dto.SendToClientRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid send payload"))
			return
		}
	}
	resp, err := h.service.SendToClient(c.Request.Context(), firmID, c.Param("id"), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// RegenerateToken godoc
// @Summary Issue a new portal link
// @Tags Declarations
// @Produce json
// @Param id path string true "Declaration ID"
// @Success 200 {object} response.Envelope
// @Router /declarations/{id}/token [post]
func (h *DeclarationHandler) RegenerateToken(c *gin.Context) {
	firmID, _, ok := staffScope(c)
	if !ok {
		return
	}
	link, err := h.service.RegenerateToken(c.Request.Context(), firmID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// RevokeToken godoc
// @Summary Disable the portal link
// @Tags Declarations
// @Param id path string true "Declaration ID"
// @Success 204
// @Router /declarations/{id}/token [delete]
func (h *DeclarationHandler) RevokeToken(c *gin.Context) {
	firmID, _, ok := staffScope(c)
	if !ok {
		return
	}
	if err := h.service.RevokeToken(c.Request.Context(), firmID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateAssignment godoc
// @Summary Assign a declaration
// @Tags Declarations
// @Accept json
// @Produce json
// @Param id path string true "Declaration ID"
// @Param payload body dto.AssignmentRequest true "Assignment"
// @Success 200 {object} response.Envelope
// @Router /declarations/{id}/assignment [patch]
func (h *DeclarationHandler) UpdateAssignment(c *gin.Context) {
	firmID, _, ok := staffScope(c)
	if !ok {
		return
	}
	var req dto.AssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid assignment payload"))
		return
	}
	decl, err := h.service.UpdateAssignment(c.Request.Context(), firmID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decl, nil)
}

// UpdateDeadlines godoc
// @Summary Replace declaration due dates
// @Tags Declarations
// @Accept json
// @Produce json
// @Param id path string true "Declaration ID"
// @Param payload body dto.DeadlinesRequest true "Deadlines"
// @Success 200 {object} response.Envelope
// @Router /declarations/{id}/deadlines [patch]
func (h *DeclarationHandler) UpdateDeadlines(c *gin.Context) {
	firmID, _, ok := staffScope(c)
	if !ok {
		return
	}
	var req dto.DeadlinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid deadlines payload"))
		return
	}
	decl, err := h.service.UpdateDeadlines(c.Request.Context(), firmID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decl, nil)
}

// UpdatePenalty godoc
// @Summary Replace late-filing penalty details
// @Tags Declarations
// @Accept json
// @Produce json
// @Param id path string true "Declaration ID"
// @Param payload body dto.PenaltyRequest true "Penalty"
// @Success 200 {object} response.Envelope
// @Router /declarations/{id}/penalty [patch]
func (h *DeclarationHandler) UpdatePenalty(c *gin.Context) {
	firmID, _, ok := staffScope(c)
	if !ok {
		return
	}
	var req dto.PenaltyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid penalty payload"))
		return
	}
	decl, err := h.service.UpdatePenalty(c.Request.Context(), firmID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decl, nil)
}
