package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/capital-declarations-api/internal/dto"
	"github.com/noah-isme/capital-declarations-api/internal/models"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
)

// NoteSentToClient is recorded when a draft is sent to the client.
const NoteSentToClient = "portal link sent to client"

type declarationStore interface {
	Create(ctx context.Context, decl *models.Declaration, actor models.Actor) error
	GetByID(ctx context.Context, firmID, id string) (*models.Declaration, error)
	List(ctx context.Context, filter models.DeclarationFilter) ([]models.Declaration, int, error)
	UpdateAssignment(ctx context.Context, firmID, id string, assignedTo *string) error
	UpdateDeadlines(ctx context.Context, firmID, id string, deadlines models.DeclarationDeadlines) error
	UpdatePenalty(ctx context.Context, firmID, id string, penalty models.DeclarationPenalty) error
}

type tokenIssuer interface {
	Issue(ctx context.Context, firmID, declarationID string) (models.IssuedToken, error)
	Revoke(ctx context.Context, firmID, declarationID string) error
}

type conditionalTransitioner interface {
	Transition(ctx context.Context, firmID, declarationID string, to models.DeclarationStatus, note string, actor models.Actor) (*models.StatusHistoryEntry, error)
	TransitionIf(ctx context.Context, firmID, declarationID string, allow StatusPredicate, to models.DeclarationStatus, note string, actor models.Actor) (bool, error)
}

type notificationDispatcher interface {
	Dispatch(ctx context.Context, n Notification) (bool, error)
}

// DeclarationService exposes staff operations on declarations.
type DeclarationService struct {
	store         declarationStore
	firms         portalFirms
	tokens        tokenIssuer
	status        conditionalTransitioner
	notifications notificationDispatcher
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewDeclarationService constructs the service.
func NewDeclarationService(store declarationStore, firms portalFirms, tokens tokenIssuer, status conditionalTransitioner, notifications notificationDispatcher, validate *validator.Validate, logger *zap.Logger) *DeclarationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeclarationService{
		store:         store,
		firms:         firms,
		tokens:        tokens,
		status:        status,
		notifications: notifications,
		validator:     ensureValidator(validate),
		logger:        logger,
	}
}

// Create opens a draft declaration for a client of the firm.
func (s *DeclarationService) Create(ctx context.Context, firmID string, actor models.Actor, req dto.CreateDeclarationRequest) (*models.Declaration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid declaration payload")
	}
	client, err := s.firms.GetClient(ctx, firmID, req.ClientID)
	if err != nil {
		if isAppError(err, appErrors.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "client does not belong to this firm")
		}
		return nil, err
	}

	decl := &models.Declaration{
		FirmID:              firmID,
		ClientID:            client.ID,
		TaxYear:             req.TaxYear,
		AssignedTo:          req.AssignedTo,
		TaxAuthorityDueDate: req.TaxAuthorityDueDate,
		InternalDueDate:     req.InternalDueDate,
		ClientName:          client.FullName,
	}
	if err := s.store.Create(ctx, decl, actor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create declaration")
	}
	s.logger.Info("declaration created",
		zap.String("firm_id", firmID),
		zap.String("declaration_id", decl.ID),
		zap.Int("tax_year", decl.TaxYear),
	)
	return decl, nil
}

// Get returns one declaration of the firm.
func (s *DeclarationService) Get(ctx context.Context, firmID, id string) (*models.Declaration, error) {
	decl, err := s.store.GetByID(ctx, firmID, id)
	if err != nil {
		return nil, mapDeclarationErr(err, "failed to load declaration")
	}
	return decl, nil
}

// List returns a filtered page of the firm's declarations.
func (s *DeclarationService) List(ctx context.Context, firmID string, query dto.DeclarationQuery) ([]models.Declaration, *models.Pagination, error) {
	for _, st := range query.Statuses {
		if !st.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidStatus, "unknown declaration status: "+string(st))
		}
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 || size > 200 {
		size = 25
	}

	items, total, err := s.store.List(ctx, models.DeclarationFilter{
		FirmID:     firmID,
		Statuses:   query.Statuses,
		AssignedTo: query.AssignedTo,
		ClientID:   query.ClientID,
		TaxYear:    query.TaxYear,
		Overdue:    query.Overdue,
		Page:       page,
		PageSize:   size,
		SortBy:     query.SortBy,
		SortOrder:  query.SortOrder,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list declarations")
	}
	if items == nil {
		items = []models.Declaration{}
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Transition validates a staff status change request and applies it.
func (s *DeclarationService) Transition(ctx context.Context, firmID, id string, actor models.Actor, req dto.TransitionRequest) (*models.StatusHistoryEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		if !req.Status.Valid() {
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidStatus.Code, appErrors.ErrInvalidStatus.Status, "unknown declaration status: "+string(req.Status))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}
	return s.status.Transition(ctx, firmID, id, req.Status, req.Note, actor)
}

// SendToClient issues a fresh portal link, marks a draft as sent and queues
// a notification to the client.
func (s *DeclarationService) SendToClient(ctx context.Context, firmID, id string, actor models.Actor, req dto.SendToClientRequest) (*dto.SendToClientResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid send payload")
	}
	decl, err := s.Get(ctx, firmID, id)
	if err != nil {
		return nil, err
	}
	link, err := s.tokens.Issue(ctx, firmID, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.status.TransitionIf(ctx, firmID, id,
		StatusIn(models.DeclarationStatusDraft), models.DeclarationStatusSent, NoteSentToClient, actor); err != nil {
		return nil, err
	}

	notified := false
	if req.Channel != "" && req.Channel != "none" {
		notified, err = s.notifyClient(ctx, decl, req.Channel, link)
		if err != nil {
			s.logger.Warn("client notification not queued", zap.String("declaration_id", id), zap.Error(err))
		}
	}

	refreshed, err := s.Get(ctx, firmID, id)
	if err != nil {
		return nil, err
	}
	return &dto.SendToClientResponse{Declaration: refreshed, Link: link, Notified: notified}, nil
}

func (s *DeclarationService) notifyClient(ctx context.Context, decl *models.Declaration, channel string, link models.IssuedToken) (bool, error) {
	client, err := s.firms.GetClient(ctx, decl.FirmID, decl.ClientID)
	if err != nil {
		return false, err
	}
	firm, err := s.firms.GetBranding(ctx, decl.FirmID)
	if err != nil {
		return false, err
	}
	recipient := ""
	switch channel {
	case "email":
		if client.Email != nil {
			recipient = *client.Email
		}
	case "whatsapp":
		if client.Phone != nil {
			recipient = *client.Phone
		}
	}
	if recipient == "" {
		return false, appErrors.Clone(appErrors.ErrValidation, "client has no contact for channel "+channel)
	}
	return s.notifications.Dispatch(ctx, Notification{
		Channel:       channel,
		DeclarationID: decl.ID,
		Recipient:     recipient,
		Vars: map[string]string{
			"portal_url":  link.PortalURL,
			"client_name": client.FullName,
			"firm_name":   firm.Name,
			"tax_year":    strconv.Itoa(decl.TaxYear),
			"expires_at":  link.ExpiresAt.Format(time.RFC3339),
		},
	})
}

// RegenerateToken replaces the portal link without touching the status.
func (s *DeclarationService) RegenerateToken(ctx context.Context, firmID, id string) (models.IssuedToken, error) {
	if _, err := s.Get(ctx, firmID, id); err != nil {
		return models.IssuedToken{}, err
	}
	return s.tokens.Issue(ctx, firmID, id)
}

// RevokeToken disables the portal link.
func (s *DeclarationService) RevokeToken(ctx context.Context, firmID, id string) error {
	return s.tokens.Revoke(ctx, firmID, id)
}

// UpdateAssignment sets or clears the responsible staff member.
func (s *DeclarationService) UpdateAssignment(ctx context.Context, firmID, id string, req dto.AssignmentRequest) (*models.Declaration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if err := s.store.UpdateAssignment(ctx, firmID, id, req.AssignedTo); err != nil {
		return nil, mapDeclarationErr(err, "failed to update assignment")
	}
	return s.Get(ctx, firmID, id)
}

// UpdateDeadlines replaces both due dates.
func (s *DeclarationService) UpdateDeadlines(ctx context.Context, firmID, id string, req dto.DeadlinesRequest) (*models.Declaration, error) {
	deadlines := models.DeclarationDeadlines{
		TaxAuthorityDueDate: req.TaxAuthorityDueDate,
		InternalDueDate:     req.InternalDueDate,
	}
	if err := s.store.UpdateDeadlines(ctx, firmID, id, deadlines); err != nil {
		return nil, mapDeclarationErr(err, "failed to update deadlines")
	}
	return s.Get(ctx, firmID, id)
}

// UpdatePenalty replaces the late-filing penalty details.
func (s *DeclarationService) UpdatePenalty(ctx context.Context, firmID, id string, req dto.PenaltyRequest) (*models.Declaration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid penalty payload")
	}
	penalty := models.DeclarationPenalty{
		WasSubmittedLate: req.WasSubmittedLate,
		Status:           req.Status,
		ReceivedDate:     req.ReceivedDate,
		AppealDate:       req.AppealDate,
		PaidDate:         req.PaidDate,
	}
	if req.Amount != nil {
		if req.Amount.IsNegative() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "penalty amount cannot be negative")
		}
		penalty.Amount = decimal.NewNullDecimal(req.Amount.Round(2))
	}
	if err := s.store.UpdatePenalty(ctx, firmID, id, penalty); err != nil {
		return nil, mapDeclarationErr(err, "failed to update penalty")
	}
	return s.Get(ctx, firmID, id)
}

func mapDeclarationErr(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "declaration not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
