package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/capital-declarations-api/internal/dto"
	"github.com/noah-isme/capital-declarations-api/internal/models"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
)

type communicationStore interface {
	Create(ctx context.Context, entry *models.CommunicationEntry) error
	ListByDeclaration(ctx context.Context, firmID, declarationID string, limit int) ([]models.CommunicationEntry, error)
}

// CommunicationService logs staff interactions with clients.
type CommunicationService struct {
	store        communicationStore
	declarations declarationReader
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewCommunicationService constructs the service.
func NewCommunicationService(store communicationStore, declarations declarationReader, validate *validator.Validate, logger *zap.Logger) *CommunicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommunicationService{store: store, declarations: declarations, validator: ensureValidator(validate), logger: logger}
}

// Log appends a communication entry to the declaration.
func (s *CommunicationService) Log(ctx context.Context, firmID, declarationID string, actor models.Actor, req dto.CreateCommunicationRequest) (*models.CommunicationEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid communication payload")
	}
	if _, err := s.declarations.GetByID(ctx, firmID, declarationID); err != nil {
		return nil, mapDeclarationErr(err, "failed to load declaration")
	}

	entry := &models.CommunicationEntry{
		FirmID:        firmID,
		DeclarationID: declarationID,
		Type:          req.Type,
		Direction:     req.Direction,
		Subject:       trimmed(req.Subject),
		Content:       trimmed(req.Content),
		Outcome:       trimmed(req.Outcome),
		CreatedBy:     actor.Ref(),
	}
	if req.CommunicatedAt != nil {
		entry.CommunicatedAt = req.CommunicatedAt.UTC()
	}
	if err := s.store.Create(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to log communication")
	}
	s.logger.Info("communication logged",
		zap.String("declaration_id", declarationID),
		zap.String("type", string(entry.Type)),
		zap.String("direction", string(entry.Direction)),
	)
	return entry, nil
}

// List returns the communications of a declaration, newest first.
func (s *CommunicationService) List(ctx context.Context, firmID, declarationID string) ([]models.CommunicationEntry, error) {
	if _, err := s.declarations.GetByID(ctx, firmID, declarationID); err != nil {
		return nil, mapDeclarationErr(err, "failed to load declaration")
	}
	entries, err := s.store.ListByDeclaration(ctx, firmID, declarationID, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list communications")
	}
	return entries, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
