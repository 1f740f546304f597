package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/capital-declarations-api/internal/models"
	"github.com/noah-isme/capital-declarations-api/internal/repository"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
)

type declarationStatusStore interface {
	GetByID(ctx context.Context, firmID, id string) (*models.Declaration, error)
	ApplyTransition(ctx context.Context, params repository.TransitionParams) (*models.StatusHistoryEntry, error)
}

// StatusPredicate decides whether a conditional transition may leave the current status.
type StatusPredicate func(current models.DeclarationStatus) bool

// StatusIn allows the transition only from the listed statuses.
func StatusIn(statuses ...models.DeclarationStatus) StatusPredicate {
	return func(current models.DeclarationStatus) bool {
		for _, s := range statuses {
			if s == current {
				return true
			}
		}
		return false
	}
}

// StatusBefore allows the transition only while the declaration has not reached target.
func StatusBefore(target models.DeclarationStatus) StatusPredicate {
	return func(current models.DeclarationStatus) bool {
		return current.Rank() < target.Rank()
	}
}

var errTransitionNotAllowed = errors.New("transition not allowed from current status")

// maxTransitionAttempts bounds the optimistic retry loop: the first attempt plus one retry.
const maxTransitionAttempts = 2

// StatusService applies audited status transitions to declarations.
type StatusService struct {
	store   declarationStatusStore
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewStatusService constructs the status machine.
func NewStatusService(store declarationStatusStore, metrics *MetricsService, logger *zap.Logger) *StatusService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusService{store: store, metrics: metrics, logger: logger, now: time.Now}
}

// Transition moves a declaration to status to on behalf of actor. Any status
// may follow any other; repeating the current status is rejected.
func (s *StatusService) Transition(ctx context.Context, firmID, declarationID string, to models.DeclarationStatus, note string, actor models.Actor) (*models.StatusHistoryEntry, error) {
	return s.apply(ctx, firmID, declarationID, nil, to, note, actor)
}

// TransitionIf applies the transition only when allow accepts the current
// status. A refused or no-op transition reports false without error.
func (s *StatusService) TransitionIf(ctx context.Context, firmID, declarationID string, allow StatusPredicate, to models.DeclarationStatus, note string, actor models.Actor) (bool, error) {
	_, err := s.apply(ctx, firmID, declarationID, allow, to, note, actor)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errTransitionNotAllowed), isAppError(err, appErrors.ErrNoOpTransition):
		return false, nil
	default:
		return false, err
	}
}

// AutoTransition is TransitionIf performed by the system actor.
func (s *StatusService) AutoTransition(ctx context.Context, firmID, declarationID string, allow StatusPredicate, to models.DeclarationStatus, note string) (bool, error) {
	return s.TransitionIf(ctx, firmID, declarationID, allow, to, note, models.SystemActor())
}

func (s *StatusService) apply(ctx context.Context, firmID, declarationID string, allow StatusPredicate, to models.DeclarationStatus, note string, actor models.Actor) (*models.StatusHistoryEntry, error) {
	if !to.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidStatus, "unknown declaration status: "+string(to))
	}

	var notePtr *string
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		notePtr = &trimmed
	}

	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		decl, err := s.store.GetByID(ctx, firmID, declarationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "declaration not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load declaration")
		}
		if decl.Status == to {
			return nil, appErrors.Clone(appErrors.ErrNoOpTransition, "")
		}
		if allow != nil && !allow(decl.Status) {
			return nil, errTransitionNotAllowed
		}

		entry, err := s.store.ApplyTransition(ctx, repository.TransitionParams{
			FirmID:        firmID,
			DeclarationID: declarationID,
			From:          decl.Status,
			To:            to,
			Note:          notePtr,
			Actor:         actor,
			At:            s.now().UTC(),
		})
		if errors.Is(err, repository.ErrStatusConflict) {
			s.logger.Debug("declaration status changed during transition",
				zap.String("declaration_id", declarationID),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply status transition")
		}

		s.metrics.RecordTransition(to, actor)
		s.logger.Info("declaration status changed",
			zap.String("firm_id", firmID),
			zap.String("declaration_id", declarationID),
			zap.String("from", string(decl.Status)),
			zap.String("to", string(to)),
			zap.Stringer("actor", actor),
		)
		return entry, nil
	}

	return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "")
}

func isAppError(err error, target *appErrors.Error) bool {
	var appErr *appErrors.Error
	return errors.As(err, &appErr) && appErr.Code == target.Code
}
