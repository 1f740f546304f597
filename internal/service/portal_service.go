package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/capital-declarations-api/internal/dto"
	"github.com/noah-isme/capital-declarations-api/internal/models"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
	"github.com/noah-isme/capital-declarations-api/pkg/storage"
)

// Notes recorded on transitions triggered by client activity.
const (
	NoteFirstPortalView   = "client viewed portal for first time"
	NoteDocumentsUploaded = "client uploaded documents"
	NoteDocumentsComplete = "client finished document upload"
)

type portalDeclarationStore interface {
	GetByToken(ctx context.Context, token string) (*models.Declaration, error)
	RecordPortalAccess(ctx context.Context, id, token string, now time.Time) (models.PortalAccess, error)
}

type portalTokens interface {
	Validate(ctx context.Context, declarationID, token string) (models.TokenCheck, error)
	Renew(ctx context.Context, declarationID, token string) (time.Time, error)
}

type autoTransitioner interface {
	AutoTransition(ctx context.Context, firmID, declarationID string, allow StatusPredicate, to models.DeclarationStatus, note string) (bool, error)
}

type portalFirms interface {
	GetBranding(ctx context.Context, firmID string) (*models.FirmBranding, error)
	GetClient(ctx context.Context, firmID, clientID string) (*models.Client, error)
}

type portalDocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	CountByType(ctx context.Context, declarationID string) ([]models.DocumentTypeCount, error)
}

// FileStore persists uploaded bytes outside the database.
type FileStore interface {
	Store(ctx context.Context, data []byte, fileName, folder string) (storage.StoredFile, error)
	Delete(ctx context.Context, key string) error
}

// PortalUploadConfig bounds what clients may upload.
type PortalUploadConfig struct {
	MaxBytes     int64
	AllowedMIMEs []string
}

// PortalService is the unauthenticated gateway used by clients holding a portal link.
type PortalService struct {
	declarations portalDeclarationStore
	tokens       portalTokens
	status       autoTransitioner
	firms        portalFirms
	documents    portalDocumentStore
	files        FileStore
	uploads      PortalUploadConfig
	validator    *validator.Validate
	metrics      *MetricsService
	logger       *zap.Logger
	now          func() time.Time
}

// PortalServiceDeps groups the collaborators of the portal gateway.
type PortalServiceDeps struct {
	Declarations portalDeclarationStore
	Tokens       portalTokens
	Status       autoTransitioner
	Firms        portalFirms
	Documents    portalDocumentStore
	Files        FileStore
	Uploads      PortalUploadConfig
	Validator    *validator.Validate
	Metrics      *MetricsService
	Logger       *zap.Logger
}

// NewPortalService constructs the gateway.
func NewPortalService(deps PortalServiceDeps) *PortalService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Uploads.MaxBytes <= 0 {
		deps.Uploads.MaxBytes = 20 << 20
	}
	return &PortalService{
		declarations: deps.Declarations,
		tokens:       deps.Tokens,
		status:       deps.Status,
		firms:        deps.Firms,
		documents:    deps.Documents,
		files:        deps.Files,
		uploads:      deps.Uploads,
		validator:    ensureValidator(deps.Validator),
		metrics:      deps.Metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// GetView resolves a portal token into what the client sees. The token alone
// identifies the declaration. An expired token yields a restricted view and
// leaves counters and expiry untouched.
func (s *PortalService) GetView(ctx context.Context, token string) (*models.PortalView, error) {
	if token == "" {
		s.metrics.RecordPortalView(PortalOutcomeInvalid)
		return nil, appErrors.Clone(appErrors.ErrInvalidLink, "")
	}
	decl, err := s.declarations.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordPortalView(PortalOutcomeInvalid)
			return nil, appErrors.Clone(appErrors.ErrInvalidLink, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve portal link")
	}

	firm, err := s.firms.GetBranding(ctx, decl.FirmID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if decl.TokenExpired(now) {
		s.metrics.RecordPortalView(PortalOutcomeExpired)
		return &models.PortalView{
			IsExpired:   true,
			Declaration: portalSummary(decl),
			Firm:        models.FirmBranding{ID: firm.ID, Name: firm.Name},
		}, nil
	}

	access, err := s.declarations.RecordPortalAccess(ctx, decl.ID, token, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// token was replaced or revoked after the lookup
			s.metrics.RecordPortalView(PortalOutcomeInvalid)
			return nil, appErrors.Clone(appErrors.ErrInvalidLink, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record portal access")
	}
	decl.PortalAccessCount = access.AccessCount
	accessedAt := access.AccessedAt
	decl.PortalAccessedAt = &accessedAt

	if access.IsFirst() {
		s.metrics.RecordPortalView(PortalOutcomeFirst)
		if decl.Status == models.DeclarationStatusSent {
			applied, err := s.status.AutoTransition(ctx, decl.FirmID, decl.ID,
				StatusIn(models.DeclarationStatusSent), models.DeclarationStatusInProgress, NoteFirstPortalView)
			if err != nil {
				s.logger.Warn("first view transition failed", zap.String("declaration_id", decl.ID), zap.Error(err))
			} else if applied {
				decl.Status = models.DeclarationStatusInProgress
			}
		}
	} else {
		s.metrics.RecordPortalView(PortalOutcomeRepeat)
	}

	if expiresAt, err := s.tokens.Renew(ctx, decl.ID, token); err != nil {
		s.logger.Warn("portal token renewal failed", zap.String("declaration_id", decl.ID), zap.Error(err))
	} else {
		decl.PublicTokenExpiresAt = &expiresAt
	}

	view := &models.PortalView{
		IsFirstAccess: access.IsFirst(),
		Declaration:   portalSummary(decl),
		Firm:          *firm,
		UploadedTypes: map[string]bool{},
	}

	if client, err := s.firms.GetClient(ctx, decl.FirmID, decl.ClientID); err != nil {
		s.logger.Warn("portal client lookup failed", zap.String("declaration_id", decl.ID), zap.Error(err))
	} else {
		view.Client = client
	}

	counts, err := s.documents.CountByType(ctx, decl.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load uploaded documents")
	}
	for _, c := range counts {
		if c.Count > 0 {
			view.UploadedTypes[c.FileType] = true
		}
	}

	return view, nil
}

// UploadDocument stores a client file against the declaration. Bytes are
// stored before the row is written; a failed insert removes the stored blob.
func (s *PortalService) UploadDocument(ctx context.Context, declarationID, token string, upload dto.PortalUpload) (*models.Document, error) {
	decl, err := s.authorize(ctx, declarationID, token)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(upload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload")
	}
	size := int64(len(upload.Data))
	if size == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	if size > s.uploads.MaxBytes {
		s.metrics.RecordPortalUpload("too_large")
		return nil, appErrors.Clone(appErrors.ErrTooLarge, "file exceeds the upload limit")
	}

	detected := mimetype.Detect(upload.Data)
	if !s.mimeAllowed(detected) {
		s.metrics.RecordPortalUpload("unsupported_type")
		return nil, appErrors.Clone(appErrors.ErrUnsupportedMedia, "unsupported file type: "+detected.String())
	}
	mimeType := detected.String()

	stored, err := s.files.Store(ctx, upload.Data, upload.FileName, "declarations/"+decl.ID)
	if err != nil {
		s.metrics.RecordPortalUpload("storage_failure")
		s.logger.Error("portal upload storage failed", zap.String("declaration_id", decl.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, appErrors.ErrStorageFailure.Message)
	}

	doc := &models.Document{
		ID:            uuid.NewString(),
		FirmID:        decl.FirmID,
		DeclarationID: decl.ID,
		FileType:      upload.FileType,
		Category:      models.CategoryForFileType(upload.FileType),
		FileName:      upload.FileName,
		FileURL:       stored.URL,
		StorageKey:    stored.Key,
		SizeBytes:     size,
		MimeType:      &mimeType,
		Status:        models.DocumentStatusPending,
		UploadedAt:    s.now().UTC(),
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		if delErr := s.files.Delete(ctx, stored.Key); delErr != nil {
			s.logger.Error("orphaned upload could not be removed", zap.String("key", stored.Key), zap.Error(delErr))
		}
		s.metrics.RecordPortalUpload("db_failure")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document")
	}
	s.metrics.RecordPortalUpload("ok")

	if _, err := s.status.AutoTransition(ctx, decl.FirmID, decl.ID,
		StatusBefore(models.DeclarationStatusWaitingDocuments), models.DeclarationStatusWaitingDocuments, NoteDocumentsUploaded); err != nil {
		s.logger.Warn("upload transition failed", zap.String("declaration_id", decl.ID), zap.Error(err))
	}

	s.logger.Info("portal document uploaded",
		zap.String("declaration_id", decl.ID),
		zap.String("file_type", doc.FileType),
		zap.String("category", string(doc.Category)),
		zap.Int64("size_bytes", size),
	)
	return doc, nil
}

// MarkDocumentsComplete records that the client finished uploading. Calling it
// again, or from any other status, succeeds without changing anything.
func (s *PortalService) MarkDocumentsComplete(ctx context.Context, declarationID, token string) error {
	decl, err := s.authorize(ctx, declarationID, token)
	if err != nil {
		return err
	}
	_, err = s.status.AutoTransition(ctx, decl.FirmID, decl.ID,
		StatusIn(models.DeclarationStatusInProgress, models.DeclarationStatusWaitingDocuments),
		models.DeclarationStatusDocumentsReceived, NoteDocumentsComplete)
	return err
}

func (s *PortalService) authorize(ctx context.Context, declarationID, token string) (*models.Declaration, error) {
	check, err := s.tokens.Validate(ctx, declarationID, token)
	if err != nil {
		return nil, err
	}
	if !check.Valid {
		return nil, appErrors.Clone(appErrors.ErrInvalidLink, "")
	}
	if check.Expired {
		return nil, appErrors.Clone(appErrors.ErrTokenExpired, "")
	}
	return check.Declaration, nil
}

func (s *PortalService) mimeAllowed(detected *mimetype.MIME) bool {
	if len(s.uploads.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.uploads.AllowedMIMEs {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}

func portalSummary(decl *models.Declaration) models.PortalDeclaration {
	return models.PortalDeclaration{
		ID:                   decl.ID,
		TaxYear:              decl.TaxYear,
		Status:               decl.Status,
		PublicTokenExpiresAt: decl.PublicTokenExpiresAt,
	}
}
