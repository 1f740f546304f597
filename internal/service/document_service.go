package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/capital-declarations-api/internal/dto"
	"github.com/noah-isme/capital-declarations-api/internal/models"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
)

type documentStore interface {
	GetByID(ctx context.Context, firmID, id string) (*models.Document, error)
	ListByDeclaration(ctx context.Context, firmID, declarationID string) ([]models.Document, error)
	UpdateReview(ctx context.Context, firmID, id string, status models.DocumentStatus, reviewerID string, note *string) error
}

type blobReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type urlSigner interface {
	Sign(documentID, key string) (string, time.Time, error)
	Verify(token string) (string, string, error)
}

// DocumentService lets staff review and download client uploads.
type DocumentService struct {
	store        documentStore
	declarations declarationReader
	blobs        blobReader
	signer       urlSigner
	downloadURL  string
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewDocumentService constructs the service. downloadURL is the absolute or
// relative path of the signed download endpoint.
func NewDocumentService(store documentStore, declarations declarationReader, blobs blobReader, signer urlSigner, downloadURL string, validate *validator.Validate, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		store:        store,
		declarations: declarations,
		blobs:        blobs,
		signer:       signer,
		downloadURL:  downloadURL,
		validator:    ensureValidator(validate),
		logger:       logger,
	}
}

// List returns the documents uploaded for a declaration.
func (s *DocumentService) List(ctx context.Context, firmID, declarationID string) ([]models.Document, error) {
	if _, err := s.declarations.GetByID(ctx, firmID, declarationID); err != nil {
		return nil, mapDeclarationErr(err, "failed to load declaration")
	}
	docs, err := s.store.ListByDeclaration(ctx, firmID, declarationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// Review records the staff decision on a document.
func (s *DocumentService) Review(ctx context.Context, firmID, declarationID, documentID string, actor models.Actor, req dto.ReviewDocumentRequest) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	reviewer, ok := actor.StaffID()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "documents are reviewed by staff")
	}
	doc, err := s.load(ctx, firmID, declarationID, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateReview(ctx, firmID, doc.ID, req.Status, reviewer, trimmed(req.Note)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review document")
	}
	s.logger.Info("document reviewed",
		zap.String("document_id", doc.ID),
		zap.String("status", string(req.Status)),
		zap.String("reviewer", reviewer),
	)
	return s.load(ctx, firmID, declarationID, documentID)
}

// DownloadLink returns a short-lived signed URL for a document.
func (s *DocumentService) DownloadLink(ctx context.Context, firmID, declarationID, documentID string) (*dto.DocumentDownload, error) {
	doc, err := s.load(ctx, firmID, declarationID, documentID)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Sign(doc.ID, doc.StorageKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &dto.DocumentDownload{
		URL:       s.downloadURL + "?token=" + url.QueryEscape(token),
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// Open resolves a signed token into the stored bytes. The caller closes the reader.
func (s *DocumentService) Open(ctx context.Context, token string) (io.ReadCloser, string, error) {
	_, key, err := s.signer.Verify(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download link")
	}
	rc, err := s.blobs.Open(ctx, key)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "file not found")
	}
	return rc, key, nil
}

func (s *DocumentService) load(ctx context.Context, firmID, declarationID, documentID string) (*models.Document, error) {
	doc, err := s.store.GetByID(ctx, firmID, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.DeclarationID != declarationID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	return doc, nil
}
