package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/capital-declarations-api/internal/models"
)

const documentColumns = `id, firm_id, declaration_id, file_type, category, file_name, file_url, storage_key, size_bytes,
	mime_type, status, uploaded_by, reviewed_by, reviewed_at, review_note, uploaded_at`

// DocumentRepository persists uploaded declaration documents.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document row in pending review.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = models.DocumentStatusPending
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO declaration_documents
	(id, firm_id, declaration_id, file_type, category, file_name, file_url, storage_key, size_bytes, mime_type, status, uploaded_by, uploaded_at)
	VALUES (:id, :firm_id, :declaration_id, :file_type, :category, :file_name, :file_url, :storage_key, :size_bytes, :mime_type, :status, :uploaded_by, :uploaded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID fetches a document scoped to its firm.
func (r *DocumentRepository) GetByID(ctx context.Context, firmID, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM declaration_documents WHERE id = $1 AND firm_id = $2`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id, firmID); err != nil {
		return nil, missingOnMalformedID(err)
	}
	return &doc, nil
}

// ListByDeclaration returns the documents of one declaration, newest first.
func (r *DocumentRepository) ListByDeclaration(ctx context.Context, firmID, declarationID string) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM declaration_documents
	WHERE declaration_id = $1 AND firm_id = $2 ORDER BY uploaded_at DESC`
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, declarationID, firmID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// CountByType tallies uploaded documents per file type for one declaration.
func (r *DocumentRepository) CountByType(ctx context.Context, declarationID string) ([]models.DocumentTypeCount, error) {
	const query = `SELECT file_type, COUNT(*) AS count FROM declaration_documents
	WHERE declaration_id = $1 AND status <> 'rejected' GROUP BY file_type`
	var counts []models.DocumentTypeCount
	if err := r.db.SelectContext(ctx, &counts, query, declarationID); err != nil {
		return nil, fmt.Errorf("count documents by type: %w", err)
	}
	return counts, nil
}

// UpdateReview records a staff review decision.
func (r *DocumentRepository) UpdateReview(ctx context.Context, firmID, id string, status models.DocumentStatus, reviewerID string, note *string) error {
	const query = `UPDATE declaration_documents SET status = $1, reviewed_by = $2, reviewed_at = $3, review_note = $4
	WHERE id = $5 AND firm_id = $6`
	res, err := r.db.ExecContext(ctx, query, status, reviewerID, time.Now().UTC(), note, id, firmID)
	if err != nil {
		if errors.Is(missingOnMalformedID(err), sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("review document: %w", err)
	}
	return requireRow(res, "review document")
}
