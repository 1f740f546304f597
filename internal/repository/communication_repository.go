package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/capital-declarations-api/internal/models"
)

// CommunicationRepository is the append-only log of client interactions.
type CommunicationRepository struct {
	db *sqlx.DB
}

// NewCommunicationRepository constructs the repository.
func NewCommunicationRepository(db *sqlx.DB) *CommunicationRepository {
	return &CommunicationRepository{db: db}
}

// Create appends a communication entry.
func (r *CommunicationRepository) Create(ctx context.Context, entry *models.CommunicationEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CommunicatedAt.IsZero() {
		entry.CommunicatedAt = now
	}
	entry.CreatedAt = now
	const query = `INSERT INTO declaration_communications
	(id, firm_id, declaration_id, type, direction, subject, content, outcome, communicated_at, created_by, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING seq`
	if err := r.db.GetContext(ctx, &entry.Seq, query,
		entry.ID, entry.FirmID, entry.DeclarationID, entry.Type, entry.Direction,
		entry.Subject, entry.Content, entry.Outcome, entry.CommunicatedAt, entry.CreatedBy, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("create communication: %w", err)
	}
	return nil
}

// ListByDeclaration returns entries newest first. A limit <= 0 returns all of them.
func (r *CommunicationRepository) ListByDeclaration(ctx context.Context, firmID, declarationID string, limit int) ([]models.CommunicationEntry, error) {
	query := `SELECT id, firm_id, declaration_id, type, direction, subject, content, outcome, communicated_at, created_by, created_at, seq
	FROM declaration_communications
	WHERE declaration_id = $1 AND firm_id = $2
	ORDER BY communicated_at DESC, seq DESC`
	args := []interface{}{declarationID, firmID}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}
	var entries []models.CommunicationEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list communications: %w", err)
	}
	return entries, nil
}
