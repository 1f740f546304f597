package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/capital-declarations-api/internal/models"
)

// StatusHistoryRepository is the append-only writer and reader of status changes.
type StatusHistoryRepository struct {
	db *sqlx.DB
}

// NewStatusHistoryRepository constructs the repository.
func NewStatusHistoryRepository(db *sqlx.DB) *StatusHistoryRepository {
	return &StatusHistoryRepository{db: db}
}

// AppendTx inserts entry inside tx and fills its id and timeline sequence.
func (r *StatusHistoryRepository) AppendTx(ctx context.Context, tx *sqlx.Tx, entry *models.StatusHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const query = `INSERT INTO declaration_status_history
	(id, firm_id, declaration_id, from_status, to_status, notes, changed_by, changed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING seq`
	if err := tx.GetContext(ctx, &entry.Seq, query,
		entry.ID, entry.FirmID, entry.DeclarationID, entry.FromStatus, entry.ToStatus,
		entry.Notes, entry.ChangedBy, entry.ChangedAt,
	); err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

// ListByDeclaration returns entries newest first. A limit <= 0 returns all of them.
func (r *StatusHistoryRepository) ListByDeclaration(ctx context.Context, firmID, declarationID string, limit int) ([]models.StatusHistoryEntry, error) {
	query := `SELECT id, firm_id, declaration_id, from_status, to_status, notes, changed_by, changed_at, seq
	FROM declaration_status_history
	WHERE declaration_id = $1 AND firm_id = $2
	ORDER BY changed_at DESC, seq DESC`
	args := []interface{}{declarationID, firmID}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}
	var entries []models.StatusHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return entries, nil
}
