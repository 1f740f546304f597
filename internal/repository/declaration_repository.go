package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/capital-declarations-api/internal/models"
)

var (
	// ErrStatusConflict means the declaration status changed between read and write.
	ErrStatusConflict = errors.New("declaration status changed concurrently")
	// ErrTokenCollision means a freshly generated portal token already exists.
	ErrTokenCollision = errors.New("portal token collision")
)

const (
	uniqueViolation      = "23505"
	invalidTextRepresent = "22P02"
)

// missingOnMalformedID reports a malformed uuid argument as a missing row.
func missingOnMalformedID(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == invalidTextRepresent {
		return sql.ErrNoRows
	}
	return err
}

const declarationColumns = `d.id, d.firm_id, d.client_id, d.tax_year, d.status,
	d.public_token, d.public_token_expires_at, d.public_token_renewed_at, d.portal_accessed_at, d.portal_access_count,
	d.assigned_to, d.tax_authority_due_date, d.internal_due_date,
	d.was_submitted_late, d.penalty_amount, d.penalty_status, d.penalty_received_date, d.penalty_appeal_date, d.penalty_paid_date,
	d.created_at, d.updated_at`

var declarationSortColumns = map[string]string{
	"created_at":             "d.created_at",
	"updated_at":             "d.updated_at",
	"tax_year":               "d.tax_year",
	"status":                 "d.status",
	"tax_authority_due_date": "d.tax_authority_due_date",
	"internal_due_date":      "d.internal_due_date",
}

type historyAppender interface {
	AppendTx(ctx context.Context, tx *sqlx.Tx, entry *models.StatusHistoryEntry) error
}

// DeclarationRepository persists declarations and their portal token state.
type DeclarationRepository struct {
	db      *sqlx.DB
	history historyAppender
	psql    sq.StatementBuilderType
}

// NewDeclarationRepository constructs the repository. Status changes are
// audited through history inside the same transaction.
func NewDeclarationRepository(db *sqlx.DB, history historyAppender) *DeclarationRepository {
	return &DeclarationRepository{
		db:      db,
		history: history,
		psql:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Create inserts a draft declaration together with the history entry that establishes its status.
func (r *DeclarationRepository) Create(ctx context.Context, decl *models.Declaration, actor models.Actor) (err error) {
	now := time.Now().UTC()
	if decl.ID == "" {
		decl.ID = uuid.NewString()
	}
	decl.Status = models.DeclarationStatusDraft
	decl.CreatedAt = now
	decl.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create declaration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO declarations
	(id, firm_id, client_id, tax_year, status, assigned_to, tax_authority_due_date, internal_due_date, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err = tx.ExecContext(ctx, insertQuery,
		decl.ID, decl.FirmID, decl.ClientID, decl.TaxYear, decl.Status,
		decl.AssignedTo, decl.TaxAuthorityDueDate, decl.InternalDueDate, now, now,
	); err != nil {
		return fmt.Errorf("insert declaration: %w", err)
	}

	note := "declaration created"
	if err = r.history.AppendTx(ctx, tx, &models.StatusHistoryEntry{
		FirmID:        decl.FirmID,
		DeclarationID: decl.ID,
		ToStatus:      decl.Status,
		Notes:         &note,
		ChangedBy:     actor.Ref(),
		ChangedAt:     now,
	}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create declaration: %w", err)
	}
	return nil
}

// GetByID fetches a declaration scoped to its firm.
func (r *DeclarationRepository) GetByID(ctx context.Context, firmID, id string) (*models.Declaration, error) {
	query := `SELECT ` + declarationColumns + `, c.full_name AS client_name
	FROM declarations d JOIN clients c ON c.id = d.client_id
	WHERE d.id = $1 AND d.firm_id = $2`
	var decl models.Declaration
	if err := r.db.GetContext(ctx, &decl, query, id, firmID); err != nil {
		return nil, missingOnMalformedID(err)
	}
	return &decl, nil
}

// FindForPortal fetches a declaration by id alone. Callers must authorize with the token.
func (r *DeclarationRepository) FindForPortal(ctx context.Context, id string) (*models.Declaration, error) {
	query := `SELECT ` + declarationColumns + ` FROM declarations d WHERE d.id = $1`
	var decl models.Declaration
	if err := r.db.GetContext(ctx, &decl, query, id); err != nil {
		return nil, missingOnMalformedID(err)
	}
	return &decl, nil
}

// GetByToken fetches the declaration holding the given portal token.
func (r *DeclarationRepository) GetByToken(ctx context.Context, token string) (*models.Declaration, error) {
	query := `SELECT ` + declarationColumns + ` FROM declarations d WHERE d.public_token = $1`
	var decl models.Declaration
	if err := r.db.GetContext(ctx, &decl, query, token); err != nil {
		return nil, err
	}
	return &decl, nil
}

// List returns declarations for one firm with pagination and the total match count.
func (r *DeclarationRepository) List(ctx context.Context, filter models.DeclarationFilter) ([]models.Declaration, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 25
	}

	countQuery, countArgs, err := r.applyFilter(r.psql.Select("COUNT(*)"), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count declarations: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count declarations: %w", err)
	}

	sortColumn, ok := declarationSortColumns[filter.SortBy]
	if !ok {
		sortColumn = "d.created_at"
	}
	direction := "DESC"
	if filter.SortOrder == "asc" || filter.SortOrder == "ASC" {
		direction = "ASC"
	}

	listQuery, listArgs, err := r.applyFilter(r.psql.Select(declarationColumns, "c.full_name AS client_name"), filter).
		OrderBy(sortColumn+" "+direction, "d.id").
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list declarations: %w", err)
	}

	var items []models.Declaration
	if err := r.db.SelectContext(ctx, &items, listQuery, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list declarations: %w", err)
	}
	return items, total, nil
}

func (r *DeclarationRepository) applyFilter(b sq.SelectBuilder, filter models.DeclarationFilter) sq.SelectBuilder {
	b = b.From("declarations d").
		Join("clients c ON c.id = d.client_id").
		Where(sq.Eq{"d.firm_id": filter.FirmID})
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		b = b.Where(sq.Eq{"d.status": statuses})
	}
	if filter.AssignedTo != "" {
		b = b.Where(sq.Eq{"d.assigned_to": filter.AssignedTo})
	}
	if filter.ClientID != "" {
		b = b.Where(sq.Eq{"d.client_id": filter.ClientID})
	}
	if filter.TaxYear > 0 {
		b = b.Where(sq.Eq{"d.tax_year": filter.TaxYear})
	}
	if filter.Overdue {
		b = b.Where("d.tax_authority_due_date < CURRENT_DATE").
			Where(sq.NotEq{"d.status": []string{string(models.DeclarationStatusSubmitted), string(models.DeclarationStatusCompleted)}})
	}
	return b
}

// TransitionParams describes one compare-and-swap status change.
type TransitionParams struct {
	FirmID        string
	DeclarationID string
	From          models.DeclarationStatus
	To            models.DeclarationStatus
	Note          *string
	Actor         models.Actor
	At            time.Time
}

// ApplyTransition swaps the status from params.From to params.To and appends the
// audit entry in one transaction. ErrStatusConflict is returned when the stored
// status no longer equals params.From.
func (r *DeclarationRepository) ApplyTransition(ctx context.Context, params TransitionParams) (entry *models.StatusHistoryEntry, err error) {
	at := params.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const updateQuery = `UPDATE declarations SET status = $1, updated_at = $2
	WHERE id = $3 AND firm_id = $4 AND status = $5`
	res, err := tx.ExecContext(ctx, updateQuery, params.To, at, params.DeclarationID, params.FirmID, params.From)
	if err != nil {
		return nil, fmt.Errorf("update declaration status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check declaration status rows: %w", err)
	}
	if rows == 0 {
		err = ErrStatusConflict
		return nil, err
	}

	from := params.From
	entry = &models.StatusHistoryEntry{
		FirmID:        params.FirmID,
		DeclarationID: params.DeclarationID,
		FromStatus:    &from,
		ToStatus:      params.To,
		Notes:         params.Note,
		ChangedBy:     params.Actor.Ref(),
		ChangedAt:     at,
	}
	if err = r.history.AppendTx(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return entry, nil
}

// IssueToken stores a new portal token and resets the access counters.
func (r *DeclarationRepository) IssueToken(ctx context.Context, firmID, id, token string, expiresAt time.Time) error {
	const query = `UPDATE declarations SET public_token = $1, public_token_expires_at = $2, public_token_renewed_at = NULL,
	portal_accessed_at = NULL, portal_access_count = 0, updated_at = $3
	WHERE id = $4 AND firm_id = $5`
	res, err := r.db.ExecContext(ctx, query, token, expiresAt, time.Now().UTC(), id, firmID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrTokenCollision
		}
		return fmt.Errorf("issue portal token: %w", err)
	}
	return requireRow(res, "issue portal token")
}

// RenewToken slides the token expiry forward to at least target. Expiry never
// moves backwards and an already expired token is not revived.
func (r *DeclarationRepository) RenewToken(ctx context.Context, id, token string, target, now time.Time) (time.Time, error) {
	const query = `UPDATE declarations
	SET public_token_expires_at = GREATEST(COALESCE(public_token_expires_at, $1), $1), public_token_renewed_at = $2
	WHERE id = $3 AND public_token = $4 AND (public_token_expires_at IS NULL OR public_token_expires_at >= $2)
	RETURNING public_token_expires_at`
	var expiresAt time.Time
	if err := r.db.GetContext(ctx, &expiresAt, query, target, now, id, token); err != nil {
		return time.Time{}, err
	}
	return expiresAt, nil
}

// RevokeToken detaches the portal link from a declaration.
func (r *DeclarationRepository) RevokeToken(ctx context.Context, firmID, id string) error {
	const query = `UPDATE declarations SET public_token = NULL, public_token_expires_at = NULL, public_token_renewed_at = NULL, updated_at = $1
	WHERE id = $2 AND firm_id = $3`
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id, firmID)
	if err != nil {
		return fmt.Errorf("revoke portal token: %w", err)
	}
	return requireRow(res, "revoke portal token")
}

// RecordPortalAccess atomically bumps the access counter and stamps the first access time.
func (r *DeclarationRepository) RecordPortalAccess(ctx context.Context, id, token string, now time.Time) (models.PortalAccess, error) {
	const query = `UPDATE declarations
	SET portal_access_count = portal_access_count + 1, portal_accessed_at = COALESCE(portal_accessed_at, $1)
	WHERE id = $2 AND public_token = $3
	RETURNING portal_accessed_at, portal_access_count`
	var access models.PortalAccess
	if err := r.db.GetContext(ctx, &access, query, now, id, token); err != nil {
		return models.PortalAccess{}, err
	}
	return access, nil
}

// UpdateAssignment sets or clears the responsible staff member.
func (r *DeclarationRepository) UpdateAssignment(ctx context.Context, firmID, id string, assignedTo *string) error {
	const query = `UPDATE declarations SET assigned_to = $1, updated_at = $2 WHERE id = $3 AND firm_id = $4`
	res, err := r.db.ExecContext(ctx, query, assignedTo, time.Now().UTC(), id, firmID)
	if err != nil {
		if errors.Is(missingOnMalformedID(err), sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("update declaration assignment: %w", err)
	}
	return requireRow(res, "update declaration assignment")
}

// UpdateDeadlines replaces both due dates.
func (r *DeclarationRepository) UpdateDeadlines(ctx context.Context, firmID, id string, deadlines models.DeclarationDeadlines) error {
	const query = `UPDATE declarations SET tax_authority_due_date = $1, internal_due_date = $2, updated_at = $3
	WHERE id = $4 AND firm_id = $5`
	res, err := r.db.ExecContext(ctx, query, deadlines.TaxAuthorityDueDate, deadlines.InternalDueDate, time.Now().UTC(), id, firmID)
	if err != nil {
		if errors.Is(missingOnMalformedID(err), sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("update declaration deadlines: %w", err)
	}
	return requireRow(res, "update declaration deadlines")
}

// UpdatePenalty replaces the penalty sub-record.
func (r *DeclarationRepository) UpdatePenalty(ctx context.Context, firmID, id string, penalty models.DeclarationPenalty) error {
	const query = `UPDATE declarations SET was_submitted_late = $1, penalty_amount = $2, penalty_status = $3,
	penalty_received_date = $4, penalty_appeal_date = $5, penalty_paid_date = $6, updated_at = $7
	WHERE id = $8 AND firm_id = $9`
	res, err := r.db.ExecContext(ctx, query,
		penalty.WasSubmittedLate, penalty.Amount, penalty.Status,
		penalty.ReceivedDate, penalty.AppealDate, penalty.PaidDate,
		time.Now().UTC(), id, firmID,
	)
	if err != nil {
		if errors.Is(missingOnMalformedID(err), sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("update declaration penalty: %w", err)
	}
	return requireRow(res, "update declaration penalty")
}

func requireRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
