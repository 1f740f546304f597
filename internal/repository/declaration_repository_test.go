package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/capital-declarations-api/internal/models"
)

var declarationRowColumns = []string{
	"id", "firm_id", "client_id", "tax_year", "status",
	"public_token", "public_token_expires_at", "public_token_renewed_at", "portal_accessed_at", "portal_access_count",
	"assigned_to", "tax_authority_due_date", "internal_due_date",
	"was_submitted_late", "penalty_amount", "penalty_status", "penalty_received_date", "penalty_appeal_date", "penalty_paid_date",
	"created_at", "updated_at",
}

func newDeclarationRepoMock(t *testing.T) (*DeclarationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	t.Cleanup(func() { _ = sqlxDB.Close() })
	return NewDeclarationRepository(sqlxDB, NewStatusHistoryRepository(sqlxDB)), mock
}

func declarationRow(status string, token interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(declarationRowColumns).AddRow(
		"decl-1", "firm-1", "client-1", 2023, status,
		token, now.Add(time.Hour), nil, nil, 0,
		nil, nil, nil,
		false, nil, nil, nil, nil, nil,
		now, now,
	)
}

func TestDeclarationRepositoryCreateWritesInitialHistory(t *testing.T) {
	repo, mock := newDeclarationRepoMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO declarations")).
		WithArgs(sqlmock.AnyArg(), "firm-1", "client-1", 2023, models.DeclarationStatusDraft, nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO declaration_status_history")).
		WithArgs(sqlmock.AnyArg(), "firm-1", sqlmock.AnyArg(), nil, models.DeclarationStatusDraft, sqlmock.AnyArg(), "staff-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(1))
	mock.ExpectCommit()

	decl := &models.Declaration{FirmID: "firm-1", ClientID: "client-1", TaxYear: 2023}
	require.NoError(t, repo.Create(context.Background(), decl, models.StaffActor("staff-1")))
	assert.NotEmpty(t, decl.ID)
	assert.Equal(t, models.DeclarationStatusDraft, decl.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeclarationRepositoryApplyTransitionCommits(t *testing.T) {
	repo, mock := newDeclarationRepoMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE declarations SET status = $1, updated_at = $2")).
		WithArgs(models.DeclarationStatusInProgress, sqlmock.AnyArg(), "decl-1", "firm-1", models.DeclarationStatusSent).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO declaration_status_history")).
		WithArgs(sqlmock.AnyArg(), "firm-1", "decl-1", models.DeclarationStatusSent, models.DeclarationStatusInProgress, sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(42))
	mock.ExpectCommit()

	note := "client viewed portal for first time"
	entry, err := repo.ApplyTransition(context.Background(), TransitionParams{
		FirmID:        "firm-1",
		DeclarationID: "decl-1",
		From:          models.DeclarationStatusSent,
		To:            models.DeclarationStatusInProgress,
		Note:          &note,
		Actor:         models.SystemActor(),
	})
	require.NoError(t, err)
	require.NotNil(t, entry.FromStatus)
	assert.Equal(t, models.DeclarationStatusSent, *entry.FromStatus)
	assert.Nil(t, entry.ChangedBy)
	assert.EqualValues(t, 42, entry.Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeclarationRepositoryApplyTransitionConflict(t *testing.T) {
	repo, mock := newDeclarationRepoMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE declarations SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.ApplyTransition(context.Background(), TransitionParams{
		FirmID: "firm-1", DeclarationID: "decl-1",
		From: models.DeclarationStatusDraft, To: models.DeclarationStatusSent,
	})
	assert.ErrorIs(t, err, ErrStatusConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeclarationRepositoryApplyTransitionRollsBackOnAuditFailure(t *testing.T) {
	repo, mock := newDeclarationRepoMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE declarations SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO declaration_status_history")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	entry, err := repo.ApplyTransition(context.Background(), TransitionParams{
		FirmID: "firm-1", DeclarationID: "decl-1",
		From: models.DeclarationStatusReviewing, To: models.DeclarationStatusSubmitted,
		Actor: models.StaffActor("staff-1"),
	})
	require.Error(t, err)
	assert.Nil(t, entry)
	assert.Contains(t, err.Error(), "append status history")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeclarationRepositoryIssueTokenCollision(t *testing.T) {
	repo, mock := newDeclarationRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE declarations SET public_token = $1")).
		WillReturnError(&pq.Error{Code: "23505"})
	err := repo.IssueToken(context.Background(), "firm-1", "decl-1", "tok", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrTokenCollision)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE declarations SET public_token = $1")).
		WithArgs("tok", sqlmock.AnyArg(), sqlmock.AnyArg(), "decl-1", "firm-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.IssueToken(context.Background(), "firm-1", "decl-1", "tok", time.Now().Add(time.Hour)))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE declarations SET public_token = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.IssueToken(context.Background(), "firm-1", "missing", "tok", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeclarationRepositoryRenewToken(t *testing.T) {
	repo, mock := newDeclarationRepoMock(t)
	now := time.Now().UTC()
	target := now.Add(90 * 24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("GREATEST(COALESCE(public_token_expires_at, $1), $1)")).
		WithArgs(target, now, "decl-1", "tok").
		WillReturnRows(sqlmock.NewRows([]string{"public_token_expires_at"}).AddRow(target))

	got, err := repo.RenewToken(context.Background(), "decl-1", "tok", target, now)
	require.NoError(t, err)
	assert.Equal(t, target, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeclarationRepositoryRecordPortalAccess(t *testing.T) {
	repo, mock := newDeclarationRepoMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("portal_access_count = portal_access_count + 1")).
		WithArgs(now, "decl-1", "tok").
		WillReturnRows(sqlmock.NewRows([]string{"portal_accessed_at", "portal_access_count"}).AddRow(now, 1))

	access, err := repo.RecordPortalAccess(context.Background(), "decl-1", "tok", now)
	require.NoError(t, err)
	assert.True(t, access.IsFirst())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeclarationRepositoryGetByToken(t *testing.T) {
	repo, mock := newDeclarationRepoMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE d.public_token = $1")).
		WithArgs("tok").
		WillReturnRows(declarationRow("sent", "tok"))
	decl, err := repo.GetByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, models.DeclarationStatusSent, decl.Status)
	require.NotNil(t, decl.PublicToken)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE d.public_token = $1")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByToken(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeclarationRepositoryListFilters(t *testing.T) {
	repo, mock := newDeclarationRepoMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM declarations d JOIN clients c ON c.id = d.client_id WHERE d.firm_id = $1 AND d.status IN ($2,$3) AND d.tax_year = $4")).
		WithArgs("firm-1", "sent", "in_progress", 2023).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	cols := append(append([]string{}, declarationRowColumns...), "client_name")
	now := time.Now()
	rows := sqlmock.NewRows(cols).AddRow(
		"decl-1", "firm-1", "client-1", 2023, "sent",
		nil, nil, nil, nil, 0,
		nil, nil, nil,
		false, "120.50", "pending", nil, nil, nil,
		now, now, "Dana Levi",
	)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY d.tax_year ASC, d.id LIMIT 10 OFFSET 10")).
		WithArgs("firm-1", "sent", "in_progress", 2023).
		WillReturnRows(rows)

	items, total, err := repo.List(context.Background(), models.DeclarationFilter{
		FirmID:    "firm-1",
		Statuses:  []models.DeclarationStatus{models.DeclarationStatusSent, models.DeclarationStatusInProgress},
		TaxYear:   2023,
		Page:      2,
		PageSize:  10,
		SortBy:    "tax_year",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Dana Levi", items[0].ClientName)
	assert.True(t, items[0].PenaltyAmount.Valid)
	assert.Equal(t, "120.5", items[0].PenaltyAmount.Decimal.String())
	require.NotNil(t, items[0].PenaltyStatus)
	assert.Equal(t, models.PenaltyStatusPending, *items[0].PenaltyStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeclarationRepositoryUpdateAssignmentMissing(t *testing.T) {
	repo, mock := newDeclarationRepoMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE declarations SET assigned_to = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateAssignment(context.Background(), "firm-1", "decl-x", nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDeclarationRepositoryMalformedIDReadsAsMissing(t *testing.T) {
	repo, mock := newDeclarationRepoMock(t)
	malformed := &pq.Error{Code: "22P02"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM declarations d WHERE d.id = $1")).
		WithArgs("not-a-uuid").
		WillReturnError(malformed)
	_, err := repo.FindForPortal(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE d.id = $1 AND d.firm_id = $2")).
		WithArgs("not-a-uuid", "firm-1").
		WillReturnError(malformed)
	_, err = repo.GetByID(context.Background(), "firm-1", "not-a-uuid")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE declarations SET assigned_to = $1")).
		WillReturnError(malformed)
	err = repo.UpdateAssignment(context.Background(), "firm-1", "not-a-uuid", nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectQuery(regexp.QuoteMeta("FROM declarations d WHERE d.id = $1")).
		WillReturnError(errors.New("connection reset"))
	_, err = repo.FindForPortal(context.Background(), "decl-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
