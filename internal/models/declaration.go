package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeclarationStatus is the closed set of workflow states a declaration moves through.
type DeclarationStatus string

const (
	DeclarationStatusDraft             DeclarationStatus = "draft"
	DeclarationStatusSent              DeclarationStatus = "sent"
	DeclarationStatusInProgress        DeclarationStatus = "in_progress"
	DeclarationStatusWaitingDocuments  DeclarationStatus = "waiting_documents"
	DeclarationStatusDocumentsReceived DeclarationStatus = "documents_received"
	DeclarationStatusReviewing         DeclarationStatus = "reviewing"
	DeclarationStatusInPreparation     DeclarationStatus = "in_preparation"
	DeclarationStatusPendingApproval   DeclarationStatus = "pending_approval"
	DeclarationStatusSubmitted         DeclarationStatus = "submitted"
	DeclarationStatusWaiting           DeclarationStatus = "waiting"
	DeclarationStatusCompleted         DeclarationStatus = "completed"
)

// declarationStatusOrder lists statuses in rough progress order. The index is the rank.
var declarationStatusOrder = [...]DeclarationStatus{
	DeclarationStatusDraft,
	DeclarationStatusSent,
	DeclarationStatusInProgress,
	DeclarationStatusWaitingDocuments,
	DeclarationStatusDocumentsReceived,
	DeclarationStatusReviewing,
	DeclarationStatusInPreparation,
	DeclarationStatusPendingApproval,
	DeclarationStatusSubmitted,
	DeclarationStatusWaiting,
	DeclarationStatusCompleted,
}

var declarationStatusRank = func() map[DeclarationStatus]int {
	ranks := make(map[DeclarationStatus]int, len(declarationStatusOrder))
	for i, s := range declarationStatusOrder {
		ranks[s] = i
	}
	return ranks
}()

// AllDeclarationStatuses returns the statuses in progress order.
func AllDeclarationStatuses() []DeclarationStatus {
	out := make([]DeclarationStatus, len(declarationStatusOrder))
	copy(out, declarationStatusOrder[:])
	return out
}

// Valid reports whether s belongs to the closed status set.
func (s DeclarationStatus) Valid() bool {
	_, ok := declarationStatusRank[s]
	return ok
}

// Rank returns the progress position of s, or -1 for unknown values.
func (s DeclarationStatus) Rank() int {
	if r, ok := declarationStatusRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether policy treats s as finished. Transitions out of
// terminal states are still permitted.
func (s DeclarationStatus) IsTerminal() bool {
	return s == DeclarationStatusSubmitted || s == DeclarationStatusCompleted
}

// PenaltyStatus tracks the late-filing penalty handling.
type PenaltyStatus string

const (
	PenaltyStatusPending   PenaltyStatus = "pending"
	PenaltyStatusAppealed  PenaltyStatus = "appealed"
	PenaltyStatusReduced   PenaltyStatus = "reduced"
	PenaltyStatusCancelled PenaltyStatus = "cancelled"
	PenaltyStatusPaid      PenaltyStatus = "paid"
)

// Declaration is one client's capital declaration filing for a tax year.
type Declaration struct {
	ID       string            `db:"id" json:"id"`
	FirmID   string            `db:"firm_id" json:"firmId"`
	ClientID string            `db:"client_id" json:"clientId"`
	TaxYear  int               `db:"tax_year" json:"taxYear"`
	Status   DeclarationStatus `db:"status" json:"status"`

	PublicToken          *string    `db:"public_token" json:"-"`
	PublicTokenExpiresAt *time.Time `db:"public_token_expires_at" json:"publicTokenExpiresAt,omitempty"`
	PublicTokenRenewedAt *time.Time `db:"public_token_renewed_at" json:"publicTokenRenewedAt,omitempty"`
	PortalAccessedAt     *time.Time `db:"portal_accessed_at" json:"portalAccessedAt,omitempty"`
	PortalAccessCount    int        `db:"portal_access_count" json:"portalAccessCount"`

	AssignedTo          *string    `db:"assigned_to" json:"assignedTo,omitempty"`
	TaxAuthorityDueDate *time.Time `db:"tax_authority_due_date" json:"taxAuthorityDueDate,omitempty"`
	InternalDueDate     *time.Time `db:"internal_due_date" json:"internalDueDate,omitempty"`

	WasSubmittedLate    bool                `db:"was_submitted_late" json:"wasSubmittedLate"`
	PenaltyAmount       decimal.NullDecimal `db:"penalty_amount" json:"penaltyAmount"`
	PenaltyStatus       *PenaltyStatus      `db:"penalty_status" json:"penaltyStatus,omitempty"`
	PenaltyReceivedDate *time.Time          `db:"penalty_received_date" json:"penaltyReceivedDate,omitempty"`
	PenaltyAppealDate   *time.Time          `db:"penalty_appeal_date" json:"penaltyAppealDate,omitempty"`
	PenaltyPaidDate     *time.Time          `db:"penalty_paid_date" json:"penaltyPaidDate,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	ClientName string `db:"client_name" json:"clientName,omitempty"`
}

// HasToken reports whether a portal link is currently attached.
func (d *Declaration) HasToken() bool {
	return d.PublicToken != nil && *d.PublicToken != ""
}

// TokenExpired reports whether the attached token expired before now.
func (d *Declaration) TokenExpired(now time.Time) bool {
	return d.PublicTokenExpiresAt != nil && d.PublicTokenExpiresAt.Before(now)
}

// HasPenalty reports whether the penalty sub-record is populated.
func (d *Declaration) HasPenalty() bool {
	return d.WasSubmittedLate || d.PenaltyAmount.Valid || d.PenaltyStatus != nil
}

// DeclarationFilter constrains staff listing queries. FirmID is mandatory.
type DeclarationFilter struct {
	FirmID     string
	Statuses   []DeclarationStatus
	AssignedTo string
	ClientID   string
	TaxYear    int
	Overdue    bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// DeclarationDeadlines groups the two independent due dates.
type DeclarationDeadlines struct {
	TaxAuthorityDueDate *time.Time
	InternalDueDate     *time.Time
}

// DeclarationPenalty groups the late-filing penalty columns.
type DeclarationPenalty struct {
	WasSubmittedLate bool
	Amount           decimal.NullDecimal
	Status           *PenaltyStatus
	ReceivedDate     *time.Time
	AppealDate       *time.Time
	PaidDate         *time.Time
}

// PortalAccess is the counter state returned after recording a portal visit.
type PortalAccess struct {
	AccessedAt  time.Time `db:"portal_accessed_at"`
	AccessCount int       `db:"portal_access_count"`
}

// IsFirst reports whether the recorded visit was the first one ever.
func (a PortalAccess) IsFirst() bool {
	return a.AccessCount == 1
}
