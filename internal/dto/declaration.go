package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/capital-declarations-api/internal/models"
)

// CreateDeclarationRequest opens a new draft declaration for a client.
type CreateDeclarationRequest struct {
	ClientID            string     `json:"clientId" validate:"required,uuid"`
	TaxYear             int        `json:"taxYear" validate:"required,min=1990,max=2200"`
	AssignedTo          *string    `json:"assignedTo" validate:"omitempty,uuid"`
	TaxAuthorityDueDate *time.Time `json:"taxAuthorityDueDate"`
	InternalDueDate     *time.Time `json:"internalDueDate"`
}

// TransitionRequest moves a declaration to another status.
type TransitionRequest struct {
	Status models.DeclarationStatus `json:"status" validate:"required,declaration_status"`
	Note   string                   `json:"note" validate:"max=2000"`
}

// SendToClientRequest issues a portal link and notifies the client.
type SendToClientRequest struct {
	Channel string `json:"channel" validate:"omitempty,oneof=email whatsapp none"`
}

// AssignmentRequest assigns or unassigns the responsible staff member.
type AssignmentRequest struct {
	AssignedTo *string `json:"assignedTo" validate:"omitempty,uuid"`
}

// DeadlinesRequest replaces both due dates. A null value clears the date.
type DeadlinesRequest struct {
	TaxAuthorityDueDate *time.Time `json:"taxAuthorityDueDate"`
	InternalDueDate     *time.Time `json:"internalDueDate"`
}

// PenaltyRequest replaces the late-filing penalty sub-record.
type PenaltyRequest struct {
	WasSubmittedLate bool                  `json:"wasSubmittedLate"`
	Amount           *decimal.Decimal      `json:"amount"`
	Status           *models.PenaltyStatus `json:"status" validate:"omitempty,oneof=pending appealed reduced cancelled paid"`
	ReceivedDate     *time.Time            `json:"receivedDate"`
	AppealDate       *time.Time            `json:"appealDate"`
	PaidDate         *time.Time            `json:"paidDate"`
}

// DeclarationQuery mirrors supported listing filters.
type DeclarationQuery struct {
	Statuses   []models.DeclarationStatus
	AssignedTo string
	ClientID   string
	TaxYear    int
	Overdue    bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// SendToClientResponse reports the issued link and whether a notification was queued.
type SendToClientResponse struct {
	Declaration *models.Declaration `json:"declaration"`
	Link        models.IssuedToken  `json:"link"`
	Notified    bool                `json:"notified"`
}
