package models

import "time"

// CommunicationType enumerates client interaction channels.
type CommunicationType string

const (
	CommunicationTypePhoneCall CommunicationType = "phone_call"
	CommunicationTypeWhatsApp  CommunicationType = "whatsapp"
	CommunicationTypeNote      CommunicationType = "note"
	CommunicationTypeLetter    CommunicationType = "letter"
)

// CommunicationDirection tells who initiated the interaction.
type CommunicationDirection string

const (
	CommunicationOutbound CommunicationDirection = "outbound"
	CommunicationInbound  CommunicationDirection = "inbound"
)

// CommunicationEntry is an append-only record of an interaction with the client.
type CommunicationEntry struct {
	ID             string                 `db:"id" json:"id"`
	FirmID         string                 `db:"firm_id" json:"firmId"`
	DeclarationID  string                 `db:"declaration_id" json:"declarationId"`
	Type           CommunicationType      `db:"type" json:"type"`
	Direction      CommunicationDirection `db:"direction" json:"direction"`
	Subject        *string                `db:"subject" json:"subject,omitempty"`
	Content        *string                `db:"content" json:"content,omitempty"`
	Outcome        *string                `db:"outcome" json:"outcome,omitempty"`
	CommunicatedAt time.Time              `db:"communicated_at" json:"communicatedAt"`
	CreatedBy      *string                `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt      time.Time              `db:"created_at" json:"createdAt"`
	Seq            int64                  `db:"seq" json:"-"`
}
