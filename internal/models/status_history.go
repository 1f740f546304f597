package models

import "time"

// StatusHistoryEntry is an append-only audit record of one status change.
// FromStatus is nil only for the entry that established the initial status.
type StatusHistoryEntry struct {
	ID            string             `db:"id" json:"id"`
	FirmID        string             `db:"firm_id" json:"firmId"`
	DeclarationID string             `db:"declaration_id" json:"declarationId"`
	FromStatus    *DeclarationStatus `db:"from_status" json:"fromStatus,omitempty"`
	ToStatus      DeclarationStatus  `db:"to_status" json:"toStatus"`
	Notes         *string            `db:"notes" json:"notes,omitempty"`
	ChangedBy     *string            `db:"changed_by" json:"changedBy,omitempty"`
	ChangedAt     time.Time          `db:"changed_at" json:"changedAt"`
	Seq           int64              `db:"seq" json:"-"`
}

// IsSystemChange reports whether the change was made automatically.
func (e StatusHistoryEntry) IsSystemChange() bool {
	return e.ChangedBy == nil
}
