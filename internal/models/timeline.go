package models

import "time"

// TimelineEntryType tags the variant held by a TimelineEntry.
type TimelineEntryType string

const (
	TimelineEntryStatusChange  TimelineEntryType = "status_change"
	TimelineEntryCommunication TimelineEntryType = "communication"
)

// TimelineEntry is one item of the merged declaration timeline. Exactly one of
// StatusChange or Communication is set, matching Type.
type TimelineEntry struct {
	Type          TimelineEntryType      `json:"type"`
	ID            string                 `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	StatusChange  *TimelineStatusChange  `json:"statusChange,omitempty"`
	Communication *TimelineCommunication `json:"communication,omitempty"`

	seq int64
}

// TimelineStatusChange carries the status_change variant.
type TimelineStatusChange struct {
	FromStatus     *DeclarationStatus `json:"fromStatus,omitempty"`
	ToStatus       DeclarationStatus  `json:"toStatus"`
	IsSystemChange bool               `json:"isSystemChange"`
	Notes          *string            `json:"notes,omitempty"`
	ChangedBy      *string            `json:"changedBy,omitempty"`
}

// TimelineCommunication carries the communication variant.
type TimelineCommunication struct {
	CommunicationType CommunicationType      `json:"communicationType"`
	Direction         CommunicationDirection `json:"direction"`
	Subject           *string                `json:"subject,omitempty"`
	Content           *string                `json:"content,omitempty"`
	Outcome           *string                `json:"outcome,omitempty"`
	CreatedBy         *string                `json:"createdBy,omitempty"`
}

// Seq returns the insertion sequence used to break timestamp ties.
func (e TimelineEntry) Seq() int64 {
	return e.seq
}

// TimelineEntryFromStatus wraps a status history row.
func TimelineEntryFromStatus(h StatusHistoryEntry) TimelineEntry {
	return TimelineEntry{
		Type:      TimelineEntryStatusChange,
		ID:        h.ID,
		Timestamp: h.ChangedAt,
		StatusChange: &TimelineStatusChange{
			FromStatus:     h.FromStatus,
			ToStatus:       h.ToStatus,
			IsSystemChange: h.IsSystemChange(),
			Notes:          h.Notes,
			ChangedBy:      h.ChangedBy,
		},
		seq: h.Seq,
	}
}

// TimelineEntryFromCommunication wraps a communication row.
func TimelineEntryFromCommunication(c CommunicationEntry) TimelineEntry {
	return TimelineEntry{
		Type:      TimelineEntryCommunication,
		ID:        c.ID,
		Timestamp: c.CommunicatedAt,
		Communication: &TimelineCommunication{
			CommunicationType: c.Type,
			Direction:         c.Direction,
			Subject:           c.Subject,
			Content:           c.Content,
			Outcome:           c.Outcome,
			CreatedBy:         c.CreatedBy,
		},
		seq: c.Seq,
	}
}

// Timeline is an ordered page of timeline entries, most recent first.
type Timeline struct {
	Entries []TimelineEntry `json:"entries"`
	HasMore bool            `json:"hasMore"`
}
