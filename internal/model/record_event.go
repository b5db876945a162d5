package model

import "time"

type RecordEventType string

const (
	RecordCreated       RecordEventType = "RECORD_CREATED"
	RecordStatusChanged RecordEventType = "STATUS_CHANGED"
	RecordDeleted       RecordEventType = "RECORD_DELETED"
)

// RecordEvent is one entry of a user's audit trail. It is published after a
// mutation succeeds and persisted asynchronously.
type RecordEvent struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	UserEmail  string          `gorm:"size:128;not null;index" json:"user_email"`
	DocumentID string          `gorm:"size:32;not null;index" json:"document_id"`
	EventType  RecordEventType `gorm:"size:32;not null" json:"event_type"`
	Company    string          `gorm:"size:256" json:"company"`
	Details    string          `gorm:"type:text" json:"details"`
	CreatedAt  time.Time       `json:"created_at"`
}
