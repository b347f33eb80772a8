package callrecord

import (
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRinging   Status = "ringing"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusDeclined  Status = "declined"
	StatusRejected  Status = "rejected"
	StatusMissed    Status = "missed"
	StatusBusy      Status = "busy"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transitions are expected for s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPending, StatusRinging, StatusActive:
		return false
	default:
		return true
	}
}

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// CallAttempt is one row per call attempt. The caller creates it, either party
// mutates it, and it is immutable once Status is terminal.
type CallAttempt struct {
	ID              string     `gorm:"column:id;primaryKey" json:"id"               validate:"required"`
	CallerID        string     `gorm:"column:caller_id"     json:"caller_id"        validate:"required"`
	ReceiverID      string     `gorm:"column:receiver_id"   json:"receiver_id"      validate:"required"`
	Kind            Kind       `gorm:"column:call_kind"     json:"call_kind"        validate:"required,oneof=audio video"`
	Status          Status     `gorm:"column:status"        json:"status"           validate:"required"`
	ChannelName     string     `gorm:"column:channel_name"  json:"channel_name"`
	StartedAt       *time.Time `gorm:"column:started_at"    json:"started_at"`
	EndedAt         *time.Time `gorm:"column:ended_at"      json:"ended_at"`
	DurationSeconds int        `gorm:"column:duration_seconds" json:"duration_seconds"`
	CreatedAt       *time.Time `gorm:"column:created_at"    json:"created_at"`
}

func (CallAttempt) TableName() string {
	return "calls"
}
