package chatlog

import (
	"sort"
	"strings"
	"time"

	"github.com/nestline/callsync/internal/callrecord"
	"gorm.io/datatypes"
)

const (
	MessageTypeCallLog = "call_log"
	MessageTypeText    = "text"
)

// LogEntry is a row in the shared message thread. For MessageTypeCallLog the
// Payload carries the call outcome; there is at most one call_log entry per
// call attempt and it is frozen at the terminal transition.
type LogEntry struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	ThreadID    string         `gorm:"column:thread_id"     json:"thread_id"`
	SenderID    string         `gorm:"column:sender_id"     json:"sender_id"`
	MessageType string         `gorm:"column:message_type"  json:"message_type"`
	CallID      string         `gorm:"column:call_id"       json:"call_id"`
	Body        string         `gorm:"column:body"          json:"body"`
	Payload     datatypes.JSON `gorm:"column:payload"       json:"payload"`
	ReplyToID   *string        `gorm:"column:reply_to_id"   json:"reply_to_id"`
	CreatedAt   *time.Time     `gorm:"column:created_at"    json:"created_at"`
}

func (LogEntry) TableName() string {
	return "messages"
}

type LogPayload struct {
	Status   callrecord.Status `json:"status"`
	CallKind callrecord.Kind   `json:"call_kind"`
	Duration int               `json:"duration"`
	CallerID string            `json:"caller_id"`
}

// ThreadKey derives the shared thread id for a pair of users. Both sides
// compute the same key regardless of argument order.
func ThreadKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)

	return "dm:" + strings.Join(pair, ":")
}
