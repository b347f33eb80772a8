package profile

import (
	"time"
)

type Profile struct {
	UserID      string     `gorm:"column:user_id;primaryKey" json:"user_id"`
	DisplayName string     `gorm:"column:display_name"       json:"display_name"`
	AvatarURL   *string    `gorm:"column:avatar_url"         json:"avatar_url"`
	CreatedAt   *time.Time `gorm:"column:created_at"         json:"created_at"`
	UpdatedAt   *time.Time `gorm:"column:updated_at"         json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

// ChatMute suppresses inbound call attempts from PeerID on OwnerID's client
// until MutedUntil. A nil MutedUntil means muted indefinitely.
type ChatMute struct {
	OwnerID    string     `gorm:"column:owner_id;primaryKey" json:"owner_id"`
	PeerID     string     `gorm:"column:peer_id;primaryKey"  json:"peer_id"`
	MutedUntil *time.Time `gorm:"column:muted_until"         json:"muted_until"`
	CreatedAt  *time.Time `gorm:"column:created_at"          json:"created_at"`
}

func (ChatMute) TableName() string {
	return "chat_mutes"
}

// Active reports whether the mute is still in effect at now.
func (m *ChatMute) Active(now time.Time) bool {
	if m == nil {
		return false
	}

	return m.MutedUntil == nil || m.MutedUntil.After(now)
}
