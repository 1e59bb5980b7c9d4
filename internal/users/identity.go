package users

import (
	"strings"
	"time"
)

// Identity maps a canonical conducting-body user id to an SSO issuer login.
// The same person signing in through a different issuer gets a distinct row.
type Identity struct {
	Issuer      string    `gorm:"column:issuer;primaryKey;size:190;not null"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID      string    `gorm:"column:user_id;size:190;not null;index"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
