package domain

import (
	"slices"
	"time"
)

// Session is the server-side record behind the opaque cookie token. A session
// is valid if and only if this record exists: the cookie alone proves nothing,
// so a record destroyed here turns any still-held cookie into a rejected
// zombie.
type Session struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SessionID    string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	Roles        []string  `gorm:"serializer:json" json:"roles"`
	CSRFToken    string    `gorm:"size:64;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `gorm:"index;not null" json:"last_activity"`
}

func (s *Session) HasRole(name string) bool {
	return slices.Contains(s.Roles, name)
}

// IdleSince reports whether the session has been inactive longer than the
// idle threshold at the given instant.
func (s *Session) IdleSince(now time.Time, idleTimeout time.Duration) bool {
	return now.Sub(s.LastActivity) > idleTimeout
}
