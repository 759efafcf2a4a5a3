package domain

import "time"

const (
	PostStatusActive = "active"
	PostStatusSold   = "sold"
	PostStatusHidden = "hidden"
)

// Post is a marketplace listing. Moderation (status changes, takedowns) is an
// admin-only concern enforced at the routing layer.
type Post struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"size:4096" json:"description"`
	PriceCents  int64     `gorm:"not null" json:"price_cents"`
	Image       string    `gorm:"size:512" json:"image,omitempty"`
	Status      string    `gorm:"size:16;index;not null;default:active" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func ValidPostStatus(s string) bool {
	switch s {
	case PostStatusActive, PostStatusSold, PostStatusHidden:
		return true
	}
	return false
}
