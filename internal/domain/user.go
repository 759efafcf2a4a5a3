package domain

import "time"

type User struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	FullName       string `gorm:"size:255;not null" json:"full_name"`
	Email          string `gorm:"size:320;uniqueIndex;not null" json:"email"`
	PhoneNumber    string `gorm:"size:32" json:"phone_number"`
	PasswordHash   string `gorm:"size:128;not null" json:"-"`
	ProfilePicture string `gorm:"size:512" json:"profile_picture,omitempty"`
	Roles          []Role `gorm:"many2many:user_roles" json:"roles,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Role struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:64;uniqueIndex;not null" json:"name"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// RoleNames flattens the association into the plain role set cached on a
// session at login time.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}
