package models

import "time"

// AdminUser is an operator allowed into the admin panel and validation station.
type AdminUser struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// DisplayName is the name recorded when the operator validates a code.
func (u *AdminUser) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
