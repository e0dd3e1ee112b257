package models

import "time"

// User is a read-only view of the identity provider's users table.
type User struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Email     string    `gorm:"index" json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (*User) TableName() string {
	return "users"
}
