package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type AdminRole string

const (
	AdminRoleSuperAdmin AdminRole = "super_admin" // full access, manages admins
	AdminRoleAdmin      AdminRole = "admin"       // partners, codes, conversions, payouts
	AdminRoleViewer     AdminRole = "viewer"      // read-only
)

type AdminUser struct {
	BaseModel
	Username     string     `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Email        string     `gorm:"uniqueIndex" json:"email"`
	Role         AdminRole  `gorm:"type:varchar(50);not null;default:'viewer'" json:"role"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

func (AdminUser) TableName() string {
	return "admin_users"
}

func (u *AdminUser) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *AdminUser) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

func (r AdminRole) Valid() bool {
	switch r {
	case AdminRoleSuperAdmin, AdminRoleAdmin, AdminRoleViewer:
		return true
	}
	return false
}
