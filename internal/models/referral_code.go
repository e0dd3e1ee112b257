package models

import "time"

type CodeStatus string

const (
	CodeStatusActive   CodeStatus = "active"
	CodeStatusInactive CodeStatus = "inactive"
	CodeStatusExpired  CodeStatus = "expired"
)

// ReferralCode is stored upper-case and trimmed. CurrentUses only grows, and
// never past MaxUses when a cap is set.
type ReferralCode struct {
	BaseModel

	Code        string     `gorm:"uniqueIndex:idx_referral_codes_live_code,where:deleted_at IS NULL;size:32;not null" json:"code"`
	PartnerID   uint       `gorm:"index;not null" json:"partner_id"`
	Status      CodeStatus `gorm:"type:varchar(20);index;not null;default:'active'" json:"status"`
	Description string     `gorm:"type:text" json:"description,omitempty"`

	MaxUses     *int       `json:"max_uses,omitempty"` // nil = unlimited
	CurrentUses int        `gorm:"not null;default:0" json:"current_uses"`
	ExpiresAt   *time.Time `gorm:"index" json:"expires_at,omitempty"`
}

func (*ReferralCode) TableName() string {
	return "referral_codes"
}

func (rc *ReferralCode) IsExpired(now time.Time) bool {
	if rc.Status == CodeStatusExpired {
		return true
	}
	return rc.ExpiresAt != nil && !now.Before(*rc.ExpiresAt)
}

func (rc *ReferralCode) IsExhausted() bool {
	return rc.MaxUses != nil && rc.CurrentUses >= *rc.MaxUses
}

// IsUsable reports whether a click on this code may be recorded at now.
func (rc *ReferralCode) IsUsable(now time.Time) bool {
	return rc.Status == CodeStatusActive && !rc.IsExpired(now) && !rc.IsExhausted()
}

func (s CodeStatus) Valid() bool {
	switch s {
	case CodeStatusActive, CodeStatusInactive, CodeStatusExpired:
		return true
	}
	return false
}
