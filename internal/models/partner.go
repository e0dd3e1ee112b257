package models

type PartnerStatus string

const (
	PartnerStatusActive    PartnerStatus = "active"
	PartnerStatusInactive  PartnerStatus = "inactive"
	PartnerStatusSuspended PartnerStatus = "suspended"
)

type CommissionType string

const (
	CommissionTypeFlat       CommissionType = "flat"
	CommissionTypePercentage CommissionType = "percentage"
)

// Partner is an influencer or affiliate earning commissions through its codes.
// Balances are in minor currency units and only move through conditional
// updates in the repository: total = pending + paid.
type Partner struct {
	BaseModel

	Name   string        `gorm:"not null" json:"name"`
	Email  string        `gorm:"uniqueIndex:idx_referral_partners_live_email,where:deleted_at IS NULL;not null" json:"email"`
	UserID string        `gorm:"index;size:64" json:"user_id,omitempty"` // partner's own account, self-referrals are ignored
	Status PartnerStatus `gorm:"type:varchar(20);index;not null;default:'active'" json:"status"`

	// Commission policy
	CommissionType         CommissionType `gorm:"type:varchar(20);not null;default:'flat'" json:"commission_type"`
	SignupCommission       int64          `gorm:"not null;default:0" json:"signup_commission"`       // minor units
	SubscriptionCommission int64          `gorm:"not null;default:0" json:"subscription_commission"` // minor units (flat) or basis points (percentage)

	// Balances
	TotalEarnings   int64 `gorm:"not null;default:0;check:total_earnings >= 0" json:"total_earnings"`
	PendingEarnings int64 `gorm:"not null;default:0;check:pending_earnings >= 0" json:"pending_earnings"`
	PaidEarnings    int64 `gorm:"not null;default:0;check:paid_earnings >= 0" json:"paid_earnings"`

	PayoutMethod  string  `gorm:"type:varchar(50)" json:"payout_method,omitempty"` // paypal, bank_transfer, stripe_connect
	PayoutDetails JSONMap `gorm:"type:jsonb;serializer:json" json:"payout_details,omitempty"`
}

func (*Partner) TableName() string {
	return "referral_partners"
}

func (p *Partner) IsActive() bool {
	return p.Status == PartnerStatusActive
}

func (s PartnerStatus) Valid() bool {
	switch s {
	case PartnerStatusActive, PartnerStatusInactive, PartnerStatusSuspended:
		return true
	}
	return false
}

func (t CommissionType) Valid() bool {
	return t == CommissionTypeFlat || t == CommissionTypePercentage
}
