package models

import "time"

type ConversionType string

const (
	ConversionTypeSignup       ConversionType = "signup"
	ConversionTypeSubscription ConversionType = "subscription"
	ConversionTypeUpgrade      ConversionType = "upgrade"
)

type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusApproved  CommissionStatus = "approved"
	CommissionStatusPaid      CommissionStatus = "paid"
	CommissionStatusCancelled CommissionStatus = "cancelled"
)

const FreeTier = "free"

// Conversion is a credited business event. The natural key is
// (referral_code_id, user_id, conversion_type, tier_key).
type Conversion struct {
	Record

	ReferralCodeID uint           `gorm:"uniqueIndex:idx_referral_conversions_key,priority:1;not null" json:"referral_code_id"`
	UserID         string         `gorm:"uniqueIndex:idx_referral_conversions_key,priority:2;size:64;not null" json:"user_id"`
	ConversionType ConversionType `gorm:"uniqueIndex:idx_referral_conversions_key,priority:3;type:varchar(20);not null" json:"conversion_type"`
	TierKey        string         `gorm:"uniqueIndex:idx_referral_conversions_key,priority:4;size:50;not null;default:''" json:"-"`

	PartnerID uint `gorm:"index;not null" json:"partner_id"`
	ClickID   uint `gorm:"index;not null" json:"click_id"`

	CommissionAmount int64            `gorm:"not null;default:0" json:"commission_amount"` // minor units
	CommissionStatus CommissionStatus `gorm:"type:varchar(20);index;not null" json:"commission_status"`

	SubscriptionTier        string     `gorm:"size:50" json:"subscription_tier,omitempty"`
	SubscriptionID          string     `gorm:"size:255" json:"subscription_id,omitempty"`
	ConversionValue         int64      `gorm:"not null;default:0" json:"conversion_value"` // minor units
	CommissionEligibleUntil *time.Time `json:"commission_eligible_until,omitempty"`

	PayoutBatchID *uint      `gorm:"index" json:"payout_batch_id,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CancelReason  string     `gorm:"type:text" json:"cancel_reason,omitempty"`
}

func (*Conversion) TableName() string {
	return "referral_conversions"
}

// IsClaimable reports whether a payout batch may pick this conversion up.
func (c *Conversion) IsClaimable() bool {
	return c.CommissionStatus == CommissionStatusApproved && c.PayoutBatchID == nil && c.CommissionAmount > 0
}

func (t ConversionType) Valid() bool {
	switch t {
	case ConversionTypeSignup, ConversionTypeSubscription, ConversionTypeUpgrade:
		return true
	}
	return false
}

// TierKey is the tier component of the natural key: empty for signups,
// the tier name otherwise.
func TierKey(t ConversionType, tier string) string {
	if t == ConversionTypeSignup {
		return ""
	}
	return tier
}
