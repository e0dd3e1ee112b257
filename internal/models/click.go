package models

import "time"

type ClickState string

const (
	ClickStateUnconverted ClickState = "unconverted"
	ClickStateConverted   ClickState = "converted"
)

// Click is one recorded visit through a referral link. The attribution token
// handed to the visitor maps back to exactly one click.
type Click struct {
	Record

	ReferralCodeID uint   `gorm:"index;not null" json:"referral_code_id"`
	PartnerID      uint   `gorm:"index;not null" json:"partner_id"`
	IPHash         string `gorm:"size:64;index" json:"-"`
	UserAgentHash  string `gorm:"size:64" json:"-"`
	Referer        string `gorm:"type:text" json:"referer,omitempty"`

	UTMSource   string `gorm:"size:255" json:"utm_source,omitempty"`
	UTMMedium   string `gorm:"size:255" json:"utm_medium,omitempty"`
	UTMCampaign string `gorm:"size:255" json:"utm_campaign,omitempty"`
	UTMTerm     string `gorm:"size:255" json:"utm_term,omitempty"`
	UTMContent  string `gorm:"size:255" json:"utm_content,omitempty"`

	ClickedAt      time.Time `gorm:"index;not null" json:"clicked_at"`
	Token          string    `gorm:"uniqueIndex;size:64;not null" json:"-"`
	TokenExpiresAt time.Time `gorm:"not null" json:"token_expires_at"`

	// Conversion lifecycle. The columns below are written once, together with
	// State, by a conditional update and are read through Conversion().
	State           ClickState `gorm:"type:varchar(20);index;not null;default:'unconverted'" json:"state"`
	ConvertedUserID *string    `gorm:"size:64" json:"-"`
	ConversionID    *uint      `json:"-"`
	ConvertedAt     *time.Time `json:"-"`
}

func (*Click) TableName() string {
	return "referral_clicks"
}

// ClickConversion is the Converted state of a click.
type ClickConversion struct {
	UserID       string    `json:"user_id"`
	ConversionID uint      `json:"conversion_id"`
	ConvertedAt  time.Time `json:"converted_at"`
}

// Conversion returns the converted state, or false while the click is
// still unconverted.
func (c *Click) Conversion() (ClickConversion, bool) {
	if c.State != ClickStateConverted || c.ConvertedUserID == nil || c.ConversionID == nil {
		return ClickConversion{}, false
	}

	conv := ClickConversion{
		UserID:       *c.ConvertedUserID,
		ConversionID: *c.ConversionID,
	}
	if c.ConvertedAt != nil {
		conv.ConvertedAt = *c.ConvertedAt
	}
	return conv, true
}

func (c *Click) TokenValid(now time.Time) bool {
	return now.Before(c.TokenExpiresAt)
}
