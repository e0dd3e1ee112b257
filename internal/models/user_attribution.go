package models

import "time"

// UserAttribution binds a user to the click of their first recorded
// conversion, so later events without a cookie resolve to the same click.
type UserAttribution struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	UserID    string    `gorm:"uniqueIndex;size:64;not null" json:"user_id"`
	ClickID   uint      `gorm:"index;not null" json:"click_id"`
	Token     string    `gorm:"size:64;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (*UserAttribution) TableName() string {
	return "referral_user_attributions"
}
