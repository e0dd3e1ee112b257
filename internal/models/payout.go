package models

import (
	"time"

	"github.com/lib/pq"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusCancelled  PayoutStatus = "cancelled"
)

// PayoutBatch groups approved commissions of one partner. Amount is the sum
// of the referenced conversions.
type PayoutBatch struct {
	Record

	PartnerID     uint          `gorm:"index;not null" json:"partner_id"`
	Amount        int64         `gorm:"not null;default:0" json:"amount"` // minor units
	Status        PayoutStatus  `gorm:"type:varchar(20);index;not null;default:'pending'" json:"status"`
	ConversionIDs pq.Int64Array `gorm:"type:bigint[]" json:"conversion_ids"`

	TransactionID string `gorm:"size:255" json:"transaction_id,omitempty"`
	FailureReason string `gorm:"type:text" json:"failure_reason,omitempty"`

	ProcessingAt *time.Time `json:"processing_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

func (*PayoutBatch) TableName() string {
	return "referral_payout_batches"
}

// IsOpen reports whether the batch still holds claims on its conversions.
func (p *PayoutBatch) IsOpen() bool {
	return p.Status == PayoutStatusPending || p.Status == PayoutStatusProcessing
}
