package referral

import (
	"testing"

	"github.com/ajolla/ottowrite-sub001/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestApplyRate(t *testing.T) {
	tests := []struct {
		amount, bps, want int64
	}{
		{2000, 1000, 200},
		{999, 1500, 150},   // 149.85
		{1, 5000, 1},       // 0.5 rounds up
		{1, 4999, 0},       // 0.4999
		{4900, 3333, 1633}, // 1633.17
		{1000, 10000, 1000},
		{1000, 0, 0},
		{0, 2500, 0},
		{-100, 2500, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ApplyRate(tt.amount, tt.bps), "%d @ %d bps", tt.amount, tt.bps)
	}
}

func TestCalculateCommission(t *testing.T) {
	flat := &models.Partner{
		CommissionType:         models.CommissionTypeFlat,
		SignupCommission:       200,
		SubscriptionCommission: 500,
	}
	percent := &models.Partner{
		CommissionType:         models.CommissionTypePercentage,
		SignupCommission:       150,
		SubscriptionCommission: 2000,
	}

	assert.Equal(t, int64(200), CalculateCommission(flat, models.ConversionTypeSignup, "", 0))
	assert.Equal(t, int64(500), CalculateCommission(flat, models.ConversionTypeSubscription, "pro", 2000))
	assert.Equal(t, int64(500), CalculateCommission(flat, models.ConversionTypeUpgrade, "team", 4900))
	assert.Zero(t, CalculateCommission(flat, models.ConversionTypeSubscription, models.FreeTier, 0))

	assert.Equal(t, int64(150), CalculateCommission(percent, models.ConversionTypeSignup, "", 0))
	assert.Equal(t, int64(400), CalculateCommission(percent, models.ConversionTypeSubscription, "pro", 2000))
	assert.Equal(t, int64(980), CalculateCommission(percent, models.ConversionTypeUpgrade, "team", 4900))
	assert.Zero(t, CalculateCommission(percent, models.ConversionTypeUpgrade, "", 4900))
}
