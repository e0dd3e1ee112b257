package referral

import "github.com/ajolla/ottowrite-sub001/internal/models"

const basisPoints = 10000

// ApplyRate returns amount * bps / 10000 rounded half up, in integer math.
func ApplyRate(amount, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount*bps + basisPoints/2) / basisPoints
}

// CalculateCommission computes the commission owed to partner for one
// conversion. tierPrice is only read for paid-tier conversions.
func CalculateCommission(partner *models.Partner, conversionType models.ConversionType, tier string, tierPrice int64) int64 {
	var amount int64

	switch conversionType {
	case models.ConversionTypeSignup:
		amount = partner.SignupCommission
	case models.ConversionTypeSubscription, models.ConversionTypeUpgrade:
		if tier == "" || tier == models.FreeTier {
			return 0
		}
		if partner.CommissionType == models.CommissionTypePercentage {
			amount = ApplyRate(tierPrice, partner.SubscriptionCommission)
		} else {
			amount = partner.SubscriptionCommission
		}
	}

	if amount < 0 {
		return 0
	}
	return amount
}
