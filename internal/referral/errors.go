package referral

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidCode         = errors.New("invalid referral code")
	ErrCodeExpired         = errors.New("referral code has expired")
	ErrCodeLimitReached    = errors.New("referral code usage limit reached")
	ErrLimitExceeded       = errors.New("referral code usage limit exceeded")
	ErrPartnerInactive     = errors.New("partner is not active")
	ErrRateLimited         = errors.New("too many referral clicks, try again later")
	ErrNoAttribution       = errors.New("no referral attribution found")
	ErrUserNotFound        = errors.New("user not found")
	ErrGenerationExhausted = errors.New("could not generate a unique referral code")
	ErrCodeTaken           = errors.New("referral code already exists")
	ErrPartnerExists       = errors.New("partner with this email already exists")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrNothingToPay        = errors.New("no approved commissions to pay out")
	ErrBelowMinimum        = errors.New("payout amount is below the minimum")
)

// NoAttributionMessage is returned to callers when a conversion has no
// referral to credit.
const NoAttributionMessage = "No referral attribution found"

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
