// Package payment holds the pricing collaborator used for subscription
// commissions. Prices are integer minor units.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownTier = errors.New("unknown subscription tier")

// StaticPrices serves tier prices from configuration.
type StaticPrices map[string]int64

func (p StaticPrices) TierPrice(_ context.Context, tier string) (int64, error) {
	price, ok := p[strings.ToLower(strings.TrimSpace(tier))]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	return price, nil
}
