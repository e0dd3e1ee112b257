package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticPrices(t *testing.T) {
	prices := StaticPrices{"free": 0, "pro": 2000}

	price, err := prices.TierPrice(context.Background(), "PRO")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), price)

	_, err = prices.TierPrice(context.Background(), "team")
	assert.ErrorIs(t, err, ErrUnknownTier)
}
