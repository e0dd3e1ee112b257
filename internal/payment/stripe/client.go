// Package stripe adapts stripe-go to the referral engine: tier prices by
// lookup key and signed webhook events.
package stripe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/logger"
	"github.com/ajolla/ottowrite-sub001/internal/payment"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type Client struct {
	api *client.API
}

// NewClient builds a client against baseURL, or the public API when it is
// empty.
func NewClient(secretKey, baseURL string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}

	cfg := &stripego.BackendConfig{
		HTTPClient:        &http.Client{Timeout: 15 * time.Second},
		MaxNetworkRetries: stripego.Int64(2),
		LeveledLogger:     leveledLogger{log.With("component", "stripe")},
	}
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
		cfg.URL = stripego.String(baseURL)
	}

	backend := stripego.GetBackendWithConfig(stripego.APIBackend, cfg)
	api := &client.API{}
	api.Init(secretKey, &stripego.Backends{API: backend, Connect: backend, Uploads: backend})
	return &Client{api: api}
}

// TierPrice returns the unit amount of the active price whose lookup key is
// the tier name.
func (c *Client) TierPrice(ctx context.Context, tier string) (int64, error) {
	price, err := c.PriceByLookupKey(ctx, strings.ToLower(strings.TrimSpace(tier)))
	if err != nil {
		return 0, err
	}
	return price.UnitAmount, nil
}

func (c *Client) PriceByLookupKey(ctx context.Context, lookupKey string) (*stripego.Price, error) {
	params := &stripego.PriceListParams{
		Active:     stripego.Bool(true),
		LookupKeys: stripego.StringSlice([]string{lookupKey}),
	}
	params.Context = ctx
	params.Limit = stripego.Int64(1)

	it := c.api.Prices.List(params)
	if it.Next() {
		return it.Price(), nil
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("failed to look up price %s: %w", lookupKey, err)
	}

	return nil, fmt.Errorf("%w: %s", payment.ErrUnknownTier, lookupKey)
}

// leveledLogger routes stripe-go's request logging through the service logger.
type leveledLogger struct {
	log *logger.Logger
}

func (l leveledLogger) Debugf(format string, v ...interface{}) { l.log.Debug(format, v...) }
func (l leveledLogger) Infof(format string, v ...interface{})  { l.log.Debug(format, v...) }
func (l leveledLogger) Warnf(format string, v ...interface{})  { l.log.Warn(format, v...) }
func (l leveledLogger) Errorf(format string, v ...interface{}) { l.log.Error(format, v...) }
