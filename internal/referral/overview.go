package referral

import (
	"context"

	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/repository"

	"golang.org/x/sync/errgroup"
)

const (
	overviewTopPartners = 5
	overviewRecent      = 10
)

type Overview struct {
	Partners struct {
		Total  int64 `json:"total"`
		Active int64 `json:"active"`
	} `json:"partners"`
	Codes  int64 `json:"codes"`
	Clicks struct {
		Total     int64 `json:"total"`
		Converted int64 `json:"converted"`
	} `json:"clicks"`
	Conversions       repository.ConversionStats `json:"conversions"`
	Earnings          repository.PartnerTotals   `json:"earnings"`
	TopPartners       []*models.Partner          `json:"top_partners"`
	RecentConversions []*models.Conversion       `json:"recent_conversions"`
	RecentPayouts     []*models.PayoutBatch      `json:"recent_payouts"`
}

// Overview aggregates program-wide counts, balances, top performers and
// recent activity for the admin console. The queries run concurrently.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	o := &Overview{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		o.Partners.Total, err = s.store.Partners().Count(ctx)
		return err
	})
	g.Go(func() (err error) {
		o.Partners.Active, err = s.store.Partners().CountByStatus(ctx, models.PartnerStatusActive)
		return err
	})
	g.Go(func() (err error) {
		o.Codes, err = s.store.Codes().Count(ctx)
		return err
	})
	g.Go(func() (err error) {
		o.Clicks.Total, err = s.store.Clicks().Count(ctx)
		return err
	})
	g.Go(func() (err error) {
		o.Clicks.Converted, err = s.store.Clicks().CountConverted(ctx)
		return err
	})
	g.Go(func() (err error) {
		o.Conversions, err = s.store.Conversions().Stats(ctx)
		return err
	})
	g.Go(func() (err error) {
		o.Earnings, err = s.store.Partners().Totals(ctx)
		return err
	})
	g.Go(func() (err error) {
		o.TopPartners, err = s.store.Partners().TopByEarnings(ctx, overviewTopPartners)
		return err
	})
	g.Go(func() (err error) {
		o.RecentConversions, err = s.store.Conversions().ListRecent(ctx, overviewRecent)
		return err
	})
	g.Go(func() (err error) {
		o.RecentPayouts, err = s.store.Payouts().ListRecent(ctx, overviewRecent)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return o, nil
}
