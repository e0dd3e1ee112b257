package referral

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/events"
	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/payment"
	"github.com/ajolla/ottowrite-sub001/internal/repository/memory"

	"github.com/stretchr/testify/require"
)

var testPrices = payment.StaticPrices{
	"free":    0,
	"starter": 900,
	"pro":     2000,
	"team":    4900,
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	svc    *Service
	events *recorder

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  memory.New(),
		events: &recorder{},
		now:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.store.SetClock(f.clock)

	opts = append([]Option{WithClock(f.clock), WithPublisher(f.events)}, opts...)
	f.svc = NewService(cfg, f.store, testPrices, nil, opts...)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) partner(mutate func(in *PartnerInput)) *models.Partner {
	f.t.Helper()

	in := PartnerInput{
		Name:             "Jane Writer",
		Email:            "jane@example.com",
		SignupCommission: 200,
	}
	if mutate != nil {
		mutate(&in)
	}

	p, err := f.svc.CreatePartner(f.ctx, in)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) code(partnerID uint, code string, mutate func(in *CreateCodeInput)) *models.ReferralCode {
	f.t.Helper()

	in := CreateCodeInput{PartnerID: partnerID, Code: code}
	if mutate != nil {
		mutate(&in)
	}

	rc, err := f.svc.CreateCode(f.ctx, in)
	require.NoError(f.t, err)
	return rc
}

func (f *fixture) user(id string) {
	f.store.AddUser(models.User{ID: id, Email: id + "@example.com"})
}

func (f *fixture) track(code string) string {
	f.t.Helper()

	res, err := f.svc.Track(f.ctx, TrackInput{Code: code, ClientIP: "203.0.113.7", UserAgent: "test-agent"})
	require.NoError(f.t, err)
	return res.TrackingID
}

func (f *fixture) convert(userID string, t models.ConversionType, tier, token string) *ConversionResult {
	f.t.Helper()

	res, err := f.svc.ProcessConversion(f.ctx, ConversionInput{
		UserID:           userID,
		Type:             t,
		SubscriptionTier: tier,
		AttributionToken: token,
	})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) reload(p *models.Partner) *models.Partner {
	f.t.Helper()

	got, err := f.svc.GetPartner(f.ctx, p.ID)
	require.NoError(f.t, err)
	return got
}

func (f *fixture) requireBalanced(p *models.Partner) *models.Partner {
	f.t.Helper()

	got := f.reload(p)
	require.Equal(f.t, got.TotalEarnings, got.PendingEarnings+got.PaidEarnings,
		"total must equal pending + paid")
	require.GreaterOrEqual(f.t, got.PendingEarnings, int64(0))
	require.GreaterOrEqual(f.t, got.PaidEarnings, int64(0))
	return got
}

// zeroReader always yields zero bytes, making generated codes collide.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
