package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/referral"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	hold  time.Duration

	payoutErr error
}

func (e *fakeEngine) record(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, name)
}

func (e *fakeEngine) AutoApprove(_ context.Context, hold time.Duration) (int, error) {
	e.record("approve")
	e.mu.Lock()
	e.hold = hold
	e.mu.Unlock()
	return 3, nil
}

func (e *fakeEngine) ScheduleAll(context.Context) (*referral.ScheduleSummary, error) {
	e.record("payouts")
	return &referral.ScheduleSummary{
		Batches: []*models.PayoutBatch{{PartnerID: 1, Amount: 500}},
		Skipped: 2,
	}, e.payoutErr
}

func (e *fakeEngine) ExpireCodes(context.Context) (int64, error) {
	e.record("expire")
	return 1, nil
}

func TestRunNowOrdersJobs(t *testing.T) {
	engine := &fakeEngine{}
	s := NewScheduler(engine, DefaultConfig(), nil)

	require.NoError(t, s.RunNow(context.Background()))
	assert.Equal(t, []string{"expire", "approve", "payouts"}, engine.calls)
	assert.Equal(t, 14*24*time.Hour, engine.hold)
}

func TestRunNowReportsFailures(t *testing.T) {
	boom := errors.New("partner 7: database is locked")
	engine := &fakeEngine{payoutErr: boom}
	s := NewScheduler(engine, DefaultConfig(), nil)

	err := s.RunNow(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, engine.calls, 3)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PayoutSchedule = "every full moon"

	s := NewScheduler(&fakeEngine{}, cfg, nil)
	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payouts")
}

func TestStartStopDoesNotLeak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExpirySchedule = ""

	s := NewScheduler(&fakeEngine{}, cfg, nil)
	require.NoError(t, s.Start())
	s.Stop()
}

func TestRunJobHonoursStop(t *testing.T) {
	s := NewScheduler(&fakeEngine{}, DefaultConfig(), nil)
	s.cancel()

	var got error
	s.runJob("cancelled", func(ctx context.Context) error {
		got = ctx.Err()
		return got
	})
	assert.ErrorIs(t, got, context.Canceled)
}
