package referral

import (
	"sync"
	"testing"

	"github.com/ajolla/ottowrite-sub001/internal/events"
	"github.com/ajolla/ottowrite-sub001/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// earning sets up a partner with two approved commissions of 200 and 300.
func earning(t *testing.T, cfg Config) (*fixture, *models.Partner, []uint) {
	t.Helper()

	f := newFixture(t, cfg)
	p := f.partner(func(in *PartnerInput) {
		in.SignupCommission = 200
		in.SubscriptionCommission = 300
	})
	f.code(p.ID, "ABC123", nil)
	f.user("user-1")
	f.user("user-2")

	a := f.convert("user-1", models.ConversionTypeSignup, "", f.track("ABC123"))
	b := f.convert("user-2", models.ConversionTypeSubscription, "starter", f.track("ABC123"))
	require.Equal(t, int64(200), a.CommissionAmount)
	require.Equal(t, int64(300), b.CommissionAmount)

	for _, id := range []uint{a.ConversionID, b.ConversionID} {
		_, err := f.svc.ApproveConversion(f.ctx, id)
		require.NoError(t, err)
	}
	return f, p, []uint{a.ConversionID, b.ConversionID}
}

func TestSchedulePayoutClaimsApprovedOnce(t *testing.T) {
	f, p, ids := earning(t, DefaultConfig())

	var (
		mu      sync.Mutex
		batches []*models.PayoutBatch
		errs    []error
		wg      sync.WaitGroup
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch, err := f.svc.SchedulePayout(f.ctx, p.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			batches = append(batches, batch)
		}()
	}
	wg.Wait()

	require.Len(t, batches, 1)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNothingToPay)

	batch := batches[0]
	assert.Equal(t, int64(500), batch.Amount)
	assert.Equal(t, models.PayoutStatusPending, batch.Status)
	assert.ElementsMatch(t, []int64{int64(ids[0]), int64(ids[1])}, []int64(batch.ConversionIDs))

	for _, id := range ids {
		c, err := f.store.Conversions().GetByID(f.ctx, id)
		require.NoError(t, err)
		require.NotNil(t, c.PayoutBatchID)
		assert.Equal(t, batch.ID, *c.PayoutBatchID)
	}

	list, err := f.svc.ListPayouts(f.ctx, p.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// Scheduling does not move money.
	assert.Equal(t, int64(500), f.requireBalanced(p).PendingEarnings)
}

func TestSchedulePayoutIgnoresPendingCommissions(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	p := f.partner(nil)
	f.code(p.ID, "ABC123", nil)
	f.user("user-1")
	f.convert("user-1", models.ConversionTypeSignup, "", f.track("ABC123"))

	_, err := f.svc.SchedulePayout(f.ctx, p.ID)
	assert.ErrorIs(t, err, ErrNothingToPay)

	list, err := f.svc.ListPayouts(f.ctx, p.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.SchedulePayout(f.ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSchedulePayoutBelowMinimumLeavesNothingClaimed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinimumPayout = 1000
	f, p, ids := earning(t, cfg)

	_, err := f.svc.SchedulePayout(f.ctx, p.ID)
	assert.ErrorIs(t, err, ErrBelowMinimum)

	for _, id := range ids {
		c, err := f.store.Conversions().GetByID(f.ctx, id)
		require.NoError(t, err)
		assert.Nil(t, c.PayoutBatchID)
	}
	list, err := f.svc.ListPayouts(f.ctx, p.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSchedulePayoutRefusesSuspendedPartner(t *testing.T) {
	f, p, _ := earning(t, DefaultConfig())

	_, err := f.svc.UpdatePartner(f.ctx, p.ID, PartnerInput{
		Name:   p.Name,
		Email:  p.Email,
		Status: models.PartnerStatusSuspended,
	})
	require.NoError(t, err)

	_, err = f.svc.SchedulePayout(f.ctx, p.ID)
	assert.ErrorIs(t, err, ErrPartnerInactive)
}

func TestMarkProcessedSettlesBalancesOnce(t *testing.T) {
	f, p, ids := earning(t, DefaultConfig())

	batch, err := f.svc.SchedulePayout(f.ctx, p.ID)
	require.NoError(t, err)

	processing, err := f.svc.MarkProcessing(f.ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusProcessing, processing.Status)

	_, err = f.svc.MarkProcessed(f.ctx, batch.ID, " ")
	assert.True(t, IsValidation(err))

	done, err := f.svc.MarkProcessed(f.ctx, batch.ID, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusCompleted, done.Status)
	assert.Equal(t, "txn-1", done.TransactionID)
	require.NotNil(t, done.CompletedAt)

	got := f.requireBalanced(p)
	assert.Zero(t, got.PendingEarnings)
	assert.Equal(t, int64(500), got.PaidEarnings)
	assert.Equal(t, int64(500), got.TotalEarnings)

	for _, id := range ids {
		c, err := f.store.Conversions().GetByID(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.CommissionStatusPaid, c.CommissionStatus)
		assert.NotNil(t, c.PaidAt)
	}

	replay, err := f.svc.MarkProcessed(f.ctx, batch.ID, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, done.ID, replay.ID)
	assert.Equal(t, int64(500), f.requireBalanced(p).PaidEarnings)

	_, err = f.svc.MarkProcessed(f.ctx, batch.ID, "txn-2")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.MarkFailed(f.ctx, batch.ID, "too late")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	completed := 0
	for _, typ := range f.events.types() {
		if typ == events.TypePayoutCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)

	// Paid commissions can no longer be cancelled.
	_, err = f.svc.CancelConversion(f.ctx, ids[0], "refund")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkFailedReleasesConversions(t *testing.T) {
	f, p, ids := earning(t, DefaultConfig())

	batch, err := f.svc.SchedulePayout(f.ctx, p.ID)
	require.NoError(t, err)

	// Claimed commissions are locked against cancellation.
	_, err = f.svc.CancelConversion(f.ctx, ids[0], "refund")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.MarkProcessing(f.ctx, batch.ID)
	require.NoError(t, err)

	failed, err := f.svc.MarkFailed(f.ctx, batch.ID, "account closed")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusFailed, failed.Status)
	assert.Equal(t, "account closed", failed.FailureReason)

	again, err := f.svc.MarkFailed(f.ctx, batch.ID, "account closed")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusFailed, again.Status)

	_, err = f.svc.MarkProcessed(f.ctx, batch.ID, "txn-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	for _, id := range ids {
		c, err := f.store.Conversions().GetByID(f.ctx, id)
		require.NoError(t, err)
		assert.Nil(t, c.PayoutBatchID)
		assert.Equal(t, models.CommissionStatusApproved, c.CommissionStatus)
	}
	assert.Equal(t, int64(500), f.requireBalanced(p).PendingEarnings)

	retry, err := f.svc.SchedulePayout(f.ctx, p.ID)
	require.NoError(t, err)
	assert.NotEqual(t, batch.ID, retry.ID)
	assert.Equal(t, int64(500), retry.Amount)
}

func TestCancelPayoutOnlyWhilePending(t *testing.T) {
	f, p, _ := earning(t, DefaultConfig())

	batch, err := f.svc.SchedulePayout(f.ctx, p.ID)
	require.NoError(t, err)

	cancelled, err := f.svc.CancelPayout(f.ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusCancelled, cancelled.Status)

	next, err := f.svc.SchedulePayout(f.ctx, p.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkProcessing(f.ctx, next.ID)
	require.NoError(t, err)

	_, err = f.svc.CancelPayout(f.ctx, next.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.MarkProcessing(f.ctx, batch.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.GetPayout(f.ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScheduleAllSkipsInactivePartners(t *testing.T) {
	f, active, _ := earning(t, DefaultConfig())

	idle := f.partner(func(in *PartnerInput) { in.Email = "idle@example.com" })
	f.code(idle.ID, "IDLE", nil)
	f.user("user-3")
	res := f.convert("user-3", models.ConversionTypeSignup, "", f.track("IDLE"))
	_, err := f.svc.ApproveConversion(f.ctx, res.ConversionID)
	require.NoError(t, err)
	_, err = f.svc.UpdatePartner(f.ctx, idle.ID, PartnerInput{
		Name:             idle.Name,
		Email:            idle.Email,
		Status:           models.PartnerStatusInactive,
		SignupCommission: idle.SignupCommission,
	})
	require.NoError(t, err)

	summary, err := f.svc.ScheduleAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, summary.Batches, 1)
	assert.Equal(t, active.ID, summary.Batches[0].PartnerID)
	assert.Equal(t, 1, summary.Skipped)

	summary, err = f.svc.ScheduleAll(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, summary.Batches)
}
