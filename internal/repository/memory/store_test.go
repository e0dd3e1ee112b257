package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	st := New()

	partner := &models.Partner{Name: "Jane", Email: "jane@example.com", Status: models.PartnerStatusActive}
	require.NoError(t, st.Partners().Create(ctx, partner))

	boom := errors.New("boom")
	err := st.Transaction(ctx, func(tx repository.Store) error {
		require.NoError(t, tx.Partners().AddPending(ctx, partner.ID, 500))
		require.NoError(t, tx.Codes().Create(ctx, &models.ReferralCode{Code: "ABC123", PartnerID: partner.ID}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := st.Partners().GetByID(ctx, partner.ID)
	require.NoError(t, err)
	assert.Zero(t, got.PendingEarnings)

	_, err = st.Codes().GetByCode(ctx, "ABC123")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTransactionCommits(t *testing.T) {
	ctx := context.Background()
	st := New()

	partner := &models.Partner{Name: "Jane", Email: "jane@example.com", Status: models.PartnerStatusActive}
	require.NoError(t, st.Partners().Create(ctx, partner))

	require.NoError(t, st.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Partners().AddPending(ctx, partner.ID, 500); err != nil {
			return err
		}
		return tx.Partners().Settle(ctx, partner.ID, 200)
	}))

	got, err := st.Partners().GetByID(ctx, partner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.TotalEarnings)
	assert.Equal(t, int64(300), got.PendingEarnings)
	assert.Equal(t, int64(200), got.PaidEarnings)
}

func TestBalanceGuards(t *testing.T) {
	ctx := context.Background()
	st := New()

	partner := &models.Partner{Name: "Jane", Email: "jane@example.com"}
	require.NoError(t, st.Partners().Create(ctx, partner))

	assert.ErrorIs(t, st.Partners().AddPending(ctx, partner.ID, -1), repository.ErrConditionFailed)
	assert.ErrorIs(t, st.Partners().Settle(ctx, partner.ID, 1), repository.ErrConditionFailed)
	assert.ErrorIs(t, st.Partners().AddPending(ctx, 404, 1), repository.ErrNotFound)
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	st := New()

	require.NoError(t, st.Partners().Create(ctx, &models.Partner{Name: "A", Email: "a@example.com"}))
	assert.ErrorIs(t, st.Partners().Create(ctx, &models.Partner{Name: "B", Email: "A@example.com"}), repository.ErrDuplicate)

	require.NoError(t, st.Codes().Create(ctx, &models.ReferralCode{Code: "ABC123", PartnerID: 1}))
	assert.ErrorIs(t, st.Codes().Create(ctx, &models.ReferralCode{Code: "ABC123", PartnerID: 1}), repository.ErrDuplicate)

	bound, err := st.Attributions().Bind(ctx, &models.UserAttribution{UserID: "u1", ClickID: 1})
	require.NoError(t, err)
	assert.True(t, bound)
	bound, err = st.Attributions().Bind(ctx, &models.UserAttribution{UserID: "u1", ClickID: 2})
	require.NoError(t, err)
	assert.False(t, bound)

	a, err := st.Attributions().GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint(1), a.ClickID)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	st := New()

	partner := &models.Partner{Name: "Jane", Email: "jane@example.com"}
	require.NoError(t, st.Partners().Create(ctx, partner))

	got, err := st.Partners().GetByID(ctx, partner.ID)
	require.NoError(t, err)
	got.PendingEarnings = 1_000_000

	again, err := st.Partners().GetByID(ctx, partner.ID)
	require.NoError(t, err)
	assert.Zero(t, again.PendingEarnings)
}

func TestSetClock(t *testing.T) {
	ctx := context.Background()
	st := New()
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	st.SetClock(func() time.Time { return at })

	st.AddUser(models.User{ID: "u1", Email: "u1@example.com"})
	u, err := st.Users().GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, at.Equal(u.CreatedAt))

	byEmail, err := st.Users().GetByEmail(ctx, "U1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)
}
