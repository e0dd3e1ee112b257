package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Discard,
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return NewGormStore(db), mock
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const selectCode = `SELECT \* FROM "referral_codes" WHERE "referral_codes"."id" = \$1`

func TestIncrementUsageGuardsMaxUses(t *testing.T) {
	ctx := context.Background()
	st, mock := newMockStore(t)

	increment := `UPDATE "referral_codes" SET "current_uses"=current_uses \+ \$1.*` +
		`id = \$\d+ AND \(max_uses IS NULL OR current_uses < max_uses\)`

	mock.ExpectExec(increment).WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := st.Codes().IncrementUsage(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	// cap reached: the guard matches nothing but the code exists
	mock.ExpectExec(increment).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectCode).WillReturnRows(
		sqlmock.NewRows([]string{"id", "code", "partner_id", "max_uses", "current_uses"}).
			AddRow(7, "SPRING", 3, 5, 5))
	ok, err = st.Codes().IncrementUsage(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectExec(increment).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectCode).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = st.Codes().IncrementUsage(ctx, 8)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkConvertedRequiresUnconvertedClick(t *testing.T) {
	ctx := context.Background()
	st, mock := newMockStore(t)

	mark := `UPDATE "referral_clicks" SET .*WHERE \(?id = \$\d+ AND state = \$\d+`

	mock.ExpectExec(mark).WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := st.Clicks().MarkConverted(ctx, 4, "user-1", 11, testNow)
	require.NoError(t, err)
	assert.True(t, ok)

	// already converted: no follow-up read, the caller decides
	mock.ExpectExec(mark).WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = st.Clicks().MarkConverted(ctx, 4, "user-2", 12, testNow)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBindDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	st, mock := newMockStore(t)

	insert := `INSERT INTO "referral_user_attributions" .*ON CONFLICT \("user_id"\) DO NOTHING`

	mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	bound, err := st.Attributions().Bind(ctx, &models.UserAttribution{UserID: "user-1", ClickID: 4, Token: "tok"})
	require.NoError(t, err)
	assert.True(t, bound)

	mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	bound, err = st.Attributions().Bind(ctx, &models.UserAttribution{UserID: "user-1", ClickID: 5, Token: "other"})
	require.NoError(t, err)
	assert.False(t, bound)
}

func TestClaimForBatchOnlyTakesUnbatchedRows(t *testing.T) {
	ctx := context.Background()
	st, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "referral_conversions" SET "payout_batch_id"=\$1.*` +
		`partner_id = \$\d+ AND commission_status = \$\d+ AND payout_batch_id IS NULL AND commission_amount > 0`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`SELECT \* FROM "referral_conversions" WHERE payout_batch_id = \$1 ORDER BY id`).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "partner_id", "commission_amount", "payout_batch_id"}).
			AddRow(21, 3, 500, 9).
			AddRow(22, 3, 250, 9))

	claimed, err := st.Conversions().ClaimForBatch(ctx, 3, 9)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, uint(21), claimed[0].ID)
	assert.Equal(t, int64(250), claimed[1].CommissionAmount)
}

func TestAddPendingGuardsNegativeBalances(t *testing.T) {
	ctx := context.Background()
	st, mock := newMockStore(t)

	add := `UPDATE "referral_partners" SET .*` +
		regexp.QuoteMeta(`"pending_earnings"=pending_earnings + $`) + `.*` +
		`id = \$\d+ AND pending_earnings \+ \$\d+ >= 0 AND total_earnings \+ \$\d+ >= 0`
	selectPartner := `SELECT \* FROM "referral_partners" WHERE "referral_partners"."id" = \$1`

	mock.ExpectExec(add).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, st.Partners().AddPending(ctx, 3, 500))

	// a reversal larger than the balance is refused, not clamped
	mock.ExpectExec(add).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectPartner).WillReturnRows(
		sqlmock.NewRows([]string{"id", "email", "pending_earnings", "total_earnings"}).
			AddRow(3, "jane@example.com", 100, 100))
	assert.ErrorIs(t, st.Partners().AddPending(ctx, 3, -500), ErrConditionFailed)

	mock.ExpectExec(add).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectPartner).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	assert.ErrorIs(t, st.Partners().AddPending(ctx, 99, 500), ErrNotFound)
}

func TestSettleGuardsPendingBalance(t *testing.T) {
	ctx := context.Background()
	st, mock := newMockStore(t)

	settle := `UPDATE "referral_partners" SET .*` +
		`id = \$\d+ AND \$\d+ >= 0 AND pending_earnings >= \$\d+`

	mock.ExpectExec(settle).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, st.Partners().Settle(ctx, 3, 200))

	mock.ExpectExec(settle).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "referral_partners"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "email", "pending_earnings"}).
			AddRow(3, "jane@example.com", 100))
	assert.ErrorIs(t, st.Partners().Settle(ctx, 3, 200), ErrConditionFailed)
}

func TestCreateTranslatesUniqueViolation(t *testing.T) {
	ctx := context.Background()
	st, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO "referral_codes"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := st.Codes().Create(ctx, &models.ReferralCode{Code: "SPRING", PartnerID: 3})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestDeletePartnerSoftDeletesLiveRow(t *testing.T) {
	ctx := context.Background()
	st, mock := newMockStore(t)

	remove := `UPDATE "referral_partners" SET "deleted_at"=\$1 ` +
		`WHERE "referral_partners"."id" = \$2 AND "referral_partners"."deleted_at" IS NULL`

	mock.ExpectExec(remove).WithArgs(sqlmock.AnyArg(), 3).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, st.Partners().Delete(ctx, 3))

	mock.ExpectExec(remove).WithArgs(sqlmock.AnyArg(), 3).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, st.Partners().Delete(ctx, 3), ErrNotFound)
}
