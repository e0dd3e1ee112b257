package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrConditionFailed is returned when a guarded balance update would
	// break a non-negative balance.
	ErrConditionFailed = errors.New("conditional update not applied")
)

// Store groups the referral repositories. Transaction runs fn against a store
// bound to a single database transaction; any error rolls everything back.
type Store interface {
	Partners() PartnerRepository
	Codes() CodeRepository
	Clicks() ClickRepository
	Attributions() AttributionRepository
	Conversions() ConversionRepository
	Payouts() PayoutRepository
	Users() UserRepository

	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type PartnerTotals struct {
	Total   int64 `json:"total"`
	Pending int64 `json:"pending"`
	Paid    int64 `json:"paid"`
}

type PartnerRepository interface {
	Create(ctx context.Context, partner *models.Partner) error
	GetByID(ctx context.Context, id uint) (*models.Partner, error)
	// UpdateProfile writes everything except the balance columns.
	UpdateProfile(ctx context.Context, partner *models.Partner) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, limit, offset int) ([]*models.Partner, error)
	CountByStatus(ctx context.Context, status models.PartnerStatus) (int64, error)
	Count(ctx context.Context) (int64, error)
	TopByEarnings(ctx context.Context, limit int) ([]*models.Partner, error)
	Totals(ctx context.Context) (PartnerTotals, error)

	// AddPending moves pending and total by amount (negative to reverse).
	AddPending(ctx context.Context, id uint, amount int64) error
	// Settle moves amount from pending to paid.
	Settle(ctx context.Context, id uint, amount int64) error
}

type CodeRepository interface {
	Create(ctx context.Context, code *models.ReferralCode) error
	GetByID(ctx context.Context, id uint) (*models.ReferralCode, error)
	GetByCode(ctx context.Context, code string) (*models.ReferralCode, error)
	ListByPartner(ctx context.Context, partnerID uint) ([]*models.ReferralCode, error)
	SetStatus(ctx context.Context, id uint, status models.CodeStatus) error
	// IncrementUsage adds one use unless the cap is reached. It reports
	// whether the row was updated.
	IncrementUsage(ctx context.Context, id uint) (bool, error)
	// ExpireStale flips active codes whose expiry has passed to expired.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type ClickRepository interface {
	Create(ctx context.Context, click *models.Click) error
	GetByID(ctx context.Context, id uint) (*models.Click, error)
	GetByToken(ctx context.Context, token string) (*models.Click, error)
	// MarkConverted performs the Unconverted -> Converted transition. It
	// reports false when the click was already converted.
	MarkConverted(ctx context.Context, clickID uint, userID string, conversionID uint, at time.Time) (bool, error)
	Count(ctx context.Context) (int64, error)
	CountConverted(ctx context.Context) (int64, error)
}

type AttributionRepository interface {
	// Bind stores the binding unless the user already has one. It reports
	// whether a new row was written.
	Bind(ctx context.Context, attribution *models.UserAttribution) (bool, error)
	GetByUserID(ctx context.Context, userID string) (*models.UserAttribution, error)
}

type ConversionStats struct {
	Count  map[models.CommissionStatus]int64 `json:"count"`
	Amount map[models.CommissionStatus]int64 `json:"amount"`
}

type ConversionRepository interface {
	Create(ctx context.Context, conversion *models.Conversion) error
	GetByID(ctx context.Context, id uint) (*models.Conversion, error)
	FindByKey(ctx context.Context, codeID uint, userID string, conversionType models.ConversionType, tierKey string) (*models.Conversion, error)
	ListByPartner(ctx context.Context, partnerID uint, limit, offset int) ([]*models.Conversion, error)
	ListRecent(ctx context.Context, limit int) ([]*models.Conversion, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Conversion, error)
	Stats(ctx context.Context) (ConversionStats, error)

	// Approve moves a pending conversion to approved.
	Approve(ctx context.Context, id uint, at time.Time) (bool, error)
	// Cancel moves a pending or approved conversion that no batch holds to
	// cancelled.
	Cancel(ctx context.Context, id uint, reason string, at time.Time) (bool, error)

	// ClaimForBatch stamps every claimable conversion of the partner with the
	// batch id and returns the claimed rows.
	ClaimForBatch(ctx context.Context, partnerID, batchID uint) ([]*models.Conversion, error)
	MarkBatchPaid(ctx context.Context, batchID uint, at time.Time) (int64, error)
	ReleaseBatch(ctx context.Context, batchID uint) (int64, error)
	PartnerIDsWithClaimable(ctx context.Context) ([]uint, error)
}

type PayoutRepository interface {
	Create(ctx context.Context, batch *models.PayoutBatch) error
	GetByID(ctx context.Context, id uint) (*models.PayoutBatch, error)
	// GetForUpdate reads the batch and locks the row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uint) (*models.PayoutBatch, error)
	SetClaim(ctx context.Context, id uint, amount int64, conversionIDs []int64) error
	// Transition moves the batch to status `to` when its current status is
	// one of from. Extra columns are written in the same statement.
	Transition(ctx context.Context, id uint, from []models.PayoutStatus, to models.PayoutStatus, fields map[string]interface{}) (bool, error)
	ListByPartner(ctx context.Context, partnerID uint, limit, offset int) ([]*models.PayoutBatch, error)
	ListRecent(ctx context.Context, limit int) ([]*models.PayoutBatch, error)
}

// UserRepository reads the identity provider's users table.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type AdminRepository interface {
	Create(ctx context.Context, admin *models.AdminUser) error
	GetByID(ctx context.Context, id uint) (*models.AdminUser, error)
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
}
