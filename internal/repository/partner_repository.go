package repository

import (
	"context"

	"github.com/ajolla/ottowrite-sub001/internal/models"

	"gorm.io/gorm"
)

type partnerRepository struct {
	db *gorm.DB
}

func (r *partnerRepository) Create(ctx context.Context, partner *models.Partner) error {
	return translate(r.db.WithContext(ctx).Create(partner).Error)
}

func (r *partnerRepository) GetByID(ctx context.Context, id uint) (*models.Partner, error) {
	var partner models.Partner
	if err := r.db.WithContext(ctx).First(&partner, id).Error; err != nil {
		return nil, translate(err)
	}
	return &partner, nil
}

func (r *partnerRepository) UpdateProfile(ctx context.Context, partner *models.Partner) error {
	res := r.db.WithContext(ctx).Model(partner).
		Select("name", "email", "user_id", "status", "commission_type",
			"signup_commission", "subscription_commission", "payout_method", "payout_details").
		Updates(partner)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *partnerRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Partner{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *partnerRepository) List(ctx context.Context, limit, offset int) ([]*models.Partner, error) {
	var partners []*models.Partner
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset).Find(&partners).Error
	return partners, translate(err)
}

func (r *partnerRepository) CountByStatus(ctx context.Context, status models.PartnerStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Partner{}).Where("status = ?", status).Count(&count).Error
	return count, translate(err)
}

func (r *partnerRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Partner{}).Count(&count).Error
	return count, translate(err)
}

func (r *partnerRepository) TopByEarnings(ctx context.Context, limit int) ([]*models.Partner, error) {
	var partners []*models.Partner
	err := r.db.WithContext(ctx).
		Where("total_earnings > 0").
		Order("total_earnings DESC").
		Limit(limit).
		Find(&partners).Error
	return partners, translate(err)
}

func (r *partnerRepository) Totals(ctx context.Context) (PartnerTotals, error) {
	var totals PartnerTotals
	err := r.db.WithContext(ctx).Model(&models.Partner{}).
		Select("COALESCE(SUM(total_earnings), 0) AS total, " +
			"COALESCE(SUM(pending_earnings), 0) AS pending, " +
			"COALESCE(SUM(paid_earnings), 0) AS paid").
		Scan(&totals).Error
	return totals, translate(err)
}

func (r *partnerRepository) AddPending(ctx context.Context, id uint, amount int64) error {
	res := r.db.WithContext(ctx).Model(&models.Partner{}).
		Where("id = ? AND pending_earnings + ? >= 0 AND total_earnings + ? >= 0", id, amount, amount).
		Updates(map[string]interface{}{
			"pending_earnings": gorm.Expr("pending_earnings + ?", amount),
			"total_earnings":   gorm.Expr("total_earnings + ?", amount),
		})
	return r.checkGuarded(ctx, id, res)
}

func (r *partnerRepository) Settle(ctx context.Context, id uint, amount int64) error {
	res := r.db.WithContext(ctx).Model(&models.Partner{}).
		Where("id = ? AND ? >= 0 AND pending_earnings >= ?", id, amount, amount).
		Updates(map[string]interface{}{
			"pending_earnings": gorm.Expr("pending_earnings - ?", amount),
			"paid_earnings":    gorm.Expr("paid_earnings + ?", amount),
		})
	return r.checkGuarded(ctx, id, res)
}

func (r *partnerRepository) checkGuarded(ctx context.Context, id uint, res *gorm.DB) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrConditionFailed
}
