package repository

import (
	"context"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/models"

	"gorm.io/gorm"
)

type conversionRepository struct {
	db *gorm.DB
}

func (r *conversionRepository) Create(ctx context.Context, conversion *models.Conversion) error {
	return translate(r.db.WithContext(ctx).Create(conversion).Error)
}

func (r *conversionRepository) GetByID(ctx context.Context, id uint) (*models.Conversion, error) {
	var conversion models.Conversion
	if err := r.db.WithContext(ctx).First(&conversion, id).Error; err != nil {
		return nil, translate(err)
	}
	return &conversion, nil
}

func (r *conversionRepository) FindByKey(ctx context.Context, codeID uint, userID string, conversionType models.ConversionType, tierKey string) (*models.Conversion, error) {
	var conversion models.Conversion
	err := r.db.WithContext(ctx).
		Where("referral_code_id = ? AND user_id = ? AND conversion_type = ? AND tier_key = ?",
			codeID, userID, conversionType, tierKey).
		First(&conversion).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conversion, nil
}

func (r *conversionRepository) ListByPartner(ctx context.Context, partnerID uint, limit, offset int) ([]*models.Conversion, error) {
	var conversions []*models.Conversion
	err := r.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&conversions).Error
	return conversions, translate(err)
}

func (r *conversionRepository) ListRecent(ctx context.Context, limit int) ([]*models.Conversion, error) {
	var conversions []*models.Conversion
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&conversions).Error
	return conversions, translate(err)
}

func (r *conversionRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Conversion, error) {
	var conversions []*models.Conversion
	err := r.db.WithContext(ctx).
		Where("commission_status = ? AND created_at <= ?", models.CommissionStatusPending, cutoff).
		Order("id").
		Limit(limit).
		Find(&conversions).Error
	return conversions, translate(err)
}

func (r *conversionRepository) Stats(ctx context.Context) (ConversionStats, error) {
	var rows []struct {
		Status models.CommissionStatus
		Count  int64
		Amount int64
	}

	err := r.db.WithContext(ctx).Model(&models.Conversion{}).
		Select("commission_status AS status, COUNT(*) AS count, COALESCE(SUM(commission_amount), 0) AS amount").
		Group("commission_status").
		Scan(&rows).Error
	if err != nil {
		return ConversionStats{}, translate(err)
	}

	stats := ConversionStats{
		Count:  make(map[models.CommissionStatus]int64, len(rows)),
		Amount: make(map[models.CommissionStatus]int64, len(rows)),
	}
	for _, row := range rows {
		stats.Count[row.Status] = row.Count
		stats.Amount[row.Status] = row.Amount
	}
	return stats, nil
}

func (r *conversionRepository) Approve(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Conversion{}).
		Where("id = ? AND commission_status = ?", id, models.CommissionStatusPending).
		Updates(map[string]interface{}{
			"commission_status": models.CommissionStatusApproved,
			"approved_at":       at,
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *conversionRepository) Cancel(ctx context.Context, id uint, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Conversion{}).
		Where("id = ? AND commission_status IN ? AND payout_batch_id IS NULL", id,
			[]models.CommissionStatus{models.CommissionStatusPending, models.CommissionStatusApproved}).
		Updates(map[string]interface{}{
			"commission_status": models.CommissionStatusCancelled,
			"cancelled_at":      at,
			"cancel_reason":     reason,
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *conversionRepository) ClaimForBatch(ctx context.Context, partnerID, batchID uint) ([]*models.Conversion, error) {
	err := r.db.WithContext(ctx).Model(&models.Conversion{}).
		Where("partner_id = ? AND commission_status = ? AND payout_batch_id IS NULL AND commission_amount > 0",
			partnerID, models.CommissionStatusApproved).
		Update("payout_batch_id", batchID).Error
	if err != nil {
		return nil, translate(err)
	}

	var claimed []*models.Conversion
	err = r.db.WithContext(ctx).Where("payout_batch_id = ?", batchID).Order("id").Find(&claimed).Error
	return claimed, translate(err)
}

func (r *conversionRepository) MarkBatchPaid(ctx context.Context, batchID uint, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Conversion{}).
		Where("payout_batch_id = ? AND commission_status = ?", batchID, models.CommissionStatusApproved).
		Updates(map[string]interface{}{
			"commission_status": models.CommissionStatusPaid,
			"paid_at":           at,
		})
	return res.RowsAffected, translate(res.Error)
}

func (r *conversionRepository) ReleaseBatch(ctx context.Context, batchID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Conversion{}).
		Where("payout_batch_id = ? AND commission_status = ?", batchID, models.CommissionStatusApproved).
		Update("payout_batch_id", gorm.Expr("NULL"))
	return res.RowsAffected, translate(res.Error)
}

func (r *conversionRepository) PartnerIDsWithClaimable(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Conversion{}).
		Where("commission_status = ? AND payout_batch_id IS NULL AND commission_amount > 0",
			models.CommissionStatusApproved).
		Distinct("partner_id").
		Order("partner_id").
		Pluck("partner_id", &ids).Error
	return ids, translate(err)
}
