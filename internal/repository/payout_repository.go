package repository

import (
	"context"

	"github.com/ajolla/ottowrite-sub001/internal/models"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type payoutRepository struct {
	db *gorm.DB
}

func (r *payoutRepository) Create(ctx context.Context, batch *models.PayoutBatch) error {
	return translate(r.db.WithContext(ctx).Create(batch).Error)
}

func (r *payoutRepository) GetByID(ctx context.Context, id uint) (*models.PayoutBatch, error) {
	var batch models.PayoutBatch
	if err := r.db.WithContext(ctx).First(&batch, id).Error; err != nil {
		return nil, translate(err)
	}
	return &batch, nil
}

func (r *payoutRepository) GetForUpdate(ctx context.Context, id uint) (*models.PayoutBatch, error) {
	var batch models.PayoutBatch
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&batch, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &batch, nil
}

func (r *payoutRepository) SetClaim(ctx context.Context, id uint, amount int64, conversionIDs []int64) error {
	res := r.db.WithContext(ctx).Model(&models.PayoutBatch{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"amount":         amount,
			"conversion_ids": pq.Int64Array(conversionIDs),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *payoutRepository) Transition(ctx context.Context, id uint, from []models.PayoutStatus, to models.PayoutStatus, fields map[string]interface{}) (bool, error) {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to

	res := r.db.WithContext(ctx).Model(&models.PayoutBatch{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *payoutRepository) ListByPartner(ctx context.Context, partnerID uint, limit, offset int) ([]*models.PayoutBatch, error) {
	var batches []*models.PayoutBatch
	err := r.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&batches).Error
	return batches, translate(err)
}

func (r *payoutRepository) ListRecent(ctx context.Context, limit int) ([]*models.PayoutBatch, error) {
	var batches []*models.PayoutBatch
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&batches).Error
	return batches, translate(err)
}
