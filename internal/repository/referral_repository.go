package repository

import (
	"context"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type codeRepository struct {
	db *gorm.DB
}

func (r *codeRepository) Create(ctx context.Context, code *models.ReferralCode) error {
	return translate(r.db.WithContext(ctx).Create(code).Error)
}

func (r *codeRepository) GetByID(ctx context.Context, id uint) (*models.ReferralCode, error) {
	var code models.ReferralCode
	if err := r.db.WithContext(ctx).First(&code, id).Error; err != nil {
		return nil, translate(err)
	}
	return &code, nil
}

func (r *codeRepository) GetByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	var refCode models.ReferralCode
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&refCode).Error; err != nil {
		return nil, translate(err)
	}
	return &refCode, nil
}

func (r *codeRepository) ListByPartner(ctx context.Context, partnerID uint) ([]*models.ReferralCode, error) {
	var codes []*models.ReferralCode
	err := r.db.WithContext(ctx).Where("partner_id = ?", partnerID).Order("created_at DESC").Find(&codes).Error
	return codes, translate(err)
}

func (r *codeRepository) SetStatus(ctx context.Context, id uint, status models.CodeStatus) error {
	res := r.db.WithContext(ctx).Model(&models.ReferralCode{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *codeRepository) IncrementUsage(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ReferralCode{}).
		Where("id = ? AND (max_uses IS NULL OR current_uses < max_uses)", id).
		Update("current_uses", gorm.Expr("current_uses + ?", 1))
	if res.Error != nil {
		return false, translate(res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *codeRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.ReferralCode{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.CodeStatusActive, now).
		Update("status", models.CodeStatusExpired)
	return res.RowsAffected, translate(res.Error)
}

func (r *codeRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ReferralCode{}).Count(&count).Error
	return count, translate(err)
}

type clickRepository struct {
	db *gorm.DB
}

func (r *clickRepository) Create(ctx context.Context, click *models.Click) error {
	return translate(r.db.WithContext(ctx).Create(click).Error)
}

func (r *clickRepository) GetByID(ctx context.Context, id uint) (*models.Click, error) {
	var click models.Click
	if err := r.db.WithContext(ctx).First(&click, id).Error; err != nil {
		return nil, translate(err)
	}
	return &click, nil
}

func (r *clickRepository) GetByToken(ctx context.Context, token string) (*models.Click, error) {
	var click models.Click
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&click).Error; err != nil {
		return nil, translate(err)
	}
	return &click, nil
}

func (r *clickRepository) MarkConverted(ctx context.Context, clickID uint, userID string, conversionID uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Click{}).
		Where("id = ? AND state = ?", clickID, models.ClickStateUnconverted).
		Updates(map[string]interface{}{
			"state":             models.ClickStateConverted,
			"converted_user_id": userID,
			"conversion_id":     conversionID,
			"converted_at":      at,
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *clickRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Click{}).Count(&count).Error
	return count, translate(err)
}

func (r *clickRepository) CountConverted(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Click{}).
		Where("state = ?", models.ClickStateConverted).
		Count(&count).Error
	return count, translate(err)
}

type attributionRepository struct {
	db *gorm.DB
}

func (r *attributionRepository) Bind(ctx context.Context, attribution *models.UserAttribution) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(attribution)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *attributionRepository) GetByUserID(ctx context.Context, userID string) (*models.UserAttribution, error) {
	var attribution models.UserAttribution
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&attribution).Error; err != nil {
		return nil, translate(err)
	}
	return &attribution, nil
}
