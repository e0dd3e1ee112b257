package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/models"

	"gorm.io/gorm"
)

type adminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) AdminRepository {
	return &adminRepository{db: db}
}

func (r *adminRepository) Create(ctx context.Context, admin *models.AdminUser) error {
	return translate(r.db.WithContext(ctx).Create(admin).Error)
}

func (r *adminRepository) GetByID(ctx context.Context, id uint) (*models.AdminUser, error) {
	var admin models.AdminUser
	if err := r.db.WithContext(ctx).First(&admin, id).Error; err != nil {
		return nil, translate(err)
	}
	return &admin, nil
}

func (r *adminRepository) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	var admin models.AdminUser
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&admin).Error; err != nil {
		return nil, translate(err)
	}
	return &admin, nil
}

func (r *adminRepository) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	return translate(r.db.WithContext(ctx).Model(&models.AdminUser{}).Where("id = ?", id).
		Update("last_login_at", at).Error)
}

// CreateDefaultAdmin seeds a super admin on first start.
func CreateDefaultAdmin(ctx context.Context, repo AdminRepository, username, password, email string) error {
	existing, err := repo.GetByUsername(ctx, username)
	if err == nil && existing != nil {
		return fmt.Errorf("admin with username %s already exists", username)
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	admin := &models.AdminUser{
		Username: username,
		Email:    email,
		Role:     models.AdminRoleSuperAdmin,
		IsActive: true,
	}

	if err := admin.SetPassword(password); err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return repo.Create(ctx, admin)
}
