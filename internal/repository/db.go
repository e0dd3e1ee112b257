package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/config"
	"github.com/ajolla/ottowrite-sub001/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode,
	)
}

func InitDatabase(cfg config.DatabaseConfig, app config.AppConfig) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if app.Environment == "development" {
		logLevel = logger.Info
	} else {
		logLevel = logger.Error
	}

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(BuildDSN(cfg)), gormConfig)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates the referral tables. The users table belongs to the
// identity provider and is not migrated here.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Partner{},
		&models.ReferralCode{},
		&models.Click{},
		&models.UserAttribution{},
		&models.Conversion{},
		&models.PayoutBatch{},
		&models.AdminUser{},
	)
	if err != nil {
		return err
	}

	// Uniqueness only covers rows that are not soft-deleted; drop the
	// full-table indexes older schemas carried.
	legacy := []struct {
		model interface{}
		name  string
	}{
		{&models.Partner{}, "idx_referral_partners_email"},
		{&models.ReferralCode{}, "idx_referral_codes_code"},
	}
	m := db.Migrator()
	for _, idx := range legacy {
		if m.HasIndex(idx.model, idx.name) {
			if err := m.DropIndex(idx.model, idx.name); err != nil {
				return fmt.Errorf("failed to drop index %s: %w", idx.name, err)
			}
		}
	}
	return nil
}

func CloseDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps gorm errors onto the repository sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}
