package repository

import (
	"context"

	"gorm.io/gorm"
)

// GormStore is the Postgres-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Partners() PartnerRepository {
	return &partnerRepository{db: s.db}
}

func (s *GormStore) Codes() CodeRepository {
	return &codeRepository{db: s.db}
}

func (s *GormStore) Clicks() ClickRepository {
	return &clickRepository{db: s.db}
}

func (s *GormStore) Attributions() AttributionRepository {
	return &attributionRepository{db: s.db}
}

func (s *GormStore) Conversions() ConversionRepository {
	return &conversionRepository{db: s.db}
}

func (s *GormStore) Payouts() PayoutRepository {
	return &payoutRepository{db: s.db}
}

func (s *GormStore) Users() UserRepository {
	return NewUserRepository(s.db)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
