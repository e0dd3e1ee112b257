package referral

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/repository"
)

// maxPercentageRate is 100% in basis points.
const maxPercentageRate = 10000

type PartnerInput struct {
	Name                   string                `json:"name"`
	Email                  string                `json:"email"`
	UserID                 string                `json:"user_id,omitempty"`
	Status                 models.PartnerStatus  `json:"status,omitempty"`
	CommissionType         models.CommissionType `json:"commission_type,omitempty"`
	SignupCommission       int64                 `json:"signup_commission"`
	SubscriptionCommission int64                 `json:"subscription_commission"`
	PayoutMethod           string                `json:"payout_method,omitempty"`
	PayoutDetails          models.JSONMap        `json:"payout_details,omitempty"`
}

func (in *PartnerInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.UserID = strings.TrimSpace(in.UserID)

	if in.Name == "" {
		return invalid("name", "is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return invalid("email", "is not a valid address")
	}
	if in.Status == "" {
		in.Status = models.PartnerStatusActive
	}
	if !in.Status.Valid() {
		return invalid("status", "is not a valid partner status")
	}
	if in.CommissionType == "" {
		in.CommissionType = models.CommissionTypeFlat
	}
	if !in.CommissionType.Valid() {
		return invalid("commission_type", "must be flat or percentage")
	}
	if in.SignupCommission < 0 {
		return invalid("signup_commission", "must not be negative")
	}
	if in.SubscriptionCommission < 0 {
		return invalid("subscription_commission", "must not be negative")
	}
	if in.CommissionType == models.CommissionTypePercentage && in.SubscriptionCommission > maxPercentageRate {
		return invalid("subscription_commission", "percentage rate is in basis points and cannot exceed 10000")
	}
	return nil
}

func (in *PartnerInput) apply(p *models.Partner) {
	p.Name = in.Name
	p.Email = in.Email
	p.UserID = in.UserID
	p.Status = in.Status
	p.CommissionType = in.CommissionType
	p.SignupCommission = in.SignupCommission
	p.SubscriptionCommission = in.SubscriptionCommission
	p.PayoutMethod = in.PayoutMethod
	p.PayoutDetails = in.PayoutDetails
}

func (s *Service) CreatePartner(ctx context.Context, in PartnerInput) (*models.Partner, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	partner := &models.Partner{}
	in.apply(partner)

	if err := s.store.Partners().Create(ctx, partner); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrPartnerExists
		}
		return nil, fmt.Errorf("failed to create partner: %w", err)
	}

	s.logger.Info("Created partner %d (%s)", partner.ID, partner.Email)
	return partner, nil
}

func (s *Service) GetPartner(ctx context.Context, id uint) (*models.Partner, error) {
	partner, err := s.store.Partners().GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "partner")
	}
	return partner, nil
}

func (s *Service) ListPartners(ctx context.Context, limit, offset int) ([]*models.Partner, error) {
	return s.store.Partners().List(ctx, limit, offset)
}

// UpdatePartner replaces the partner's profile and commission policy.
// Balances are never touched here.
func (s *Service) UpdatePartner(ctx context.Context, id uint, in PartnerInput) (*models.Partner, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	partner, err := s.store.Partners().GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "partner")
	}

	in.apply(partner)
	if err := s.store.Partners().UpdateProfile(ctx, partner); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrPartnerExists
		}
		return nil, notFound(err, "partner")
	}

	return s.store.Partners().GetByID(ctx, id)
}

// DeletePartner removes a partner that has nothing left to be paid.
func (s *Service) DeletePartner(ctx context.Context, id uint) error {
	partner, err := s.store.Partners().GetByID(ctx, id)
	if err != nil {
		return notFound(err, "partner")
	}
	if partner.PendingEarnings > 0 {
		return fmt.Errorf("%w: partner has %d in unpaid commissions", ErrInvalidTransition, partner.PendingEarnings)
	}
	if err := s.store.Partners().Delete(ctx, id); err != nil {
		return notFound(err, "partner")
	}

	s.logger.Info("Deleted partner %d", id)
	return nil
}
