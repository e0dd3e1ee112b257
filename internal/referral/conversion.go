package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/events"
	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/payment"
	"github.com/ajolla/ottowrite-sub001/internal/repository"
)

const autoApproveBatch = 500

type ConversionInput struct {
	UserID           string                `json:"userId"`
	Type             models.ConversionType `json:"conversionType"`
	SubscriptionTier string                `json:"subscriptionTier,omitempty"`
	SubscriptionID   string                `json:"subscriptionId,omitempty"`
	AttributionToken string                `json:"trackingId,omitempty"`
}

type ConversionResult struct {
	Success          bool                    `json:"success"`
	ConversionID     uint                    `json:"conversionId,omitempty"`
	CommissionAmount int64                   `json:"commissionAmount"`
	Status           models.CommissionStatus `json:"status,omitempty"`
	Duplicate        bool                    `json:"duplicate,omitempty"`
	Message          string                  `json:"message,omitempty"`
}

func (in *ConversionInput) normalize() error {
	in.UserID = strings.TrimSpace(in.UserID)
	in.SubscriptionTier = strings.ToLower(strings.TrimSpace(in.SubscriptionTier))
	in.SubscriptionID = strings.TrimSpace(in.SubscriptionID)

	if in.UserID == "" {
		return invalid("userId", "is required")
	}
	if !in.Type.Valid() {
		return invalid("conversionType", "must be signup, subscription or upgrade")
	}
	if in.Type != models.ConversionTypeSignup && in.SubscriptionTier == "" {
		return invalid("subscriptionTier", "is required for subscription and upgrade conversions")
	}
	return nil
}

func noAttribution() *ConversionResult {
	return &ConversionResult{Success: false, Message: NoAttributionMessage}
}

func existingResult(c *models.Conversion) *ConversionResult {
	return &ConversionResult{
		Success:          true,
		ConversionID:     c.ID,
		CommissionAmount: c.CommissionAmount,
		Status:           c.CommissionStatus,
		Duplicate:        true,
		Message:          "Conversion already recorded",
	}
}

// ProcessConversion credits a business event to the partner that referred
// the user. Calling it again with the same user, type and tier returns the
// first result without crediting twice. A missing attribution is a normal
// outcome, reported with Success false.
func (s *Service) ProcessConversion(ctx context.Context, in ConversionInput) (*ConversionResult, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	if _, err := s.store.Users().GetByID(ctx, in.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	click, err := s.ResolveForUser(ctx, in.UserID, in.AttributionToken)
	if err != nil {
		if errors.Is(err, ErrNoAttribution) {
			return noAttribution(), nil
		}
		return nil, err
	}

	partner, err := s.store.Partners().GetByID(ctx, click.PartnerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return noAttribution(), nil
		}
		return nil, fmt.Errorf("failed to load partner: %w", err)
	}
	if partner.UserID != "" && partner.UserID == in.UserID {
		s.logger.Info("Ignoring self-referral of user %s via partner %d", in.UserID, partner.ID)
		return noAttribution(), nil
	}

	tierKey := models.TierKey(in.Type, in.SubscriptionTier)
	existing, err := s.store.Conversions().FindByKey(ctx, click.ReferralCodeID, in.UserID, in.Type, tierKey)
	if err == nil {
		return existingResult(existing), nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up conversion: %w", err)
	}

	value, err := s.conversionValue(ctx, in)
	if err != nil {
		return nil, err
	}

	var amount int64
	if partner.IsActive() {
		amount = CalculateCommission(partner, in.Type, in.SubscriptionTier, value)
	}

	now := s.clock()
	conversion := &models.Conversion{
		ReferralCodeID:   click.ReferralCodeID,
		UserID:           in.UserID,
		ConversionType:   in.Type,
		TierKey:          tierKey,
		PartnerID:        partner.ID,
		ClickID:          click.ID,
		CommissionAmount: amount,
		CommissionStatus: models.CommissionStatusPending,
		SubscriptionTier: in.SubscriptionTier,
		SubscriptionID:   in.SubscriptionID,
		ConversionValue:  value,
	}
	if amount == 0 {
		conversion.CommissionStatus = models.CommissionStatusApproved
		conversion.ApprovedAt = &now
	}
	if in.Type != models.ConversionTypeSignup && s.cfg.RecurringWindow > 0 {
		until := now.Add(s.cfg.RecurringWindow)
		conversion.CommissionEligibleUntil = &until
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		return s.recordConversion(ctx, tx, conversion, click.Token, now)
	})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrDuplicate):
		existing, findErr := s.store.Conversions().FindByKey(ctx, click.ReferralCodeID, in.UserID, in.Type, tierKey)
		if findErr != nil {
			return nil, fmt.Errorf("failed to load concurrent conversion: %w", findErr)
		}
		return existingResult(existing), nil
	case errors.Is(err, ErrNoAttribution):
		return noAttribution(), nil
	case errors.Is(err, ErrLimitExceeded):
		return nil, err
	default:
		s.logger.Error("Failed to record %s conversion for user %s: %v", in.Type, in.UserID, err)
		return nil, fmt.Errorf("failed to record conversion: %w", err)
	}

	s.logger.Info("Recorded %s conversion %d for partner %d: commission %d (%s)",
		conversion.ConversionType, conversion.ID, partner.ID, amount, conversion.CommissionStatus)
	s.publish(ctx, events.TypeConversionRecorded, partner.ID, map[string]interface{}{
		"conversion_id":     conversion.ID,
		"conversion_type":   conversion.ConversionType,
		"commission_amount": amount,
		"commission_status": conversion.CommissionStatus,
		"subscription_tier": conversion.SubscriptionTier,
	})

	return &ConversionResult{
		Success:          true,
		ConversionID:     conversion.ID,
		CommissionAmount: amount,
		Status:           conversion.CommissionStatus,
		Message:          "Conversion recorded",
	}, nil
}

// recordConversion writes the conversion, consumes code usage on the click's
// first conversion, binds the user to the click and moves the partner's
// pending balance, all in tx.
func (s *Service) recordConversion(ctx context.Context, tx repository.Store, conversion *models.Conversion, token string, now time.Time) error {
	if err := tx.Conversions().Create(ctx, conversion); err != nil {
		return err
	}

	first, err := tx.Clicks().MarkConverted(ctx, conversion.ClickID, conversion.UserID, conversion.ID, now)
	if err != nil {
		return err
	}

	if first {
		ok, err := tx.Codes().IncrementUsage(ctx, conversion.ReferralCodeID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLimitExceeded
		}
	} else {
		click, err := tx.Clicks().GetByID(ctx, conversion.ClickID)
		if err != nil {
			return err
		}
		if conv, ok := click.Conversion(); !ok || conv.UserID != conversion.UserID {
			return ErrNoAttribution
		}
	}

	bound, err := tx.Attributions().Bind(ctx, &models.UserAttribution{
		UserID:  conversion.UserID,
		ClickID: conversion.ClickID,
		Token:   token,
	})
	if err != nil {
		return err
	}
	if !bound {
		existing, err := tx.Attributions().GetByUserID(ctx, conversion.UserID)
		if err != nil {
			return err
		}
		if existing.ClickID != conversion.ClickID {
			return ErrNoAttribution
		}
	}

	if conversion.CommissionAmount > 0 {
		if err := tx.Partners().AddPending(ctx, conversion.PartnerID, conversion.CommissionAmount); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) conversionValue(ctx context.Context, in ConversionInput) (int64, error) {
	if in.Type == models.ConversionTypeSignup || in.SubscriptionTier == models.FreeTier {
		return 0, nil
	}
	if s.pricing == nil {
		return 0, fmt.Errorf("no pricing provider configured")
	}

	price, err := s.pricing.TierPrice(ctx, in.SubscriptionTier)
	if err != nil {
		if errors.Is(err, payment.ErrUnknownTier) {
			return 0, invalid("subscriptionTier", "unknown tier "+in.SubscriptionTier)
		}
		return 0, fmt.Errorf("failed to price tier %s: %w", in.SubscriptionTier, err)
	}
	return price, nil
}

// ApproveConversion moves a pending commission to approved.
func (s *Service) ApproveConversion(ctx context.Context, id uint) (*models.Conversion, error) {
	ok, err := s.store.Conversions().Approve(ctx, id, s.clock())
	if err != nil {
		return nil, fmt.Errorf("failed to approve conversion: %w", err)
	}

	conversion, err := s.store.Conversions().GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "conversion")
	}
	if !ok {
		return nil, fmt.Errorf("%w: conversion %d is %s", ErrInvalidTransition, id, conversion.CommissionStatus)
	}

	s.publish(ctx, events.TypeConversionApproved, conversion.PartnerID, map[string]interface{}{
		"conversion_id":     conversion.ID,
		"commission_amount": conversion.CommissionAmount,
	})
	return conversion, nil
}

// CancelConversion voids a pending or approved commission that no payout
// batch holds and takes its amount back out of the partner's balances.
func (s *Service) CancelConversion(ctx context.Context, id uint, reason string) (*models.Conversion, error) {
	var conversion *models.Conversion

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		current, err := tx.Conversions().GetByID(ctx, id)
		if err != nil {
			return notFound(err, "conversion")
		}

		ok, err := tx.Conversions().Cancel(ctx, id, strings.TrimSpace(reason), s.clock())
		if err != nil {
			return err
		}
		if !ok {
			if current.PayoutBatchID != nil {
				return fmt.Errorf("%w: conversion %d is held by payout batch %d", ErrInvalidTransition, id, *current.PayoutBatchID)
			}
			return fmt.Errorf("%w: conversion %d is %s", ErrInvalidTransition, id, current.CommissionStatus)
		}

		if current.CommissionAmount > 0 {
			if err := tx.Partners().AddPending(ctx, current.PartnerID, -current.CommissionAmount); err != nil {
				return err
			}
		}

		conversion, err = tx.Conversions().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Cancelled conversion %d (partner %d, amount %d)", conversion.ID, conversion.PartnerID, conversion.CommissionAmount)
	s.publish(ctx, events.TypeConversionCancelled, conversion.PartnerID, map[string]interface{}{
		"conversion_id":     conversion.ID,
		"commission_amount": conversion.CommissionAmount,
		"reason":            conversion.CancelReason,
	})
	return conversion, nil
}

// AutoApprove approves pending commissions older than hold.
func (s *Service) AutoApprove(ctx context.Context, hold time.Duration) (int, error) {
	cutoff := s.clock().Add(-hold)
	approved := 0

	for {
		pending, err := s.store.Conversions().ListPendingBefore(ctx, cutoff, autoApproveBatch)
		if err != nil {
			return approved, fmt.Errorf("failed to list pending conversions: %w", err)
		}

		progressed := false
		for _, c := range pending {
			ok, err := s.store.Conversions().Approve(ctx, c.ID, s.clock())
			if err != nil {
				return approved, fmt.Errorf("failed to approve conversion %d: %w", c.ID, err)
			}
			if !ok {
				continue
			}
			progressed = true
			approved++
			s.publish(ctx, events.TypeConversionApproved, c.PartnerID, map[string]interface{}{
				"conversion_id":     c.ID,
				"commission_amount": c.CommissionAmount,
				"auto":              true,
			})
		}

		if len(pending) < autoApproveBatch || !progressed {
			break
		}
	}

	if approved > 0 {
		s.logger.Info("Auto-approved %d conversions older than %s", approved, hold)
	}
	return approved, nil
}

func (s *Service) ListConversions(ctx context.Context, partnerID uint, limit, offset int) ([]*models.Conversion, error) {
	if _, err := s.store.Partners().GetByID(ctx, partnerID); err != nil {
		return nil, notFound(err, "partner")
	}
	return s.store.Conversions().ListByPartner(ctx, partnerID, limit, offset)
}
