package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ajolla/ottowrite-sub001/internal/events"
	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/repository"
)

var openPayoutStatuses = []models.PayoutStatus{models.PayoutStatusPending, models.PayoutStatusProcessing}

// SchedulePayout claims every approved, unclaimed commission of the partner
// into a new pending batch. Concurrent calls never claim the same
// conversion twice; a call that finds nothing left fails with
// ErrNothingToPay and leaves no batch behind.
func (s *Service) SchedulePayout(ctx context.Context, partnerID uint) (*models.PayoutBatch, error) {
	partner, err := s.store.Partners().GetByID(ctx, partnerID)
	if err != nil {
		return nil, notFound(err, "partner")
	}
	if partner.Status == models.PartnerStatusSuspended {
		return nil, ErrPartnerInactive
	}

	var batch *models.PayoutBatch
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		batch = &models.PayoutBatch{
			PartnerID: partnerID,
			Status:    models.PayoutStatusPending,
		}
		if err := tx.Payouts().Create(ctx, batch); err != nil {
			return err
		}

		claimed, err := tx.Conversions().ClaimForBatch(ctx, partnerID, batch.ID)
		if err != nil {
			return err
		}
		if len(claimed) == 0 {
			return ErrNothingToPay
		}

		var amount int64
		ids := make([]int64, 0, len(claimed))
		for _, c := range claimed {
			amount += c.CommissionAmount
			ids = append(ids, int64(c.ID))
		}

		if s.cfg.MinimumPayout > 0 && amount < s.cfg.MinimumPayout {
			return fmt.Errorf("%w: %d < %d", ErrBelowMinimum, amount, s.cfg.MinimumPayout)
		}

		if err := tx.Payouts().SetClaim(ctx, batch.ID, amount, ids); err != nil {
			return err
		}
		batch.Amount = amount
		batch.ConversionIDs = ids
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNothingToPay) || errors.Is(err, ErrBelowMinimum) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to schedule payout: %w", err)
	}

	s.logger.Info("Scheduled payout %d for partner %d: %d across %d conversions",
		batch.ID, partnerID, batch.Amount, len(batch.ConversionIDs))
	s.publish(ctx, events.TypePayoutScheduled, partnerID, map[string]interface{}{
		"payout_id":        batch.ID,
		"amount":           batch.Amount,
		"conversion_count": len(batch.ConversionIDs),
	})
	return batch, nil
}

// MarkProcessing records that the disbursement has been handed to the
// payment rail.
func (s *Service) MarkProcessing(ctx context.Context, batchID uint) (*models.PayoutBatch, error) {
	ok, err := s.store.Payouts().Transition(ctx, batchID,
		[]models.PayoutStatus{models.PayoutStatusPending}, models.PayoutStatusProcessing,
		map[string]interface{}{"processing_at": s.clock()})
	if err != nil {
		return nil, fmt.Errorf("failed to update payout: %w", err)
	}

	batch, err := s.store.Payouts().GetByID(ctx, batchID)
	if err != nil {
		return nil, notFound(err, "payout batch")
	}
	if !ok && batch.Status != models.PayoutStatusProcessing {
		return nil, fmt.Errorf("%w: payout %d is %s", ErrInvalidTransition, batchID, batch.Status)
	}
	return batch, nil
}

// MarkProcessed completes the batch: its conversions become paid and the
// amount moves from the partner's pending to paid balance. Replaying with
// the same transaction id is a no-op.
func (s *Service) MarkProcessed(ctx context.Context, batchID uint, transactionID string) (*models.PayoutBatch, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, invalid("transaction_id", "is required")
	}

	var batch *models.PayoutBatch
	replay := false

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		current, err := tx.Payouts().GetForUpdate(ctx, batchID)
		if err != nil {
			return notFound(err, "payout batch")
		}

		if current.Status == models.PayoutStatusCompleted {
			if current.TransactionID == transactionID {
				batch, replay = current, true
				return nil
			}
			return fmt.Errorf("%w: payout %d already completed with transaction %s",
				ErrInvalidTransition, batchID, current.TransactionID)
		}
		if !current.IsOpen() {
			return fmt.Errorf("%w: payout %d is %s", ErrInvalidTransition, batchID, current.Status)
		}

		now := s.clock()
		ok, err := tx.Payouts().Transition(ctx, batchID, openPayoutStatuses, models.PayoutStatusCompleted,
			map[string]interface{}{"transaction_id": transactionID, "completed_at": now})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: payout %d changed concurrently", ErrInvalidTransition, batchID)
		}

		if _, err := tx.Conversions().MarkBatchPaid(ctx, batchID, now); err != nil {
			return err
		}
		if current.Amount > 0 {
			if err := tx.Partners().Settle(ctx, current.PartnerID, current.Amount); err != nil {
				return err
			}
		}

		batch, err = tx.Payouts().GetByID(ctx, batchID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !replay {
		s.logger.Info("Payout %d completed (transaction %s, amount %d)", batch.ID, transactionID, batch.Amount)
		s.publish(ctx, events.TypePayoutCompleted, batch.PartnerID, map[string]interface{}{
			"payout_id":      batch.ID,
			"amount":         batch.Amount,
			"transaction_id": transactionID,
		})
	}
	return batch, nil
}

// MarkFailed fails the batch and releases its conversions, which stay
// approved and become claimable again. Balances are left as they were.
func (s *Service) MarkFailed(ctx context.Context, batchID uint, reason string) (*models.PayoutBatch, error) {
	return s.closeBatch(ctx, batchID, models.PayoutStatusFailed, openPayoutStatuses, map[string]interface{}{
		"failure_reason": strings.TrimSpace(reason),
		"failed_at":      s.clock(),
	})
}

// CancelPayout withdraws a batch that has not been sent yet.
func (s *Service) CancelPayout(ctx context.Context, batchID uint) (*models.PayoutBatch, error) {
	return s.closeBatch(ctx, batchID, models.PayoutStatusCancelled,
		[]models.PayoutStatus{models.PayoutStatusPending},
		map[string]interface{}{"cancelled_at": s.clock()})
}

func (s *Service) closeBatch(ctx context.Context, batchID uint, to models.PayoutStatus, from []models.PayoutStatus, fields map[string]interface{}) (*models.PayoutBatch, error) {
	var batch *models.PayoutBatch
	replay := false

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		current, err := tx.Payouts().GetForUpdate(ctx, batchID)
		if err != nil {
			return notFound(err, "payout batch")
		}
		if current.Status == to {
			batch, replay = current, true
			return nil
		}

		ok, err := tx.Payouts().Transition(ctx, batchID, from, to, fields)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: payout %d is %s", ErrInvalidTransition, batchID, current.Status)
		}

		if _, err := tx.Conversions().ReleaseBatch(ctx, batchID); err != nil {
			return err
		}

		batch, err = tx.Payouts().GetByID(ctx, batchID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !replay {
		eventType := events.TypePayoutFailed
		if to == models.PayoutStatusCancelled {
			eventType = events.TypePayoutCancelled
		}
		s.logger.Warn("Payout %d %s, %d conversions released", batch.ID, to, len(batch.ConversionIDs))
		s.publish(ctx, eventType, batch.PartnerID, map[string]interface{}{
			"payout_id":      batch.ID,
			"amount":         batch.Amount,
			"failure_reason": batch.FailureReason,
		})
	}
	return batch, nil
}

type ScheduleSummary struct {
	Batches []*models.PayoutBatch `json:"batches"`
	Skipped int                   `json:"skipped"`
}

// ScheduleAll creates a batch for every active partner holding claimable
// commissions. Partners below the minimum or without claimable rows are
// skipped; other failures are collected and returned together.
func (s *Service) ScheduleAll(ctx context.Context) (*ScheduleSummary, error) {
	ids, err := s.store.Conversions().PartnerIDsWithClaimable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list partners with claimable commissions: %w", err)
	}

	summary := &ScheduleSummary{}
	var errs []error

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		partner, err := s.store.Partners().GetByID(ctx, id)
		if err != nil || !partner.IsActive() {
			summary.Skipped++
			continue
		}

		batch, err := s.SchedulePayout(ctx, id)
		switch {
		case err == nil:
			summary.Batches = append(summary.Batches, batch)
		case errors.Is(err, ErrNothingToPay), errors.Is(err, ErrBelowMinimum):
			summary.Skipped++
		default:
			s.logger.Error("Failed to schedule payout for partner %d: %v", id, err)
			errs = append(errs, fmt.Errorf("partner %d: %w", id, err))
		}
	}

	return summary, errors.Join(errs...)
}

func (s *Service) GetPayout(ctx context.Context, batchID uint) (*models.PayoutBatch, error) {
	batch, err := s.store.Payouts().GetByID(ctx, batchID)
	if err != nil {
		return nil, notFound(err, "payout batch")
	}
	return batch, nil
}

func (s *Service) ListPayouts(ctx context.Context, partnerID uint, limit, offset int) ([]*models.PayoutBatch, error) {
	if _, err := s.store.Partners().GetByID(ctx, partnerID); err != nil {
		return nil, notFound(err, "partner")
	}
	return s.store.Payouts().ListByPartner(ctx, partnerID, limit, offset)
}
