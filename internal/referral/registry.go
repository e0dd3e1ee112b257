package referral

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/repository"
)

const (
	codeAlphabet      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeSuffixLength  = 4
	codeFragmentLimit = 8
	defaultFragment   = "REF"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

type CreateCodeInput struct {
	PartnerID   uint       `json:"partner_id"`
	Code        string     `json:"code,omitempty"`
	Description string     `json:"description,omitempty"`
	MaxUses     *int       `json:"max_uses,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// NormalizeCode is the canonical stored form of a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NameFragment derives the readable prefix of generated codes from a
// partner name.
func NameFragment(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == codeFragmentLimit {
				break
			}
		}
	}
	if b.Len() < 3 {
		return defaultFragment
	}
	return b.String()
}

// GenerateCode appends a random suffix drawn from r to fragment. It has no
// side effects besides reading r.
func GenerateCode(fragment string, r io.Reader) (string, error) {
	buf := make([]byte, codeSuffixLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read randomness: %w", err)
	}

	suffix := make([]byte, codeSuffixLength)
	for i, b := range buf {
		suffix[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return fragment + string(suffix), nil
}

// CreateCode registers a code for a partner. Without an explicit code one
// is generated, retrying on collision a bounded number of times.
func (s *Service) CreateCode(ctx context.Context, in CreateCodeInput) (*models.ReferralCode, error) {
	if in.PartnerID == 0 {
		return nil, invalid("partner_id", "is required")
	}
	if in.MaxUses != nil && *in.MaxUses <= 0 {
		return nil, invalid("max_uses", "must be positive")
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.clock()) {
		return nil, invalid("expires_at", "must be in the future")
	}

	partner, err := s.store.Partners().GetByID(ctx, in.PartnerID)
	if err != nil {
		return nil, notFound(err, "partner")
	}

	newCode := func(code string) *models.ReferralCode {
		return &models.ReferralCode{
			Code:        code,
			PartnerID:   partner.ID,
			Status:      models.CodeStatusActive,
			Description: strings.TrimSpace(in.Description),
			MaxUses:     in.MaxUses,
			ExpiresAt:   in.ExpiresAt,
		}
	}

	if strings.TrimSpace(in.Code) != "" {
		code := NormalizeCode(in.Code)
		if !codePattern.MatchString(code) {
			return nil, invalid("code", "must be 3-32 characters of A-Z, 0-9, '-' or '_'")
		}

		rc := newCode(code)
		if err := s.store.Codes().Create(ctx, rc); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return nil, ErrCodeTaken
			}
			return nil, fmt.Errorf("failed to create referral code: %w", err)
		}
		s.logger.Info("Created referral code %s for partner %d", rc.Code, partner.ID)
		return rc, nil
	}

	fragment := NameFragment(partner.Name)
	for attempt := 1; attempt <= s.cfg.CodeGenerationAttempts; attempt++ {
		code, err := GenerateCode(fragment, s.random)
		if err != nil {
			return nil, err
		}

		rc := newCode(code)
		err = s.store.Codes().Create(ctx, rc)
		if err == nil {
			s.logger.Info("Generated referral code %s for partner %d (attempt %d)", rc.Code, partner.ID, attempt)
			return rc, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("failed to create referral code: %w", err)
		}
		s.logger.Debug("Referral code %s collided, retrying", code)
	}

	return nil, ErrGenerationExhausted
}

// ResolveCode looks a code up ignoring case and surrounding whitespace.
func (s *Service) ResolveCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, invalid("code", "is required")
	}

	rc, err := s.store.Codes().GetByCode(ctx, normalized)
	if err != nil {
		return nil, notFound(err, "referral code")
	}
	return rc, nil
}

// IncrementUsage consumes one use of the code. The cap check and the
// increment are a single conditional update.
func (s *Service) IncrementUsage(ctx context.Context, codeID uint) error {
	ok, err := s.store.Codes().IncrementUsage(ctx, codeID)
	if err != nil {
		return notFound(err, "referral code")
	}
	if !ok {
		return ErrLimitExceeded
	}
	return nil
}

func (s *Service) ListCodes(ctx context.Context, partnerID uint) ([]*models.ReferralCode, error) {
	if _, err := s.store.Partners().GetByID(ctx, partnerID); err != nil {
		return nil, notFound(err, "partner")
	}
	return s.store.Codes().ListByPartner(ctx, partnerID)
}

func (s *Service) SetCodeStatus(ctx context.Context, codeID uint, status models.CodeStatus) (*models.ReferralCode, error) {
	if !status.Valid() {
		return nil, invalid("status", "must be active, inactive or expired")
	}
	if err := s.store.Codes().SetStatus(ctx, codeID, status); err != nil {
		return nil, notFound(err, "referral code")
	}
	return s.store.Codes().GetByID(ctx, codeID)
}

// ExpireCodes marks active codes past their expiry as expired.
func (s *Service) ExpireCodes(ctx context.Context) (int64, error) {
	n, err := s.store.Codes().ExpireStale(ctx, s.clock())
	if err != nil {
		return 0, fmt.Errorf("failed to expire codes: %w", err)
	}
	if n > 0 {
		s.logger.Info("Expired %d referral codes", n)
	}
	return n, nil
}
