package referral

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/events"
	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/repository"

	"github.com/google/uuid"
)

const maxUTMLength = 255

type UTMParams struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
	Term     string `json:"utm_term,omitempty"`
	Content  string `json:"utm_content,omitempty"`
}

type TrackInput struct {
	Code      string
	ClientIP  string
	UserAgent string
	Referer   string
	UTM       UTMParams
}

type TrackResult struct {
	TrackingID string    `json:"trackingId"`
	ClickID    uint      `json:"clickId"`
	PartnerID  uint      `json:"partnerId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Track records a click on a usable code and mints the attribution token the
// caller hands to the visitor. A rejected click writes nothing. Code usage is
// not consumed here; it is consumed when the click converts.
func (s *Service) Track(ctx context.Context, in TrackInput) (*TrackResult, error) {
	code := NormalizeCode(in.Code)
	if code == "" {
		return nil, invalid("code", "is required")
	}

	ipHash := s.fingerprint(in.ClientIP)
	if err := s.checkClickRate(ctx, ipHash); err != nil {
		return nil, err
	}

	now := s.clock()

	rc, err := s.store.Codes().GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("failed to load referral code: %w", err)
	}

	switch {
	case rc.Status == models.CodeStatusInactive:
		return nil, ErrInvalidCode
	case rc.IsExpired(now):
		return nil, ErrCodeExpired
	case rc.IsExhausted():
		return nil, ErrCodeLimitReached
	}

	partner, err := s.store.Partners().GetByID(ctx, rc.PartnerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("failed to load partner: %w", err)
	}
	if !partner.IsActive() {
		return nil, ErrPartnerInactive
	}

	token, err := s.mintToken()
	if err != nil {
		return nil, err
	}

	click := &models.Click{
		ReferralCodeID: rc.ID,
		PartnerID:      partner.ID,
		IPHash:         ipHash,
		UserAgentHash:  s.fingerprint(in.UserAgent),
		Referer:        strings.TrimSpace(in.Referer),
		UTMSource:      truncate(in.UTM.Source, maxUTMLength),
		UTMMedium:      truncate(in.UTM.Medium, maxUTMLength),
		UTMCampaign:    truncate(in.UTM.Campaign, maxUTMLength),
		UTMTerm:        truncate(in.UTM.Term, maxUTMLength),
		UTMContent:     truncate(in.UTM.Content, maxUTMLength),
		ClickedAt:      now,
		Token:          token,
		TokenExpiresAt: now.Add(s.cfg.AttributionWindow),
		State:          models.ClickStateUnconverted,
	}

	if err := s.store.Clicks().Create(ctx, click); err != nil {
		return nil, fmt.Errorf("failed to record click: %w", err)
	}

	s.logger.Debug("Tracked click %d on code %s", click.ID, rc.Code)
	s.publish(ctx, events.TypeClickTracked, partner.ID, map[string]interface{}{
		"click_id":     click.ID,
		"code":         rc.Code,
		"utm_source":   click.UTMSource,
		"utm_campaign": click.UTMCampaign,
	})

	return &TrackResult{
		TrackingID: token,
		ClickID:    click.ID,
		PartnerID:  partner.ID,
		ExpiresAt:  click.TokenExpiresAt,
	}, nil
}

func (s *Service) checkClickRate(ctx context.Context, ipHash string) error {
	if s.limiter == nil || ipHash == "" {
		return nil
	}

	allowed, err := s.limiter.Allow(ctx, "track:"+ipHash)
	if err != nil {
		// Fail open.
		s.logger.Warn("Click rate limiter unavailable: %v", err)
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

// mintToken returns 64 hex characters built from two random UUIDs.
func (s *Service) mintToken() (string, error) {
	var b strings.Builder
	for i := 0; i < 2; i++ {
		id, err := uuid.NewRandomFromReader(s.random)
		if err != nil {
			return "", fmt.Errorf("failed to mint attribution token: %w", err)
		}
		b.WriteString(strings.ReplaceAll(id.String(), "-", ""))
	}
	return b.String(), nil
}

// fingerprint hashes client network data so raw IPs and user agents are
// never stored.
func (s *Service) fingerprint(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	h := sha256.Sum256([]byte(s.cfg.FingerprintSalt + "|" + value))
	return hex.EncodeToString(h[:])
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
