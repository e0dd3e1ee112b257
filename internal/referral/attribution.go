package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/repository"
)

// ResolveAttribution returns the click behind an attribution token. Missing,
// unknown and expired tokens yield ErrNoAttribution. Validity is judged on
// the token alone; later changes to the code do not void the click.
func (s *Service) ResolveAttribution(ctx context.Context, token string) (*models.Click, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoAttribution
	}

	click, err := s.store.Clicks().GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoAttribution
		}
		return nil, fmt.Errorf("failed to load click: %w", err)
	}

	if !click.TokenValid(s.clock()) {
		return nil, ErrNoAttribution
	}

	return click, nil
}

// ResolveForUser resolves the click a user's conversion is credited to. A
// stored binding wins over any presented token. Without one the token is
// resolved, and a click already converted by another user does not count.
// Nothing is persisted here; the binding is written together with the
// user's first recorded conversion.
func (s *Service) ResolveForUser(ctx context.Context, userID, token string) (*models.Click, error) {
	binding, err := s.store.Attributions().GetByUserID(ctx, userID)
	switch {
	case err == nil:
		click, err := s.store.Clicks().GetByID(ctx, binding.ClickID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrNoAttribution
			}
			return nil, fmt.Errorf("failed to load click: %w", err)
		}
		return click, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to load attribution: %w", err)
	}

	click, err := s.ResolveAttribution(ctx, token)
	if err != nil {
		return nil, err
	}
	if conv, ok := click.Conversion(); ok && conv.UserID != userID {
		return nil, ErrNoAttribution
	}
	return click, nil
}
