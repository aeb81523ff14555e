// Package service contains the business logic layer: authentication, the
// credit ledger, and the container lifecycle orchestrator.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dockhive/dockhive/internal/apperror"
	"github.com/dockhive/dockhive/internal/repository"
)

// CreditService fronts the credit ledger. Balance mutation goes through the
// repository's atomic operations only; this layer adds the admin policy.
type CreditService struct {
	credits repository.CreditRepository
	users   repository.UserRepository
	logger  *slog.Logger
}

// NewCreditService creates a CreditService.
func NewCreditService(
	credits repository.CreditRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) *CreditService {
	return &CreditService{
		credits: credits,
		users:   users,
		logger:  logger,
	}
}

// Balance returns the user's current balance; a user never queried before
// starts at zero.
func (s *CreditService) Balance(ctx context.Context, username string) (int64, error) {
	balance, err := s.credits.Balance(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("getting balance for %s: %w", username, err)
	}
	return balance, nil
}

// SetCredits sets target's balance to an absolute value. Only admins may
// call it; a valid non-admin caller gets Forbidden, not Unauthorized.
func (s *CreditService) SetCredits(ctx context.Context, actor, target string, credits int64) error {
	actingUser, err := s.users.GetByIdentifier(ctx, actor)
	if err != nil {
		return fmt.Errorf("looking up acting user %s: %w", actor, err)
	}
	if !actingUser.Admin {
		return apperror.Forbidden("admin permissions required")
	}

	if _, err := s.users.GetByIdentifier(ctx, target); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.ValidationFailed("username", "user not found")
		}
		return fmt.Errorf("looking up target user %s: %w", target, err)
	}

	if err := s.credits.SetBalance(ctx, target, credits); err != nil {
		return fmt.Errorf("setting credits for %s: %w", target, err)
	}

	s.logger.Info("credits adjusted",
		slog.String("admin", actor),
		slog.String("user", target),
		slog.Int64("credits", credits),
	)

	return nil
}
