// Package repository defines the persistence interfaces the services depend
// on. The sqlite subpackage implements them; tests substitute in-memory
// versions.
package repository

import (
	"context"

	"github.com/dockhive/dockhive/internal/model"
)

// UserRepository stores user accounts. Usernames and emails are matched
// case-insensitively (the implementation stores them lowercased).
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	// GetByIdentifier looks a user up by username or email.
	// Returns apperror.ErrNotFound if no user matches.
	GetByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	MarkVerified(ctx context.Context, username string) error
}

// CreditRepository owns the per-user credit balances. No other component
// writes credits directly.
type CreditRepository interface {
	// Balance returns the user's balance, lazily creating a zero row when
	// none exists. Absence is not an error.
	Balance(ctx context.Context, username string) (int64, error)
	// ReserveAndDebit atomically checks balance >= amount and subtracts
	// amount. Returns false without mutation when the balance is short.
	// Concurrent callers for the same user see exactly-once semantics.
	ReserveAndDebit(ctx context.Context, username string, amount int64) (bool, error)
	// Refund adds amount back; the compensation path when a later
	// provisioning step fails.
	Refund(ctx context.Context, username string, amount int64) error
	// SetBalance sets the balance to an absolute value (admin adjustment),
	// with upsert semantics.
	SetBalance(ctx context.Context, username string, credits int64) error
}

// ContainerRepository is the catalog of provisioned containers, authoritative
// for ownership and existence. All lookups are owner-scoped.
type ContainerRepository interface {
	Insert(ctx context.Context, c *model.Container) error
	ListByOwner(ctx context.Context, owner string) ([]model.Container, error)
	// GetByOwnerAndName returns apperror.ErrNotFound when the record is
	// absent or owned by someone else; the two cases are indistinguishable.
	GetByOwnerAndName(ctx context.Context, owner, name string) (*model.Container, error)
	// CountActiveByOwner counts records whose state counts against the
	// plan limit (everything except failed).
	CountActiveByOwner(ctx context.Context, owner string) (int, error)
	// UpdateProvisioned commits the runtime id, leased port and new state
	// after the engine produced a live container.
	UpdateProvisioned(ctx context.Context, owner, name, runtimeID string, port int, state model.ContainerState) error
	UpdateState(ctx context.Context, owner, name string, state model.ContainerState) error
	Remove(ctx context.Context, owner, name string) error
	// LeasedPorts returns every port currently held by a record, for
	// reseeding the allocator across restarts.
	LeasedPorts(ctx context.Context) ([]int, error)
}

// VerificationCodeRepository stores one-time email verification codes.
type VerificationCodeRepository interface {
	InsertCode(ctx context.Context, code *model.VerificationCode) error
	Exists(ctx context.Context, code string) (bool, error)
	// Consume deletes the code. Returns apperror.ErrNotFound if it was
	// already consumed, so redemption happens at most once.
	Consume(ctx context.Context, code string) error
}

// IPLogRepository records the last seen address per user at login.
type IPLogRepository interface {
	Record(ctx context.Context, username, ip string) error
}
