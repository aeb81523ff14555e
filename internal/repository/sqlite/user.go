package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/dockhive/dockhive/internal/apperror"
	"github.com/dockhive/dockhive/internal/model"
	"github.com/dockhive/dockhive/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

// Create inserts a new user. Username and email are stored lowercased so
// lookups are case-insensitive; the original casing of the username is kept
// in display_name.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.ID = xid.New().String()
	user.DisplayName = user.Username
	user.Username = strings.ToLower(user.Username)
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, display_name, email, password_hash, verified, admin, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.DisplayName,
		user.Email,
		user.PasswordHash,
		user.Verified,
		user.Admin,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
	}

	return nil
}

// GetByIdentifier retrieves a user by username or email, case-insensitively.
func (db *DB) GetByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	var u model.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, display_name, email, password_hash, verified, admin, created_at, updated_at
		 FROM users WHERE username = ? OR email = ?`,
		identifier, identifier,
	).Scan(
		&u.ID,
		&u.Username,
		&u.DisplayName,
		&u.Email,
		&u.PasswordHash,
		&u.Verified,
		&u.Admin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", identifier)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", identifier, err)
	}

	return &u, nil
}

// UsernameExists reports whether a user with the given username exists.
func (db *DB) UsernameExists(ctx context.Context, username string) (bool, error) {
	return db.userFieldExists(ctx, "username", strings.ToLower(username))
}

// EmailExists reports whether a user with the given email exists.
func (db *DB) EmailExists(ctx context.Context, email string) (bool, error) {
	return db.userFieldExists(ctx, "email", strings.ToLower(email))
}

func (db *DB) userFieldExists(ctx context.Context, column, value string) (bool, error) {
	// column is one of two compile-time constants, never caller input.
	var one int
	err := db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM users WHERE %s = ? LIMIT 1`, column), value,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: checking users.%s: %w", column, err)
	}
	return true, nil
}

// MarkVerified flips the user's verified flag after code redemption.
func (db *DB) MarkVerified(ctx context.Context, username string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET verified = 1, updated_at = ? WHERE username = ?`,
		time.Now(), strings.ToLower(username),
	)
	if err != nil {
		return fmt.Errorf("sqlite: verifying user %s: %w", username, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: verifying user %s: %w", username, err)
	}
	if n == 0 {
		return apperror.NotFound("user", username)
	}

	return nil
}
