package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dockhive/dockhive/internal/apperror"
	"github.com/dockhive/dockhive/internal/model"
	"github.com/dockhive/dockhive/internal/repository"
)

var (
	_ repository.VerificationCodeRepository = (*DB)(nil)
	_ repository.IPLogRepository            = (*DB)(nil)
)

// InsertCode stores a freshly issued verification code.
func (db *DB) InsertCode(ctx context.Context, code *model.VerificationCode) error {
	code.CreatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO verification_codes (code, username, created_at) VALUES (?, ?, ?)`,
		code.Code, code.Username, code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting verification code for %s: %w", code.Username, err)
	}

	return nil
}

// Exists reports whether the code is still redeemable.
func (db *DB) Exists(ctx context.Context, code string) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM verification_codes WHERE code = ? LIMIT 1`, code,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: checking verification code: %w", err)
	}
	return true, nil
}

// Consume deletes the code. The delete doubles as the once-only check: a
// second redemption finds zero rows and gets ErrNotFound.
func (db *DB) Consume(ctx context.Context, code string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE code = ?`, code,
	)
	if err != nil {
		return fmt.Errorf("sqlite: consuming verification code: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: consuming verification code: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("verification code", "given")
	}

	return nil
}

// Record upserts the user's last seen address.
func (db *DB) Record(ctx context.Context, username, ip string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO ip_logs (username, ip, seen_at) VALUES (?, ?, ?)
		 ON CONFLICT(username) DO UPDATE SET ip = excluded.ip, seen_at = excluded.seen_at`,
		username, ip, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording ip for %s: %w", username, err)
	}

	return nil
}
