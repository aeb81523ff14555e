package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dockhive/dockhive/internal/repository"
)

var _ repository.CreditRepository = (*DB)(nil)

// Balance returns the user's credit balance, creating a zero row on first
// query.
func (db *DB) Balance(ctx context.Context, username string) (int64, error) {
	var credits int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT credits FROM credits WHERE username = ?`, username,
	).Scan(&credits)
	if err == sql.ErrNoRows {
		if err := db.ensureCreditRow(ctx, username); err != nil {
			return 0, err
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: getting credits for %s: %w", username, err)
	}

	return credits, nil
}

// ReserveAndDebit atomically debits amount if the balance covers it.
//
// The check and the subtraction are a single conditional UPDATE, so two
// concurrent reservations against a balance that covers only one can never
// both succeed, and the balance can never go negative through this path.
// A balance exactly equal to amount succeeds.
func (db *DB) ReserveAndDebit(ctx context.Context, username string, amount int64) (bool, error) {
	if amount < 0 {
		return false, fmt.Errorf("sqlite: negative debit amount %d", amount)
	}

	if err := db.ensureCreditRow(ctx, username); err != nil {
		return false, err
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE credits SET credits = credits - ? WHERE username = ? AND credits >= ?`,
		amount, username, amount,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: debiting %d credits from %s: %w", amount, username, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: debiting credits from %s: %w", username, err)
	}

	return n > 0, nil
}

// Refund adds amount back to the user's balance.
func (db *DB) Refund(ctx context.Context, username string, amount int64) error {
	if err := db.ensureCreditRow(ctx, username); err != nil {
		return err
	}

	_, err := db.conn.ExecContext(ctx,
		`UPDATE credits SET credits = credits + ? WHERE username = ?`,
		amount, username,
	)
	if err != nil {
		return fmt.Errorf("sqlite: refunding %d credits to %s: %w", amount, username, err)
	}

	return nil
}

// SetBalance sets the balance to an absolute value, inserting the row if
// needed. Admin-only; this is the single path that may drive a balance
// negative on purpose.
func (db *DB) SetBalance(ctx context.Context, username string, credits int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO credits (username, credits) VALUES (?, ?)
		 ON CONFLICT(username) DO UPDATE SET credits = excluded.credits`,
		username, credits,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting credits for %s: %w", username, err)
	}

	return nil
}

func (db *DB) ensureCreditRow(ctx context.Context, username string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO credits (username, credits) VALUES (?, 0)`, username,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating credit row for %s: %w", username, err)
	}
	return nil
}
