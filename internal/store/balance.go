package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/shiftboard/internal/model"
)

type BalanceStore struct {
	db *sql.DB
}

func NewBalanceStore(db *sql.DB) *BalanceStore {
	return &BalanceStore{db: db}
}

// credit adds amount to a member's balance and records a ledger entry.
func credit(ctx context.Context, tx *sql.Tx, tenantID, userID int64, kind model.EntryKind, amount int, taskID *int64, now time.Time) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE members SET balance = balance + ? WHERE tenant_id = ? AND user_id = ?`,
		amount, tenantID, userID,
	)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		return fmt.Errorf("credit balance: member %d not in tenant %d", userID, tenantID)
	}

	var task sql.NullInt64
	if taskID != nil {
		task = sql.NullInt64{Int64: *taskID, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO balance_entries (tenant_id, user_id, kind, amount, task_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		tenantID, userID, kind, amount, task, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert balance entry: %w", err)
	}
	return nil
}

// Get returns a member's balance. found is false when the member does not exist.
func (s *BalanceStore) Get(ctx context.Context, tenantID, userID int64) (balance int, found bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT balance FROM members WHERE tenant_id = ? AND user_id = ?`,
		tenantID, userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get balance: %w", err)
	}
	return balance, true, nil
}

// Payout zeroes a member's balance and records the paid amount. Returns 0
// when the member is missing or the balance is not positive; nothing is
// written in that case.
func (s *BalanceStore) Payout(ctx context.Context, tenantID, userID int64, now time.Time) (paid int, found bool, err error) {
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		var balance int
		err := tx.QueryRowContext(ctx,
			`SELECT balance FROM members WHERE tenant_id = ? AND user_id = ?`,
			tenantID, userID,
		).Scan(&balance)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get balance: %w", err)
		}
		found = true
		if balance <= 0 {
			return nil
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE members SET balance = 0 WHERE tenant_id = ? AND user_id = ? AND balance = ?`,
			tenantID, userID, balance,
		)
		if err != nil {
			return fmt.Errorf("zero balance: %w", err)
		}
		if n, _ := result.RowsAffected(); n != 1 {
			return errStale
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO balance_entries (tenant_id, user_id, kind, amount, created_at) VALUES (?, ?, ?, ?, ?)`,
			tenantID, userID, model.EntryPayout, -balance, formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("insert payout entry: %w", err)
		}
		paid = balance
		return nil
	})
	if err == errStale {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	return paid, found, nil
}

// Adjust applies a manual correction to a member's balance.
func (s *BalanceStore) Adjust(ctx context.Context, tenantID, userID int64, amount int, now time.Time) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		return credit(ctx, tx, tenantID, userID, model.EntryAdjustment, amount, nil, now)
	})
}

// ListEntries returns a member's ledger, newest first.
func (s *BalanceStore) ListEntries(ctx context.Context, tenantID, userID int64, limit int) ([]model.BalanceEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, user_id, kind, amount, task_id, created_at FROM balance_entries
		 WHERE tenant_id = ? AND user_id = ? ORDER BY id DESC LIMIT ?`,
		tenantID, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list balance entries: %w", err)
	}
	defer rows.Close()

	var entries []model.BalanceEntry
	for rows.Next() {
		var e model.BalanceEntry
		var taskID sql.NullInt64
		var createdAt string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Kind, &e.Amount, &taskID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan balance entry: %w", err)
		}
		if taskID.Valid {
			id := taskID.Int64
			e.TaskID = &id
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse entry created_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
