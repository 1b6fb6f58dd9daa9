package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/shiftboard/internal/model"
)

type ShiftStore struct {
	db *sql.DB
}

func NewShiftStore(db *sql.DB) *ShiftStore {
	return &ShiftStore{db: db}
}

func scanShift(scanner interface{ Scan(...any) error }) (*model.Shift, error) {
	var sh model.Shift
	var startedAt string
	var endedAt sql.NullString

	err := scanner.Scan(
		&sh.ID, &sh.TenantID, &sh.UserID, &sh.Role, &sh.Segment,
		&startedAt, &endedAt, &sh.Report, &sh.Comment, &sh.Version,
	)
	if err != nil {
		return nil, err
	}
	if sh.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if sh.EndedAt, err = scanNullTime(endedAt); err != nil {
		return nil, fmt.Errorf("parse ended_at: %w", err)
	}
	return &sh, nil
}

const shiftCols = `id, tenant_id, user_id, role, segment, started_at, ended_at, report, comment, version`

// StartIfNoneOpen inserts a new open shift unless the user already has one in
// the tenant. The check and the insert share one write transaction. When a
// shift is already open it is returned with created == false.
func (s *ShiftStore) StartIfNoneOpen(ctx context.Context, tenantID, userID int64, role string, segment model.Segment, startedAt time.Time) (sh *model.Shift, created bool, err error) {
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+shiftCols+` FROM shifts
			 WHERE tenant_id = ? AND user_id = ? AND ended_at IS NULL
			 ORDER BY id DESC LIMIT 1`,
			tenantID, userID,
		)
		existing, err := scanShift(row)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("get open shift: %w", err)
		}
		if existing != nil {
			sh = existing
			return nil
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO shifts (tenant_id, user_id, role, segment, started_at) VALUES (?, ?, ?, ?, ?)`,
			tenantID, userID, role, segment, formatTime(startedAt),
		)
		if err != nil {
			return fmt.Errorf("insert shift: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		row = tx.QueryRowContext(ctx, `SELECT `+shiftCols+` FROM shifts WHERE id = ?`, id)
		if sh, err = scanShift(row); err != nil {
			return fmt.Errorf("get new shift: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return sh, created, nil
}

func (s *ShiftStore) GetByID(ctx context.Context, tenantID, id int64) (*model.Shift, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shiftCols+` FROM shifts WHERE id = ? AND tenant_id = ?`, id, tenantID)
	sh, err := scanShift(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shift: %w", err)
	}
	return sh, nil
}

// GetOpen returns the user's open shift in the tenant, or nil.
func (s *ShiftStore) GetOpen(ctx context.Context, tenantID, userID int64) (*model.Shift, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+shiftCols+` FROM shifts
		 WHERE tenant_id = ? AND user_id = ? AND ended_at IS NULL
		 ORDER BY id DESC LIMIT 1`,
		tenantID, userID,
	)
	sh, err := scanShift(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open shift: %w", err)
	}
	return sh, nil
}

// ListOpen returns every open shift across all tenants.
func (s *ShiftStore) ListOpen(ctx context.Context) ([]model.Shift, error) {
	return s.list(ctx, `SELECT `+shiftCols+` FROM shifts WHERE ended_at IS NULL ORDER BY id ASC`)
}

func (s *ShiftStore) ListOpenByTenant(ctx context.Context, tenantID int64) ([]model.Shift, error) {
	return s.list(ctx,
		`SELECT `+shiftCols+` FROM shifts WHERE tenant_id = ? AND ended_at IS NULL ORDER BY started_at ASC, id ASC`,
		tenantID,
	)
}

// ListClosedSince returns a user's closed shifts that started at or after since.
func (s *ShiftStore) ListClosedSince(ctx context.Context, tenantID, userID int64, since time.Time) ([]model.Shift, error) {
	return s.list(ctx,
		`SELECT `+shiftCols+` FROM shifts
		 WHERE tenant_id = ? AND user_id = ? AND ended_at IS NOT NULL AND started_at >= ?
		 ORDER BY id ASC`,
		tenantID, userID, formatTime(since),
	)
}

// ListRecentClosed returns the user's last closed shifts, newest first.
func (s *ShiftStore) ListRecentClosed(ctx context.Context, tenantID, userID int64, limit int) ([]model.Shift, error) {
	return s.list(ctx,
		`SELECT `+shiftCols+` FROM shifts
		 WHERE tenant_id = ? AND user_id = ? AND ended_at IS NOT NULL
		 ORDER BY id DESC LIMIT ?`,
		tenantID, userID, limit,
	)
}

func (s *ShiftStore) list(ctx context.Context, query string, args ...any) ([]model.Shift, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	defer rows.Close()

	var shifts []model.Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		shifts = append(shifts, *sh)
	}
	return shifts, rows.Err()
}

// UpdateReport writes a new overlay if the shift is still open and still at
// the given version. Returns false when another writer got there first or the
// shift was closed.
func (s *ShiftStore) UpdateReport(ctx context.Context, tenantID, id, version int64, report string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE shifts SET report = ?, version = version + 1
		 WHERE id = ? AND tenant_id = ? AND version = ? AND ended_at IS NULL`,
		report, id, tenantID, version,
	)
	if err != nil {
		return false, fmt.Errorf("update shift report: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Close cancels the user's pending tasks in the tenant and freezes the shift
// in a single transaction. ok is false, with nothing written, when the shift
// was closed or its report changed since version was read.
func (s *ShiftStore) Close(ctx context.Context, sh *model.Shift, version int64, report, comment string, endedAt time.Time) (canceled []model.ExtraTask, ok bool, err error) {
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`UPDATE extra_tasks SET status = 'canceled', resolved_at = ?
			 WHERE tenant_id = ? AND assigned_to = ? AND status = 'pending'
			 RETURNING `+taskCols,
			formatTime(endedAt), sh.TenantID, sh.UserID,
		)
		if err != nil {
			return fmt.Errorf("cancel pending tasks: %w", err)
		}
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan canceled task: %w", err)
			}
			canceled = append(canceled, *t)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate canceled tasks: %w", err)
		}
		rows.Close()

		result, err := tx.ExecContext(ctx,
			`UPDATE shifts SET ended_at = ?, report = ?, comment = ?, version = version + 1
			 WHERE id = ? AND tenant_id = ? AND version = ? AND ended_at IS NULL`,
			formatTime(endedAt), report, comment, sh.ID, sh.TenantID, version,
		)
		if err != nil {
			return fmt.Errorf("close shift: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n != 1 {
			return errStale
		}
		ok = true
		return nil
	})
	if err == errStale {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	sortTasksByID(canceled)
	return canceled, true, nil
}
