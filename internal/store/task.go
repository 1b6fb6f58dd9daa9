package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/shiftboard/internal/model"
)

// CompleteOutcome is the result of a completion attempt.
type CompleteOutcome int

const (
	CompleteNotFound CompleteOutcome = iota
	// CompleteDone: the task moved to completed and the reward was credited.
	CompleteDone
	// CompleteExpired: the deadline had passed, the task moved to expired.
	CompleteExpired
	// CompleteUnchanged: the task was already resolved, nothing was written.
	CompleteUnchanged
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.ExtraTask, error) {
	var t model.ExtraTask
	var deadline, ref, resolvedAt sql.NullString
	var createdAt string

	err := scanner.Scan(
		&t.ID, &t.TenantID, &t.Text, &t.Reward, &t.Status,
		&deadline, &t.AssignedTo, &ref, &createdAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	t.NotificationRef = ref.String
	if t.Deadline, err = scanNullTime(deadline); err != nil {
		return nil, fmt.Errorf("parse deadline: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse task created_at: %w", err)
	}
	if t.ResolvedAt, err = scanNullTime(resolvedAt); err != nil {
		return nil, fmt.Errorf("parse resolved_at: %w", err)
	}
	return &t, nil
}

const taskCols = `id, tenant_id, text, reward, status, deadline, assigned_to, notification_ref, created_at, resolved_at`

func (s *TaskStore) Create(ctx context.Context, tenantID int64, text string, reward int, deadline *time.Time, assignedTo int64, createdAt time.Time) (*model.ExtraTask, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO extra_tasks (tenant_id, text, reward, deadline, assigned_to, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tenantID, text, reward, nullTime(deadline), assignedTo, formatTime(createdAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, tenantID, id)
}

func (s *TaskStore) GetByID(ctx context.Context, tenantID, id int64) (*model.ExtraTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM extra_tasks WHERE id = ? AND tenant_id = ?`, id, tenantID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) SetNotificationRef(ctx context.Context, id int64, ref string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE extra_tasks SET notification_ref = ? WHERE id = ?`, nullString(ref), id)
	if err != nil {
		return fmt.Errorf("set notification ref: %w", err)
	}
	return nil
}

// Complete resolves a pending task for its assignee at now. Expiry is checked
// first: a task whose deadline is before now becomes expired instead. The
// status change, the balance credit and the ledger entry commit together, so
// a concurrent Expire or Complete can only ever see one of them win.
func (s *TaskStore) Complete(ctx context.Context, tenantID, id, userID int64, now time.Time) (*model.ExtraTask, CompleteOutcome, error) {
	var task *model.ExtraTask
	outcome := CompleteNotFound

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+taskCols+` FROM extra_tasks WHERE id = ? AND tenant_id = ? AND assigned_to = ?`,
			id, tenantID, userID,
		)
		t, err := scanTask(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}
		task = t
		if t.Status != model.TaskPending {
			outcome = CompleteUnchanged
			return nil
		}

		ts := formatTime(now)
		if t.Deadline != nil && now.After(*t.Deadline) {
			result, err := tx.ExecContext(ctx,
				`UPDATE extra_tasks SET status = 'expired', resolved_at = ? WHERE id = ? AND status = 'pending'`,
				ts, id,
			)
			if err != nil {
				return fmt.Errorf("expire task: %w", err)
			}
			if n, _ := result.RowsAffected(); n != 1 {
				outcome = CompleteUnchanged
				return nil
			}
			task.Status = model.TaskExpired
			task.ResolvedAt = &now
			outcome = CompleteExpired
			return nil
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE extra_tasks SET status = 'completed', resolved_at = ? WHERE id = ? AND status = 'pending'`,
			ts, id,
		)
		if err != nil {
			return fmt.Errorf("complete task: %w", err)
		}
		if n, _ := result.RowsAffected(); n != 1 {
			outcome = CompleteUnchanged
			return nil
		}

		if err := credit(ctx, tx, tenantID, userID, model.EntryTaskReward, t.Reward, &t.ID, now); err != nil {
			return err
		}
		task.Status = model.TaskCompleted
		task.ResolvedAt = &now
		outcome = CompleteDone
		return nil
	})
	if err != nil {
		return nil, CompleteNotFound, err
	}
	return task, outcome, nil
}

// Expire moves a pending task to expired. Returns false when it was already
// resolved by someone else.
func (s *TaskStore) Expire(ctx context.Context, id int64, now time.Time) (bool, error) {
	return s.transition(ctx, id, model.TaskExpired, now)
}

// Cancel moves a pending task to canceled. Returns false when it was already
// resolved.
func (s *TaskStore) Cancel(ctx context.Context, tenantID, id int64, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE extra_tasks SET status = 'canceled', resolved_at = ?
		 WHERE id = ? AND tenant_id = ? AND status = 'pending'`,
		formatTime(now), id, tenantID,
	)
	if err != nil {
		return false, fmt.Errorf("cancel task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *TaskStore) transition(ctx context.Context, id int64, to model.TaskStatus, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE extra_tasks SET status = ?, resolved_at = ? WHERE id = ? AND status = 'pending'`,
		to, formatTime(now), id,
	)
	if err != nil {
		return false, fmt.Errorf("transition task to %s: %w", to, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ListOverdue returns pending tasks across all tenants whose deadline is
// before now.
func (s *TaskStore) ListOverdue(ctx context.Context, now time.Time) ([]model.ExtraTask, error) {
	return s.list(ctx,
		`SELECT `+taskCols+` FROM extra_tasks
		 WHERE status = 'pending' AND deadline IS NOT NULL AND deadline < ?
		 ORDER BY deadline ASC, id ASC`,
		formatTime(now),
	)
}

// ListByTenant returns a tenant's tasks, newest first. A zero assignee lists
// every member's tasks; an empty status lists every status.
func (s *TaskStore) ListByTenant(ctx context.Context, tenantID, assignedTo int64, status model.TaskStatus) ([]model.ExtraTask, error) {
	query := `SELECT ` + taskCols + ` FROM extra_tasks WHERE tenant_id = ?`
	args := []any{tenantID}
	if assignedTo != 0 {
		query += ` AND assigned_to = ?`
		args = append(args, assignedTo)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`
	return s.list(ctx, query, args...)
}

func (s *TaskStore) list(ctx context.Context, query string, args ...any) ([]model.ExtraTask, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.ExtraTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
