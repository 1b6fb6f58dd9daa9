package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/shiftboard/internal/model"
)

type ChecklistStore struct {
	db *sql.DB
}

func NewChecklistStore(db *sql.DB) *ChecklistStore {
	return &ChecklistStore{db: db}
}

// --- Template items ---

func scanChecklistItem(scanner interface{ Scan(...any) error }) (*model.ChecklistItem, error) {
	var it model.ChecklistItem
	err := scanner.Scan(&it.ID, &it.TenantID, &it.Role, &it.Segment, &it.Text, &it.Kind)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

const checklistCols = `id, tenant_id, role, segment, text, kind`

func (s *ChecklistStore) CreateItem(ctx context.Context, tenantID int64, role string, segment model.Segment, text string, kind model.ItemKind) (*model.ChecklistItem, error) {
	if kind == "" {
		kind = model.KindSimple
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO checklist_items (tenant_id, role, segment, text, kind) VALUES (?, ?, ?, ?, ?)`,
		tenantID, role, segment, text, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("insert checklist item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+checklistCols+` FROM checklist_items WHERE id = ?`, id)
	return scanChecklistItem(row)
}

// ListItems returns a role's template items ordered by segment priority
// (morning, common, evening), then insertion id.
func (s *ChecklistStore) ListItems(ctx context.Context, tenantID int64, role string) ([]model.ChecklistItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+checklistCols+` FROM checklist_items
		 WHERE tenant_id = ? AND role = ?
		 ORDER BY CASE segment WHEN 'morning' THEN 0 WHEN 'common' THEN 1 ELSE 2 END, id ASC`,
		tenantID, role,
	)
	if err != nil {
		return nil, fmt.Errorf("list checklist items: %w", err)
	}
	defer rows.Close()

	var items []model.ChecklistItem
	for rows.Next() {
		it, err := scanChecklistItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (s *ChecklistStore) UpdateItemText(ctx context.Context, tenantID, id int64, text string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE checklist_items SET text = ? WHERE id = ? AND tenant_id = ?`,
		text, id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("update checklist item: %w", err)
	}
	return nil
}

func (s *ChecklistStore) DeleteItem(ctx context.Context, tenantID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checklist_items WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete checklist item: %w", err)
	}
	return nil
}

// --- Reminders ---

func scanReminder(scanner interface{ Scan(...any) error }) (*model.Reminder, error) {
	var r model.Reminder
	err := scanner.Scan(&r.ID, &r.TenantID, &r.Role, &r.Text, &r.IntervalMinutes)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const reminderCols = `id, tenant_id, role, text, interval_minutes`

func (s *ChecklistStore) CreateReminder(ctx context.Context, tenantID int64, role, text string, intervalMinutes int) (*model.Reminder, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (tenant_id, role, text, interval_minutes) VALUES (?, ?, ?, ?)`,
		tenantID, role, text, intervalMinutes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reminder: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	return scanReminder(row)
}

// ListReminders returns every reminder across tenants.
func (s *ChecklistStore) ListReminders(ctx context.Context) ([]model.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reminderCols+` FROM reminders ORDER BY tenant_id ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}

func (s *ChecklistStore) DeleteReminder(ctx context.Context, tenantID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return nil
}

// ClaimReminder records that a reminder boundary fired for a shift. Only the
// first caller for a (shift, reminder, boundary) triple gets true.
func (s *ChecklistStore) ClaimReminder(ctx context.Context, shiftID, reminderID int64, boundary int) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sent_reminders (shift_id, reminder_id, boundary) VALUES (?, ?, ?)`,
		shiftID, reminderID, boundary,
	)
	if err != nil {
		return false, fmt.Errorf("claim reminder: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// PruneSentReminders drops claim records of closed shifts.
func (s *ChecklistStore) PruneSentReminders(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sent_reminders WHERE shift_id IN (SELECT id FROM shifts WHERE ended_at IS NOT NULL)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prune sent reminders: %w", err)
	}
	return result.RowsAffected()
}
