package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/shiftboard/internal/model"
)

type TenantStore struct {
	db *sql.DB
}

func NewTenantStore(db *sql.DB) *TenantStore {
	return &TenantStore{db: db}
}

func (s *TenantStore) Create(ctx context.Context, name string) (*model.Tenant, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO tenants (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *TenantStore) GetByID(ctx context.Context, id int64) (*model.Tenant, error) {
	var t model.Tenant
	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM tenants WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse tenant created_at: %w", err)
	}
	return &t, nil
}

func (s *TenantStore) GetByName(ctx context.Context, name string) (*model.Tenant, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM tenants WHERE name = ? ORDER BY id LIMIT 1`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by name: %w", err)
	}
	return s.GetByID(ctx, id)
}

// --- Members ---

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	var resetAt sql.NullString
	var createdAt string

	err := scanner.Scan(&m.ID, &m.TenantID, &m.UserID, &m.Name, &m.Role, &m.Balance, &resetAt, &createdAt)
	if err != nil {
		return nil, err
	}
	if m.KPIResetAt, err = scanNullTime(resetAt); err != nil {
		return nil, fmt.Errorf("parse kpi_reset_at: %w", err)
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse member created_at: %w", err)
	}
	return &m, nil
}

const memberCols = `id, tenant_id, user_id, name, role, balance, kpi_reset_at, created_at`

// Upsert adds a member to a tenant or updates name and role of an existing one.
// Balance and KPI window are left alone on update.
func (s *MemberStore) Upsert(ctx context.Context, tenantID, userID int64, name, role string) (*model.Member, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (tenant_id, user_id, name, role) VALUES (?, ?, ?, ?)
		 ON CONFLICT(tenant_id, user_id) DO UPDATE SET name = excluded.name, role = excluded.role`,
		tenantID, userID, name, role,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert member: %w", err)
	}
	return s.Get(ctx, tenantID, userID)
}

func (s *MemberStore) Get(ctx context.Context, tenantID, userID int64) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberCols+` FROM members WHERE tenant_id = ? AND user_id = ?`,
		tenantID, userID,
	)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *MemberStore) ListByTenant(ctx context.Context, tenantID int64) ([]model.Member, error) {
	return s.list(ctx, `SELECT `+memberCols+` FROM members WHERE tenant_id = ? ORDER BY name ASC, user_id ASC`, tenantID)
}

// ListAdmins returns the members of a tenant with the admin role.
func (s *MemberStore) ListAdmins(ctx context.Context, tenantID int64) ([]model.Member, error) {
	return s.list(ctx,
		`SELECT `+memberCols+` FROM members WHERE tenant_id = ? AND role = ? ORDER BY user_id ASC`,
		tenantID, model.RoleAdmin,
	)
}

func (s *MemberStore) list(ctx context.Context, query string, args ...any) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// SetKPIResetAt starts a new KPI window. Returns false when the member does not exist.
func (s *MemberStore) SetKPIResetAt(ctx context.Context, tenantID, userID int64, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE members SET kpi_reset_at = ? WHERE tenant_id = ? AND user_id = ?`,
		formatTime(at), tenantID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("set kpi reset: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
