package model

import "time"

// RoleAdmin marks members who receive tenant-wide notifications and may
// issue tasks, pay out balances and reset KPI periods.
const RoleAdmin = "admin"

type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	ID         int64      `json:"id"`
	TenantID   int64      `json:"tenant_id"`
	UserID     int64      `json:"user_id"`
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	Balance    int        `json:"balance"`
	KPIResetAt *time.Time `json:"kpi_reset_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (m Member) IsAdmin() bool {
	return m.Role == RoleAdmin
}
