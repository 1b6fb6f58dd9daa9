package model

import "time"

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskExpired   TaskStatus = "expired"
	TaskCanceled  TaskStatus = "canceled"
)

type ExtraTask struct {
	ID              int64      `json:"id"`
	TenantID        int64      `json:"tenant_id"`
	Text            string     `json:"text"`
	Reward          int        `json:"reward"`
	Status          TaskStatus `json:"status"`
	Deadline        *time.Time `json:"deadline"`
	AssignedTo      int64      `json:"assigned_to"`
	NotificationRef string     `json:"notification_ref,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at"`
}

// Overdue reports whether the deadline has passed at now. A task without a
// deadline never expires.
func (t ExtraTask) Overdue(now time.Time) bool {
	return t.Deadline != nil && now.After(*t.Deadline)
}
