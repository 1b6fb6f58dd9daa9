package model

import "time"

type EntryKind string

const (
	EntryTaskReward EntryKind = "task_reward"
	EntryPayout     EntryKind = "payout"
	EntryAdjustment EntryKind = "adjustment"
)

type BalanceEntry struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	UserID    int64     `json:"user_id"`
	Kind      EntryKind `json:"kind"`
	Amount    int       `json:"amount"`
	TaskID    *int64    `json:"task_id"`
	CreatedAt time.Time `json:"created_at"`
}
