package model

type ItemKind string

const (
	KindSimple ItemKind = "simple"
	KindPhoto  ItemKind = "photo"
	KindVideo  ItemKind = "video"
)

type ChecklistItem struct {
	ID       int64    `json:"id"`
	TenantID int64    `json:"tenant_id"`
	Role     string   `json:"role"`
	Segment  Segment  `json:"segment"`
	Text     string   `json:"text"`
	Kind     ItemKind `json:"kind"`
}

type Reminder struct {
	ID              int64  `json:"id"`
	TenantID        int64  `json:"tenant_id"`
	Role            string `json:"role"`
	Text            string `json:"text"`
	IntervalMinutes int    `json:"interval_minutes"`
}
