package model

import "time"

// Segment is the portion of a workday a shift covers. Checklist items carry
// the narrower template segments (morning, common, evening).
type Segment string

const (
	SegmentMorning Segment = "morning"
	SegmentCommon  Segment = "common"
	SegmentEvening Segment = "evening"
	SegmentFull    Segment = "full"
)

type Shift struct {
	ID        int64      `json:"id"`
	TenantID  int64      `json:"tenant_id"`
	UserID    int64      `json:"user_id"`
	Role      string     `json:"role"`
	Segment   Segment    `json:"segment"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	Report    string     `json:"-"`
	Comment   string     `json:"comment"`
	Version   int64      `json:"version"`
}

func (s Shift) IsOpen() bool {
	return s.EndedAt == nil
}

// Duty is one entry of a shift's completion overlay.
type Duty struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}
