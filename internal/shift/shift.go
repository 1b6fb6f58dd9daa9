// Package shift owns the shift lifecycle: start, duty toggles, interim
// reports and close.
package shift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/shiftboard/internal/checklist"
	"github.com/dukerupert/shiftboard/internal/clock"
	"github.com/dukerupert/shiftboard/internal/model"
	"github.com/dukerupert/shiftboard/internal/notify"
	"github.com/dukerupert/shiftboard/internal/store"
)

var (
	ErrAlreadyOpen     = errors.New("shift already open")
	ErrNoActiveShift   = errors.New("no active shift")
	ErrShiftClosed     = errors.New("shift is closed")
	ErrIndexOutOfRange = errors.New("duty index out of range")
	ErrContention      = errors.New("shift report changed too often, try again")
)

// maxWriteAttempts bounds the read-modify-write loop on the report overlay.
const maxWriteAttempts = 5

// Progress is a shift with its reconciled overlay.
type Progress struct {
	Shift   model.Shift  `json:"shift"`
	Name    string       `json:"name"`
	Duties  []model.Duty `json:"duties"`
	Done    int          `json:"done"`
	Total   int          `json:"total"`
	Percent int          `json:"percent"`
}

// Summary is returned when a shift closes.
type Summary struct {
	Shift         model.Shift     `json:"shift"`
	Duration      time.Duration   `json:"-"`
	Minutes       int             `json:"duration_minutes"`
	Done          int             `json:"done"`
	Total         int             `json:"total"`
	Percent       int             `json:"percent"`
	Grade         checklist.Grade `json:"grade"`
	Missed        []string        `json:"missed"`
	CanceledTasks []string        `json:"canceled_tasks"`
}

type Service struct {
	shifts     *store.ShiftStore
	checklists *store.ChecklistStore
	members    *store.MemberStore
	notifier   notify.Notifier
	clock      clock.Clock
	logger     *slog.Logger
}

func NewService(shifts *store.ShiftStore, checklists *store.ChecklistStore, members *store.MemberStore, notifier notify.Notifier, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		shifts:     shifts,
		checklists: checklists,
		members:    members,
		notifier:   notifier,
		clock:      clk,
		logger:     logger,
	}
}

// Start opens a shift for the user. Tenant admins are notified.
func (s *Service) Start(ctx context.Context, tenantID, userID int64, role string, segment model.Segment) (*model.Shift, error) {
	sh, created, err := s.shifts.StartIfNoneOpen(ctx, tenantID, userID, role, segment, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("start shift: %w", err)
	}
	if !created {
		return nil, ErrAlreadyOpen
	}

	s.logger.Info("shift started", "tenant_id", tenantID, "user_id", userID, "shift_id", sh.ID, "segment", segment)
	s.notifyAdmins(ctx, tenantID, startedText(s.name(ctx, tenantID, userID), sh, s.clock.Now().Location()))
	return sh, nil
}

// Checklist resolves the ordered duty list for a role and segment.
func (s *Service) Checklist(ctx context.Context, tenantID int64, role string, segment model.Segment) ([]model.ChecklistItem, error) {
	items, err := s.checklists.ListItems(ctx, tenantID, role)
	if err != nil {
		return nil, fmt.Errorf("load checklist: %w", err)
	}
	return checklist.Resolve(items, segment), nil
}

// Active returns the user's open shift.
func (s *Service) Active(ctx context.Context, tenantID, userID int64) (*model.Shift, error) {
	sh, err := s.shifts.GetOpen(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("get active shift: %w", err)
	}
	if sh == nil {
		return nil, ErrNoActiveShift
	}
	return sh, nil
}

// ToggleDuty sets the done flag of duty index on an open shift. The overlay
// is reconciled against the checklist as it is now, then written back only if
// no other writer changed it in between.
func (s *Service) ToggleDuty(ctx context.Context, tenantID, shiftID int64, index int, done bool) (*Progress, error) {
	for range maxWriteAttempts {
		sh, err := s.load(ctx, tenantID, shiftID)
		if err != nil {
			return nil, err
		}
		if !sh.IsOpen() {
			return nil, ErrShiftClosed
		}

		titles, err := s.titles(ctx, sh)
		if err != nil {
			return nil, err
		}
		report := checklist.ParseReport(sh.Report)
		duties, ok := checklist.Toggle(report.Duties, titles, index, done)
		if !ok {
			return nil, ErrIndexOutOfRange
		}
		report.Duties = duties
		blob, err := report.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}

		written, err := s.shifts.UpdateReport(ctx, tenantID, sh.ID, sh.Version, blob)
		if err != nil {
			return nil, fmt.Errorf("toggle duty: %w", err)
		}
		if written {
			sh.Report = blob
			sh.Version++
			return newProgress(*sh, duties), nil
		}
	}
	return nil, ErrContention
}

// SubmitInterimReport sends the current completion snapshot to tenant admins.
// Nothing is persisted.
func (s *Service) SubmitInterimReport(ctx context.Context, tenantID, shiftID int64, comment string) (*Progress, error) {
	sh, err := s.load(ctx, tenantID, shiftID)
	if err != nil {
		return nil, err
	}
	if !sh.IsOpen() {
		return nil, ErrShiftClosed
	}
	p, err := s.progress(ctx, *sh)
	if err != nil {
		return nil, err
	}

	s.notifyAdmins(ctx, tenantID, interimText(p, comment, s.clock.Now()))
	return p, nil
}

// Close cancels the user's pending tasks, freezes the reconciled report and
// ends the shift, all in one transaction. The user and tenant admins receive
// the summary and canceled task notifications are replaced afterwards.
func (s *Service) Close(ctx context.Context, tenantID, shiftID int64, comment string) (*Summary, error) {
	for range maxWriteAttempts {
		sh, err := s.load(ctx, tenantID, shiftID)
		if err != nil {
			return nil, err
		}
		if !sh.IsOpen() {
			return nil, ErrNoActiveShift
		}

		titles, err := s.titles(ctx, sh)
		if err != nil {
			return nil, err
		}
		report := checklist.ParseReport(sh.Report)
		report.Duties = checklist.Reconcile(report.Duties, titles)
		report.Comment = comment
		blob, err := report.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}

		now := s.clock.Now()
		canceled, ok, err := s.shifts.Close(ctx, sh, sh.Version, blob, comment, now)
		if err != nil {
			return nil, fmt.Errorf("close shift: %w", err)
		}
		if !ok {
			continue
		}

		ended := now
		sh.EndedAt = &ended
		sh.Report = blob
		sh.Comment = comment
		sh.Version++
		summary := newSummary(*sh, report.Duties, canceled, now)

		s.logger.Info("shift closed",
			"tenant_id", tenantID, "user_id", sh.UserID, "shift_id", sh.ID,
			"percent", summary.Percent, "canceled_tasks", len(canceled))
		s.afterClose(ctx, sh, summary, canceled)
		return summary, nil
	}
	return nil, ErrContention
}

func (s *Service) afterClose(ctx context.Context, sh *model.Shift, summary *Summary, canceled []model.ExtraTask) {
	name := s.name(ctx, sh.TenantID, sh.UserID)
	text := closedText(name, summary)
	s.send(ctx, notify.Message{TenantID: sh.TenantID, UserID: sh.UserID, Text: text})
	s.notifyAdmins(ctx, sh.TenantID, text)

	for _, t := range canceled {
		if t.NotificationRef == "" {
			continue
		}
		msg := notify.Message{TenantID: t.TenantID, UserID: t.AssignedTo, Ref: t.NotificationRef, Text: canceledTaskText(t)}
		if err := s.notifier.EditOrReplace(ctx, msg); err != nil {
			s.logger.Warn("replace task notification failed", "task_id", t.ID, "error", err)
		}
	}
}

// Progress returns the user's open shift with its reconciled overlay.
func (s *Service) Progress(ctx context.Context, tenantID, userID int64) (*Progress, error) {
	sh, err := s.Active(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	p, err := s.progress(ctx, *sh)
	if err != nil {
		return nil, err
	}
	p.Name = s.name(ctx, tenantID, userID)
	return p, nil
}

// Monitor returns the progress of every open shift in the tenant, oldest first.
func (s *Service) Monitor(ctx context.Context, tenantID int64) ([]Progress, error) {
	open, err := s.shifts.ListOpenByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list open shifts: %w", err)
	}

	board := make([]Progress, 0, len(open))
	for _, sh := range open {
		p, err := s.progress(ctx, sh)
		if err != nil {
			return nil, err
		}
		p.Name = s.name(ctx, tenantID, sh.UserID)
		board = append(board, *p)
	}
	return board, nil
}

// History returns the user's last closed shifts, newest first, scored from
// their frozen reports.
func (s *Service) History(ctx context.Context, tenantID, userID int64, limit int) ([]Progress, error) {
	if limit <= 0 {
		limit = 10
	}
	closed, err := s.shifts.ListRecentClosed(ctx, tenantID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list closed shifts: %w", err)
	}

	history := make([]Progress, 0, len(closed))
	for _, sh := range closed {
		history = append(history, *newProgress(sh, checklist.ParseReport(sh.Report).Duties))
	}
	return history, nil
}

func (s *Service) load(ctx context.Context, tenantID, shiftID int64) (*model.Shift, error) {
	sh, err := s.shifts.GetByID(ctx, tenantID, shiftID)
	if err != nil {
		return nil, fmt.Errorf("get shift: %w", err)
	}
	if sh == nil {
		return nil, ErrNoActiveShift
	}
	return sh, nil
}

func (s *Service) titles(ctx context.Context, sh *model.Shift) ([]string, error) {
	items, err := s.Checklist(ctx, sh.TenantID, sh.Role, sh.Segment)
	if err != nil {
		return nil, err
	}
	return checklist.Titles(items), nil
}

func (s *Service) progress(ctx context.Context, sh model.Shift) (*Progress, error) {
	titles, err := s.titles(ctx, &sh)
	if err != nil {
		return nil, err
	}
	duties := checklist.Reconcile(checklist.ParseReport(sh.Report).Duties, titles)
	return newProgress(sh, duties), nil
}

func newProgress(sh model.Shift, duties []model.Duty) *Progress {
	if duties == nil {
		duties = []model.Duty{}
	}
	done, total := checklist.Count(duties)
	return &Progress{
		Shift:   sh,
		Duties:  duties,
		Done:    done,
		Total:   total,
		Percent: checklist.Percent(done, total),
	}
}

func newSummary(sh model.Shift, duties []model.Duty, canceled []model.ExtraTask, now time.Time) *Summary {
	done, total := checklist.Count(duties)
	percent := checklist.Percent(done, total)
	d := now.Sub(sh.StartedAt)
	if d < 0 {
		d = 0
	}

	titles := make([]string, 0, len(canceled))
	for _, t := range canceled {
		titles = append(titles, t.Text)
	}
	return &Summary{
		Shift:         sh,
		Duration:      d,
		Minutes:       int(d / time.Minute),
		Done:          done,
		Total:         total,
		Percent:       percent,
		Grade:         checklist.GradeFor(percent),
		Missed:        checklist.Missed(duties),
		CanceledTasks: titles,
	}
}

// name returns the member's display name, falling back to the user id.
func (s *Service) name(ctx context.Context, tenantID, userID int64) string {
	m, err := s.members.Get(ctx, tenantID, userID)
	if err != nil {
		s.logger.Warn("get member failed", "tenant_id", tenantID, "user_id", userID, "error", err)
	}
	if m == nil || m.Name == "" {
		return fmt.Sprintf("user %d", userID)
	}
	return m.Name
}

func (s *Service) send(ctx context.Context, msg notify.Message) {
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notify failed", "tenant_id", msg.TenantID, "user_id", msg.UserID, "error", err)
	}
}

func (s *Service) notifyAdmins(ctx context.Context, tenantID int64, text string) {
	admins, err := s.members.ListAdmins(ctx, tenantID)
	if err != nil {
		s.logger.Warn("list admins failed", "tenant_id", tenantID, "error", err)
		return
	}
	for _, a := range admins {
		s.send(ctx, notify.Message{TenantID: tenantID, UserID: a.UserID, Text: text})
	}
}
