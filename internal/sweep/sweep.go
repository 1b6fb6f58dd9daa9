// Package sweep runs the periodic pass that expires overdue tasks and fires
// duty reminders for open shifts.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/shiftboard/internal/clock"
	"github.com/dukerupert/shiftboard/internal/model"
	"github.com/dukerupert/shiftboard/internal/notify"
	"github.com/dukerupert/shiftboard/internal/store"
	"github.com/dukerupert/shiftboard/internal/task"
)

const DefaultInterval = 60 * time.Second

// Result counts what one tick did.
type Result struct {
	Expired   int
	Reminders int
}

// Scheduler periodically sweeps all tenants.
type Scheduler struct {
	mu         sync.RWMutex
	tasks      *task.Service
	shifts     *store.ShiftStore
	checklists *store.ChecklistStore
	notifier   notify.Notifier
	clock      clock.Clock
	interval   time.Duration
	logger     *slog.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewScheduler creates a sweep scheduler. A non-positive interval means
// DefaultInterval.
func NewScheduler(tasks *task.Service, shifts *store.ShiftStore, checklists *store.ChecklistStore, notifier notify.Notifier, clk clock.Clock, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		tasks:      tasks,
		shifts:     shifts,
		checklists: checklists,
		notifier:   notifier,
		clock:      clk,
		interval:   interval,
		logger:     logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop stops the loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick runs one sweep. Task expiry and reminders are independent: a failure
// in one is logged and does not skip the other.
func (s *Scheduler) Tick(ctx context.Context) Result {
	now := s.clock.Now()
	var r Result

	expired, err := s.tasks.ExpireOverdue(ctx, now)
	if err != nil {
		s.logger.Error("expire overdue tasks", "error", err)
	}
	for _, t := range expired {
		s.logger.Info("task expired", "tenant_id", t.TenantID, "task_id", t.ID, "user_id", t.AssignedTo)
		s.tasks.NotifyExpired(ctx, t)
	}
	r.Expired = len(expired)

	sent, err := s.fireReminders(ctx, now)
	if err != nil {
		s.logger.Error("fire reminders", "error", err)
	}
	r.Reminders = sent

	if _, err := s.checklists.PruneSentReminders(ctx); err != nil {
		s.logger.Warn("prune sent reminders", "error", err)
	}
	return r
}

func (s *Scheduler) fireReminders(ctx context.Context, now time.Time) (int, error) {
	open, err := s.shifts.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open shifts: %w", err)
	}
	if len(open) == 0 {
		return 0, nil
	}
	reminders, err := s.checklists.ListReminders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list reminders: %w", err)
	}

	window := windowMinutes(s.interval)
	sent := 0
	for _, sh := range open {
		elapsed := int(now.Sub(sh.StartedAt) / time.Minute)
		for _, rem := range reminders {
			if rem.TenantID != sh.TenantID || rem.Role != sh.Role {
				continue
			}
			b := Boundary(elapsed, rem.IntervalMinutes, window)
			if b == 0 {
				continue
			}

			claimed, err := s.checklists.ClaimReminder(ctx, sh.ID, rem.ID, b)
			if err != nil {
				s.logger.Warn("claim reminder", "shift_id", sh.ID, "reminder_id", rem.ID, "error", err)
				continue
			}
			if !claimed {
				continue
			}
			s.remind(ctx, sh, rem)
			sent++
		}
	}
	return sent, nil
}

func (s *Scheduler) remind(ctx context.Context, sh model.Shift, rem model.Reminder) {
	msg := notify.Message{TenantID: sh.TenantID, UserID: sh.UserID, Text: "Reminder: " + rem.Text}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("send reminder", "shift_id", sh.ID, "reminder_id", rem.ID, "error", err)
	}
}

// Boundary returns which multiple of interval a reminder fires for at
// elapsed minutes into a shift, or 0 when none is due. A boundary is due
// from the minute it is reached until window minutes later, so a sweep
// running every window minutes sees each boundary at least once.
func Boundary(elapsed, interval, window int) int {
	if interval <= 0 || elapsed < interval {
		return 0
	}
	if window < 1 {
		window = 1
	}
	b := elapsed / interval
	if elapsed-b*interval >= window {
		return 0
	}
	return b
}

// windowMinutes is the sweep interval rounded up to whole minutes.
func windowMinutes(interval time.Duration) int {
	m := int((interval + time.Minute - 1) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}
