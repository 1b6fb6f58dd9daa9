// Package task runs the bonus task lifecycle. A pending task ends exactly once
// as completed, expired or canceled; only completion credits the reward.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/shiftboard/internal/clock"
	"github.com/dukerupert/shiftboard/internal/model"
	"github.com/dukerupert/shiftboard/internal/notify"
	"github.com/dukerupert/shiftboard/internal/store"
)

var (
	ErrAlreadyResolved  = errors.New("task already resolved")
	ErrExpired          = errors.New("task deadline passed")
	ErrNotFound         = errors.New("task not found")
	ErrAssigneeNotFound = errors.New("assignee is not a member of this tenant")
	ErrInvalidReward    = errors.New("reward must not be negative")
)

type Service struct {
	tasks    *store.TaskStore
	members  *store.MemberStore
	balances *store.BalanceStore
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
}

func NewService(tasks *store.TaskStore, members *store.MemberStore, balances *store.BalanceStore, notifier notify.Notifier, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		tasks:    tasks,
		members:  members,
		balances: balances,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
	}
}

// Create issues a task to a member. Whether the assignee must be on shift is
// the caller's decision; this only requires the member to exist. deadline is
// absolute; nil means the task never expires.
func (s *Service) Create(ctx context.Context, tenantID int64, text string, reward int, deadline *time.Time, assignee int64) (*model.ExtraTask, error) {
	if reward < 0 {
		return nil, ErrInvalidReward
	}
	m, err := s.members.Get(ctx, tenantID, assignee)
	if err != nil {
		return nil, fmt.Errorf("get assignee: %w", err)
	}
	if m == nil {
		return nil, ErrAssigneeNotFound
	}

	t, err := s.tasks.Create(ctx, tenantID, text, reward, deadline, assignee, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	ref := uuid.NewString()
	if err := s.tasks.SetNotificationRef(ctx, t.ID, ref); err != nil {
		// The task stands; only later edits of its notification are lost.
		s.logger.Warn("store notification ref failed", "task_id", t.ID, "error", err)
	} else {
		t.NotificationRef = ref
	}

	s.logger.Info("task created", "tenant_id", tenantID, "task_id", t.ID, "user_id", assignee, "reward", reward)
	s.send(ctx, notify.Message{
		TenantID: tenantID,
		UserID:   assignee,
		Ref:      t.NotificationRef,
		Text:     issuedText(t, s.clock.Now().Location()),
	})
	return t, nil
}

// Complete is the user's attempt to finish a task. A task already resolved
// returns ErrAlreadyResolved; one past its deadline becomes expired and
// returns ErrExpired without credit. Otherwise the reward is credited once.
func (s *Service) Complete(ctx context.Context, tenantID, taskID, userID int64) (*model.ExtraTask, error) {
	t, outcome, err := s.tasks.Complete(ctx, tenantID, taskID, userID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("complete task: %w", err)
	}

	switch outcome {
	case store.CompleteNotFound:
		return nil, ErrNotFound
	case store.CompleteUnchanged:
		return t, ErrAlreadyResolved
	case store.CompleteExpired:
		s.logger.Info("task expired on completion", "tenant_id", tenantID, "task_id", t.ID)
		s.replace(ctx, t, expiredText(t))
		s.notifyAdmins(ctx, tenantID, s.expiredAdminText(ctx, t))
		return t, ErrExpired
	}

	s.logger.Info("task completed", "tenant_id", tenantID, "task_id", t.ID, "user_id", userID, "reward", t.Reward)
	s.replace(ctx, t, completedText(t))
	s.notifyAdmins(ctx, tenantID, fmt.Sprintf("Task done by %s: %s (+%d)", s.name(ctx, tenantID, userID), t.Text, t.Reward))
	return t, nil
}

// Cancel withdraws a pending task.
func (s *Service) Cancel(ctx context.Context, tenantID, taskID int64) (*model.ExtraTask, error) {
	ok, err := s.tasks.Cancel(ctx, tenantID, taskID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("cancel task: %w", err)
	}
	t, err := s.tasks.GetByID(ctx, tenantID, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if t == nil {
		return nil, ErrNotFound
	}
	if !ok {
		return t, ErrAlreadyResolved
	}

	s.logger.Info("task canceled", "tenant_id", tenantID, "task_id", t.ID)
	s.replace(ctx, t, canceledText(t))
	return t, nil
}

// ExpireOverdue expires every pending task past its deadline at now, across
// tenants. It returns only the tasks this call moved to expired; a task that
// was completed or expired concurrently is skipped. Notifications are the
// caller's concern.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) ([]model.ExtraTask, error) {
	overdue, err := s.tasks.ListOverdue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list overdue tasks: %w", err)
	}

	var expired []model.ExtraTask
	for _, t := range overdue {
		ok, err := s.tasks.Expire(ctx, t.ID, now)
		if err != nil {
			return expired, fmt.Errorf("expire task %d: %w", t.ID, err)
		}
		if !ok {
			continue
		}
		t.Status = model.TaskExpired
		resolved := now
		t.ResolvedAt = &resolved
		expired = append(expired, t)
	}
	return expired, nil
}

// NotifyExpired tells the assignee and every tenant admin that a task expired.
func (s *Service) NotifyExpired(ctx context.Context, t model.ExtraTask) {
	s.replace(ctx, &t, expiredText(&t))
	s.notifyAdmins(ctx, t.TenantID, s.expiredAdminText(ctx, &t))
}

// List returns the tenant's tasks, newest first, optionally narrowed to one
// assignee or one status.
func (s *Service) List(ctx context.Context, tenantID, assignee int64, status model.TaskStatus, limit int) ([]model.ExtraTask, error) {
	tasks, err := s.tasks.ListByTenant(ctx, tenantID, assignee, status)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// Balance returns the member's current balance.
func (s *Service) Balance(ctx context.Context, tenantID, userID int64) (int, error) {
	balance, found, err := s.balances.Get(ctx, tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	if !found {
		return 0, ErrAssigneeNotFound
	}
	return balance, nil
}

func (s *Service) expiredAdminText(ctx context.Context, t *model.ExtraTask) string {
	return fmt.Sprintf("Task expired\nWho: %s\nTask: %s\nLost: %d points", s.name(ctx, t.TenantID, t.AssignedTo), t.Text, t.Reward)
}

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

// replace edits the assignee's task notification, or sends a new message
// when the task never got a ref.
func (s *Service) replace(ctx context.Context, t *model.ExtraTask, text string) {
	msg := notify.Message{TenantID: t.TenantID, UserID: t.AssignedTo, Ref: t.NotificationRef, Text: text}
	if msg.Ref == "" {
		s.send(ctx, msg)
		return
	}
	if err := s.notifier.EditOrReplace(ctx, msg); err != nil {
		s.logger.Warn("replace task notification failed", "task_id", t.ID, "error", err)
	}
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

func issuedText(t *model.ExtraTask, loc *time.Location) string {
	text := fmt.Sprintf("New task: %s\nReward: %d", t.Text, t.Reward)
	if t.Deadline != nil {
		text += "\nDeadline: " + t.Deadline.In(loc).Format("15:04")
	}
	return text
}

func completedText(t *model.ExtraTask) string {
	return fmt.Sprintf("Task done: %s\n+%d points", t.Text, t.Reward)
}

func expiredText(t *model.ExtraTask) string {
	return fmt.Sprintf("Time is up: %s\nTask failed.", t.Text)
}

func canceledText(t *model.ExtraTask) string {
	return fmt.Sprintf("Task canceled: %s", t.Text)
}
