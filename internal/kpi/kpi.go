// Package kpi derives performance scores from closed shifts and pays out
// accumulated task rewards.
package kpi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dukerupert/shiftboard/internal/checklist"
	"github.com/dukerupert/shiftboard/internal/clock"
	"github.com/dukerupert/shiftboard/internal/model"
	"github.com/dukerupert/shiftboard/internal/notify"
	"github.com/dukerupert/shiftboard/internal/store"
)

var (
	ErrNothingToPay   = errors.New("nothing to pay")
	ErrMemberNotFound = errors.New("member not found")
)

// EligibleEfficiency is the efficiency percent at which a member qualifies.
const EligibleEfficiency = 90

const DefaultWindow = 30 * 24 * time.Hour

type Result struct {
	UserID            int64     `json:"user_id"`
	Name              string    `json:"name,omitempty"`
	WindowStart       time.Time `json:"window_start"`
	ShiftsX           int       `json:"shifts_x"`
	TasksYAvg         float64   `json:"tasks_y_avg"`
	ActivityScore     int       `json:"activity_score"`
	EfficiencyPercent int       `json:"efficiency_percent"`
	IsEligible        bool      `json:"is_eligible"`
}

// Aggregate scores a set of closed shifts. Every shift counts toward X;
// reports without parseable duties add nothing to done or possible.
func Aggregate(shifts []model.Shift) Result {
	var r Result
	var done, possible int
	for _, sh := range shifts {
		d, total := checklist.Count(checklist.ParseReport(sh.Report).Duties)
		done += d
		possible += total
	}

	r.ShiftsX = len(shifts)
	r.ActivityScore = done
	if r.ShiftsX > 0 {
		r.TasksYAvg = math.Round(float64(done)/float64(r.ShiftsX)*10) / 10
	}
	if possible > 0 {
		r.EfficiencyPercent = done * 100 / possible
	}
	r.IsEligible = r.EfficiencyPercent >= EligibleEfficiency
	return r
}

type Service struct {
	shifts   *store.ShiftStore
	members  *store.MemberStore
	balances *store.BalanceStore
	notifier notify.Notifier
	clock    clock.Clock
	window   time.Duration
	logger   *slog.Logger
}

// NewService creates a KPI service. window is the fallback period used for
// members who never had a reset; zero means DefaultWindow.
func NewService(shifts *store.ShiftStore, members *store.MemberStore, balances *store.BalanceStore, notifier notify.Notifier, clk clock.Clock, window time.Duration, logger *slog.Logger) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		shifts:   shifts,
		members:  members,
		balances: balances,
		notifier: notifier,
		clock:    clk,
		window:   window,
		logger:   logger,
	}
}

// Compute aggregates the member's closed shifts that started since the last
// KPI reset, or within the fallback window when there was none.
func (s *Service) Compute(ctx context.Context, tenantID, userID int64) (*Result, error) {
	m, err := s.members.Get(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	if m == nil {
		return nil, ErrMemberNotFound
	}
	return s.compute(ctx, m)
}

func (s *Service) compute(ctx context.Context, m *model.Member) (*Result, error) {
	since := s.clock.Now().Add(-s.window)
	if m.KPIResetAt != nil {
		since = *m.KPIResetAt
	}

	shifts, err := s.shifts.ListClosedSince(ctx, m.TenantID, m.UserID, since)
	if err != nil {
		return nil, fmt.Errorf("list closed shifts: %w", err)
	}
	r := Aggregate(shifts)
	r.UserID = m.UserID
	r.Name = m.Name
	r.WindowStart = since
	return &r, nil
}

// ResetPeriod starts a new KPI window at now. The balance is untouched.
func (s *Service) ResetPeriod(ctx context.Context, tenantID, userID int64) (time.Time, error) {
	now := s.clock.Now()
	ok, err := s.members.SetKPIResetAt(ctx, tenantID, userID, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("reset kpi period: %w", err)
	}
	if !ok {
		return time.Time{}, ErrMemberNotFound
	}
	s.logger.Info("kpi period reset", "tenant_id", tenantID, "user_id", userID)
	return now, nil
}

// Payout zeroes the member's balance and returns the amount paid. The read
// and the reset happen in one transaction, so a reward credited concurrently
// is either paid now or kept for the next payout.
func (s *Service) Payout(ctx context.Context, tenantID, userID int64) (int, error) {
	paid, found, err := s.balances.Payout(ctx, tenantID, userID, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("payout: %w", err)
	}
	if !found {
		return 0, ErrMemberNotFound
	}
	if paid <= 0 {
		return 0, ErrNothingToPay
	}

	s.logger.Info("balance paid out", "tenant_id", tenantID, "user_id", userID, "amount", paid)
	msg := notify.Message{TenantID: tenantID, UserID: userID, Text: fmt.Sprintf("Bonus paid out: %d points. Your balance is now 0.", paid)}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notify payout failed", "tenant_id", tenantID, "user_id", userID, "error", err)
	}
	return paid, nil
}

// Leaderboard computes KPI for every non-admin member of the tenant, in
// member name order.
func (s *Service) Leaderboard(ctx context.Context, tenantID int64) ([]Result, error) {
	members, err := s.members.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	board := make([]Result, 0, len(members))
	for i := range members {
		if members[i].IsAdmin() {
			continue
		}
		r, err := s.compute(ctx, &members[i])
		if err != nil {
			return nil, err
		}
		board = append(board, *r)
	}
	return board, nil
}
