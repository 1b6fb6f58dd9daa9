package task

import (
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/shiftboard/internal/clock"
	"github.com/dukerupert/shiftboard/internal/database"
	"github.com/dukerupert/shiftboard/internal/logging"
	"github.com/dukerupert/shiftboard/internal/model"
	"github.com/dukerupert/shiftboard/internal/notify"
	"github.com/dukerupert/shiftboard/internal/store"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const (
	waiter = int64(10)
	cook   = int64(11)
	admin  = int64(1)
)

type fixture struct {
	db       *sql.DB
	svc      *Service
	clock    *clock.Fake
	notes    *notify.Recorder
	tenantID int64
}

func newFixture(t *testing.T, dbPath string) *fixture {
	t.Helper()
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := t.Context()
	tenant, err := store.NewTenantStore(db).Create(ctx, "Cafe")
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	members := store.NewMemberStore(db)
	members.Upsert(ctx, tenant.ID, waiter, "Dana", "waiter")
	members.Upsert(ctx, tenant.ID, cook, "Timur", "cook")
	members.Upsert(ctx, tenant.ID, admin, "Boss", model.RoleAdmin)

	f := &fixture{db: db, clock: clock.NewFake(t0), notes: &notify.Recorder{}, tenantID: tenant.ID}
	f.svc = f.service(f.clock)
	return f
}

// service builds another Service on the same database with its own clock.
func (f *fixture) service(c clock.Clock) *Service {
	return NewService(store.NewTaskStore(f.db), store.NewMemberStore(f.db), store.NewBalanceStore(f.db), f.notes, c, logging.Discard())
}

func (f *fixture) balance(t *testing.T, userID int64) int {
	t.Helper()
	b, err := f.svc.Balance(t.Context(), f.tenantID, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func TestCreateSendsNotificationWithRef(t *testing.T) {
	f := newFixture(t, ":memory:")
	deadline := t0.Add(30 * time.Minute)

	task, err := f.svc.Create(t.Context(), f.tenantID, "Restock napkins", 300, &deadline, waiter)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := uuid.Parse(task.NotificationRef); err != nil {
		t.Errorf("notification_ref = %q, want a uuid", task.NotificationRef)
	}

	msgs := f.notes.To(f.tenantID, waiter)
	if len(msgs) != 1 || msgs[0].Ref != task.NotificationRef || msgs[0].Edit {
		t.Errorf("messages = %+v, want one send with the task ref", msgs)
	}
}

func TestCreateUnknownAssignee(t *testing.T) {
	f := newFixture(t, ":memory:")

	if _, err := f.svc.Create(t.Context(), f.tenantID, "Ghost", 100, nil, 999); !errors.Is(err, ErrAssigneeNotFound) {
		t.Errorf("err = %v, want ErrAssigneeNotFound", err)
	}
	if _, err := f.svc.Create(t.Context(), f.tenantID, "Debt", -1, nil, waiter); !errors.Is(err, ErrInvalidReward) {
		t.Errorf("err = %v, want ErrInvalidReward", err)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	f := newFixture(t, ":memory:")
	task, _ := f.svc.Create(t.Context(), f.tenantID, "Restock napkins", 300, nil, waiter)

	got, err := f.svc.Complete(t.Context(), f.tenantID, task.ID, waiter)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != model.TaskCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}

	_, err = f.svc.Complete(t.Context(), f.tenantID, task.ID, waiter)
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("second complete err = %v, want ErrAlreadyResolved", err)
	}
	if b := f.balance(t, waiter); b != 300 {
		t.Errorf("balance = %d, want 300", b)
	}
}

func TestCompletePastDeadline(t *testing.T) {
	f := newFixture(t, ":memory:")
	deadline := t0.Add(-time.Second)
	task, _ := f.svc.Create(t.Context(), f.tenantID, "Too late", 500, &deadline, waiter)
	f.notes.Reset()

	got, err := f.svc.Complete(t.Context(), f.tenantID, task.ID, waiter)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
	if got.Status != model.TaskExpired {
		t.Errorf("status = %q, want expired", got.Status)
	}
	if b := f.balance(t, waiter); b != 0 {
		t.Errorf("balance = %d, want 0", b)
	}

	stored, _ := store.NewTaskStore(f.db).GetByID(t.Context(), f.tenantID, task.ID)
	if stored.Status != model.TaskExpired {
		t.Errorf("stored status = %q, want expired", stored.Status)
	}
	if len(f.notes.To(f.tenantID, admin)) != 1 {
		t.Errorf("admin messages = %d, want 1", len(f.notes.To(f.tenantID, admin)))
	}
}

func TestCompleteJustAfterDeadline(t *testing.T) {
	f := newFixture(t, ":memory:")
	deadline := t0.Add(200 * time.Millisecond)
	task, _ := f.svc.Create(t.Context(), f.tenantID, "Just missed", 500, &deadline, waiter)

	f.clock.Set(t0.Add(800 * time.Millisecond))
	if _, err := f.svc.Complete(t.Context(), f.tenantID, task.ID, waiter); !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
	if b := f.balance(t, waiter); b != 0 {
		t.Errorf("balance = %d, want 0", b)
	}
}

// The sweep expiring a task and the assignee completing it, forced into
// each order on a task whose deadline has passed.
func TestSweepAndCompleteInOrder(t *testing.T) {
	t.Run("sweep first", func(t *testing.T) {
		f := newFixture(t, ":memory:")
		deadline := t0.Add(time.Minute)
		task, _ := f.svc.Create(t.Context(), f.tenantID, "Napkins", 300, &deadline, waiter)
		f.clock.Set(t0.Add(2 * time.Minute))

		expired, err := f.svc.ExpireOverdue(t.Context(), f.clock.Now())
		if err != nil || len(expired) != 1 {
			t.Fatalf("expire: %d tasks, err=%v", len(expired), err)
		}
		if _, err := f.svc.Complete(t.Context(), f.tenantID, task.ID, waiter); !errors.Is(err, ErrAlreadyResolved) {
			t.Errorf("complete err = %v, want ErrAlreadyResolved", err)
		}
		if b := f.balance(t, waiter); b != 0 {
			t.Errorf("balance = %d, want 0", b)
		}
	})

	t.Run("complete first", func(t *testing.T) {
		f := newFixture(t, ":memory:")
		deadline := t0.Add(time.Minute)
		task, _ := f.svc.Create(t.Context(), f.tenantID, "Napkins", 300, &deadline, waiter)
		f.clock.Set(t0.Add(2 * time.Minute))

		got, err := f.svc.Complete(t.Context(), f.tenantID, task.ID, waiter)
		if !errors.Is(err, ErrExpired) || got.Status != model.TaskExpired {
			t.Fatalf("complete err = %v, want ErrExpired", err)
		}
		expired, err := f.svc.ExpireOverdue(t.Context(), f.clock.Now())
		if err != nil {
			t.Fatalf("expire: %v", err)
		}
		if len(expired) != 0 {
			t.Errorf("sweep expired %d tasks, want 0", len(expired))
		}
		if b := f.balance(t, waiter); b != 0 {
			t.Errorf("balance = %d, want 0", b)
		}
	})
}

func TestCompleteOtherUsersTask(t *testing.T) {
	f := newFixture(t, ":memory:")
	task, _ := f.svc.Create(t.Context(), f.tenantID, "Mine", 100, nil, waiter)

	if _, err := f.svc.Complete(t.Context(), f.tenantID, task.ID, cook); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if b := f.balance(t, cook); b != 0 {
		t.Errorf("cook balance = %d, want 0", b)
	}
}

func TestCompleteSurvivesNotifierFailure(t *testing.T) {
	f := newFixture(t, ":memory:")
	task, _ := f.svc.Create(t.Context(), f.tenantID, "Napkins", 100, nil, waiter)
	f.notes.Err = errors.New("sink down")

	if _, err := f.svc.Complete(t.Context(), f.tenantID, task.ID, waiter); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if b := f.balance(t, waiter); b != 100 {
		t.Errorf("balance = %d, want 100", b)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t, ":memory:")
	task, _ := f.svc.Create(t.Context(), f.tenantID, "Napkins", 100, nil, waiter)

	got, err := f.svc.Cancel(t.Context(), f.tenantID, task.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != model.TaskCanceled {
		t.Errorf("status = %q, want canceled", got.Status)
	}
	if _, err := f.svc.Cancel(t.Context(), f.tenantID, task.ID); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("second cancel err = %v, want ErrAlreadyResolved", err)
	}
	if _, err := f.svc.Complete(t.Context(), f.tenantID, task.ID, waiter); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("complete canceled err = %v, want ErrAlreadyResolved", err)
	}
	if _, err := f.svc.Cancel(t.Context(), f.tenantID, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing cancel err = %v, want ErrNotFound", err)
	}
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t, ":memory:")
	soon := t0.Add(10 * time.Minute)
	later := t0.Add(2 * time.Hour)
	late, _ := f.svc.Create(t.Context(), f.tenantID, "Soon", 100, &soon, waiter)
	f.svc.Create(t.Context(), f.tenantID, "Later", 100, &later, waiter)
	f.svc.Create(t.Context(), f.tenantID, "Whenever", 100, nil, waiter)

	expired, err := f.svc.ExpireOverdue(t.Context(), t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != late.ID || expired[0].Status != model.TaskExpired {
		t.Errorf("expired = %+v, want task %d", expired, late.ID)
	}

	again, _ := f.svc.ExpireOverdue(t.Context(), t0.Add(time.Hour))
	if len(again) != 0 {
		t.Errorf("second pass expired %d tasks, want 0", len(again))
	}
}

func TestListFilters(t *testing.T) {
	f := newFixture(t, ":memory:")
	ctx := t.Context()
	f.svc.Create(ctx, f.tenantID, "one", 1, nil, waiter)
	f.svc.Create(ctx, f.tenantID, "two", 1, nil, cook)
	three, _ := f.svc.Create(ctx, f.tenantID, "three", 1, nil, waiter)
	f.svc.Complete(ctx, f.tenantID, three.ID, waiter)

	all, _ := f.svc.List(ctx, f.tenantID, 0, "", 2)
	if len(all) != 2 || all[0].Text != "three" {
		t.Errorf("limited list = %+v, want [three two]", all)
	}
	pending, _ := f.svc.List(ctx, f.tenantID, waiter, model.TaskPending, 0)
	if len(pending) != 1 || pending[0].Text != "one" {
		t.Errorf("pending for waiter = %+v, want [one]", pending)
	}
}

// A user clicks done one second before the deadline while the sweep, whose
// clock already reads past it, expires overdue tasks. Each task must end
// exactly once and the balance must match the completed rewards.
func TestCompleteRacesSweep(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "test.db"))
	ctx := t.Context()

	deadline := t0
	f.clock.Set(t0.Add(-time.Hour))
	const n = 16
	tasks := make([]*model.ExtraTask, n)
	for i := range tasks {
		task, err := f.svc.Create(ctx, f.tenantID, "race", 10*(i+1), &deadline, waiter)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		tasks[i] = task
	}

	user := f.service(clock.NewFake(t0.Add(-time.Second)))
	sweep := f.service(clock.NewFake(t0.Add(time.Second)))

	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := map[int64]bool{}
	expired := map[int64]bool{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		got, err := sweep.ExpireOverdue(ctx, t0.Add(time.Second))
		if err != nil {
			t.Errorf("sweep: %v", err)
		}
		mu.Lock()
		for _, task := range got {
			expired[task.ID] = true
		}
		mu.Unlock()
	}()
	for _, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := user.Complete(ctx, f.tenantID, task.ID, waiter)
			switch {
			case err == nil:
				mu.Lock()
				completed[task.ID] = true
				mu.Unlock()
			case errors.Is(err, ErrAlreadyResolved):
			default:
				t.Errorf("complete %d: %v", task.ID, err)
			}
		}()
	}
	wg.Wait()

	want := 0
	for _, task := range tasks {
		if completed[task.ID] == expired[task.ID] {
			t.Errorf("task %d: completed=%v expired=%v, want exactly one", task.ID, completed[task.ID], expired[task.ID])
		}
		if completed[task.ID] {
			want += task.Reward
		}
	}
	if b := f.balance(t, waiter); b != want {
		t.Errorf("balance = %d, want %d", b, want)
	}
}
