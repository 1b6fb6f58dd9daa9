package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/shiftboard/internal/clock"
	"github.com/dukerupert/shiftboard/internal/database"
	"github.com/dukerupert/shiftboard/internal/kpi"
	"github.com/dukerupert/shiftboard/internal/logging"
	"github.com/dukerupert/shiftboard/internal/middleware"
	"github.com/dukerupert/shiftboard/internal/model"
	"github.com/dukerupert/shiftboard/internal/notify"
	"github.com/dukerupert/shiftboard/internal/shift"
	"github.com/dukerupert/shiftboard/internal/store"
	"github.com/dukerupert/shiftboard/internal/task"
	ws "github.com/dukerupert/shiftboard/internal/websocket"
)

const (
	waiter = int64(10)
	cook   = int64(11)
	boss   = int64(1)
)

type testServer struct {
	handler  http.Handler
	clock    *clock.Fake
	notes    *notify.Recorder
	tenantID int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
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
	members.Upsert(ctx, tenant.ID, boss, "Boss", model.RoleAdmin)

	checklists := store.NewChecklistStore(db)
	checklists.CreateItem(ctx, tenant.ID, "waiter", model.SegmentMorning, "Open shutters", model.KindSimple)
	checklists.CreateItem(ctx, tenant.ID, "waiter", model.SegmentCommon, "Wipe tables", model.KindSimple)

	ts := &testServer{
		clock:    clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
		notes:    &notify.Recorder{},
		tenantID: tenant.ID,
	}
	logger := logging.Discard()
	shifts := store.NewShiftStore(db)
	balances := store.NewBalanceStore(db)
	svc := Services{
		Shifts: shift.NewService(shifts, checklists, members, ts.notes, ts.clock, logger),
		Tasks:  task.NewService(store.NewTaskStore(db), members, balances, ts.notes, ts.clock, logger),
		KPI:    kpi.NewService(shifts, members, balances, ts.notes, ts.clock, 0, logger),
	}
	ts.handler = New(db, svc, ws.NewHub(logger), "", logger).Router()
	return ts
}

// do sends a request as the given member and decodes a JSON response into out.
func (ts *testServer) do(t *testing.T, userID int64, role, method, path, body string, out any) int {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if userID != 0 {
		req.Header.Set(middleware.HeaderTenantID, strconv.FormatInt(ts.tenantID, 10))
		req.Header.Set(middleware.HeaderUserID, strconv.FormatInt(userID, 10))
		req.Header.Set(middleware.HeaderRole, role)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestHealthNeedsNoIdentity(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]string
	if code := ts.do(t, 0, "", "GET", "/health", "", &body); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
	if code := ts.do(t, 0, "", "GET", "/api/shifts/active", "", nil); code != http.StatusUnauthorized {
		t.Errorf("status without identity = %d, want 401", code)
	}
}

func TestShiftLifecycle(t *testing.T) {
	ts := newTestServer(t)

	var sh model.Shift
	if code := ts.do(t, waiter, "waiter", "POST", "/api/shifts", `{"segment":"morning"}`, &sh); code != http.StatusCreated {
		t.Fatalf("start status = %d, want 201", code)
	}
	if code := ts.do(t, waiter, "waiter", "POST", "/api/shifts", `{"segment":"morning"}`, nil); code != http.StatusConflict {
		t.Errorf("second start = %d, want 409", code)
	}
	if code := ts.do(t, waiter, "waiter", "POST", "/api/shifts", `{"segment":"brunch"}`, nil); code != http.StatusBadRequest {
		t.Errorf("bad segment = %d, want 400", code)
	}

	var items []model.ChecklistItem
	ts.do(t, waiter, "waiter", "GET", "/api/shifts/active/checklist", "", &items)
	if len(items) != 2 || items[0].Text != "Open shutters" {
		t.Errorf("checklist = %+v", items)
	}

	var p shift.Progress
	if code := ts.do(t, waiter, "waiter", "PUT", "/api/shifts/active/duties/1", `{"done":true}`, &p); code != http.StatusOK {
		t.Fatalf("toggle status = %d", code)
	}
	if p.Done != 1 || p.Total != 2 || p.Percent != 50 {
		t.Errorf("progress = %+v, want 1/2 50%%", p)
	}
	if code := ts.do(t, waiter, "waiter", "PUT", "/api/shifts/active/duties/7", `{"done":true}`, nil); code != http.StatusBadRequest {
		t.Errorf("out of range toggle = %d, want 400", code)
	}

	if code := ts.do(t, waiter, "waiter", "POST", "/api/shifts/active/report", `{"comment":"busy"}`, nil); code != http.StatusOK {
		t.Errorf("interim report = %d, want 200", code)
	}

	ts.clock.Advance(2 * time.Hour)
	var summary shift.Summary
	if code := ts.do(t, waiter, "waiter", "POST", "/api/shifts/active/close", `{"comment":"done"}`, &summary); code != http.StatusOK {
		t.Fatalf("close status = %d", code)
	}
	if summary.Minutes != 120 || len(summary.Missed) != 1 || summary.Missed[0] != "Open shutters" {
		t.Errorf("summary = %+v", summary)
	}
	if code := ts.do(t, waiter, "waiter", "POST", "/api/shifts/active/close", "", nil); code != http.StatusNotFound {
		t.Errorf("close without shift = %d, want 404", code)
	}

	var history []shift.Progress
	ts.do(t, waiter, "waiter", "GET", "/api/shifts/history", "", &history)
	if len(history) != 1 {
		t.Errorf("history = %d shifts, want 1", len(history))
	}
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)

	if code := ts.do(t, waiter, "waiter", "GET", "/api/monitor", "", nil); code != http.StatusForbidden {
		t.Errorf("waiter monitor = %d, want 403", code)
	}
	var board []shift.Progress
	if code := ts.do(t, boss, model.RoleAdmin, "GET", "/api/monitor", "", &board); code != http.StatusOK {
		t.Errorf("admin monitor = %d, want 200", code)
	}
	if code := ts.do(t, waiter, "waiter", "GET", "/api/kpi?user_id=11", "", nil); code != http.StatusForbidden {
		t.Errorf("waiter kpi of other = %d, want 403", code)
	}
	var res kpi.Result
	if code := ts.do(t, boss, model.RoleAdmin, "GET", "/api/kpi?user_id=11", "", &res); code != http.StatusOK || res.UserID != cook {
		t.Errorf("admin kpi of cook = %d %+v", code, res)
	}
}

func TestTaskFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, waiter, "waiter", "POST", "/api/shifts", "", nil)

	if code := ts.do(t, boss, model.RoleAdmin, "POST", "/api/tasks", `{"text":"Fryer","reward":50,"assigned_to":11}`, nil); code != http.StatusConflict {
		t.Errorf("task for off-shift cook = %d, want 409", code)
	}

	var tk model.ExtraTask
	code := ts.do(t, boss, model.RoleAdmin, "POST", "/api/tasks", `{"text":"Restock napkins","reward":300,"deadline":"2026-03-02T10:00:00Z","assigned_to":10}`, &tk)
	if code != http.StatusCreated {
		t.Fatalf("create task = %d, want 201", code)
	}

	path := "/api/tasks/" + strconv.FormatInt(tk.ID, 10) + "/complete"
	if code := ts.do(t, cook, "cook", "POST", path, "", nil); code != http.StatusNotFound {
		t.Errorf("cook completing waiter task = %d, want 404", code)
	}
	if code := ts.do(t, waiter, "waiter", "POST", path, "", &tk); code != http.StatusOK || tk.Status != model.TaskCompleted {
		t.Fatalf("complete = %d %+v", code, tk)
	}
	var conflict struct {
		Error string          `json:"error"`
		Task  model.ExtraTask `json:"task"`
	}
	if code := ts.do(t, waiter, "waiter", "POST", path, "", &conflict); code != http.StatusConflict || conflict.Task.ID != tk.ID {
		t.Errorf("second complete = %d %+v", code, conflict)
	}

	var bal map[string]int
	ts.do(t, waiter, "waiter", "GET", "/api/balance", "", &bal)
	if bal["balance"] != 300 {
		t.Errorf("balance = %v, want 300", bal)
	}

	var paid map[string]int
	if code := ts.do(t, boss, model.RoleAdmin, "POST", "/api/kpi/10/payout", "", &paid); code != http.StatusOK || paid["paid"] != 300 {
		t.Errorf("payout = %d %v", code, paid)
	}
	if code := ts.do(t, boss, model.RoleAdmin, "POST", "/api/kpi/10/payout", "", nil); code != http.StatusConflict {
		t.Errorf("second payout = %d, want 409", code)
	}

	var tasks []model.ExtraTask
	ts.do(t, boss, model.RoleAdmin, "GET", "/api/tasks?user_id=10", "", &tasks)
	if len(tasks) != 1 {
		t.Errorf("tasks = %d, want 1", len(tasks))
	}
}

func TestCompleteExpiredTask(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, waiter, "waiter", "POST", "/api/shifts", "", nil)

	var tk model.ExtraTask
	ts.do(t, boss, model.RoleAdmin, "POST", "/api/tasks", `{"text":"Too late","reward":500,"deadline":"2026-03-02T09:30:00Z","assigned_to":10}`, &tk)
	ts.clock.Advance(time.Hour)

	var conflict struct {
		Error string          `json:"error"`
		Task  model.ExtraTask `json:"task"`
	}
	code := ts.do(t, waiter, "waiter", "POST", "/api/tasks/"+strconv.FormatInt(tk.ID, 10)+"/complete", "", &conflict)
	if code != http.StatusConflict || conflict.Task.Status != model.TaskExpired {
		t.Errorf("complete late = %d %+v, want 409 expired", code, conflict)
	}
}
