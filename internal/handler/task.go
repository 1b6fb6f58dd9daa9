package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/shiftboard/internal/auth"
	"github.com/dukerupert/shiftboard/internal/model"
	"github.com/dukerupert/shiftboard/internal/shift"
	"github.com/dukerupert/shiftboard/internal/task"
)

type TaskHandler struct {
	tasks  *task.Service
	shifts *shift.Service
	logger *slog.Logger
}

func NewTaskHandler(tasks *task.Service, shifts *shift.Service, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, shifts: shifts, logger: logger}
}

type taskRequest struct {
	Text       string     `json:"text"`
	Reward     int        `json:"reward"`
	Deadline   *time.Time `json:"deadline"`
	AssignedTo int64      `json:"assigned_to"`
}

// Create handles POST /api/tasks. Tasks go only to members on shift.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantID(r.Context())

	var req taskRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.AssignedTo <= 0 {
		writeError(w, http.StatusBadRequest, "assigned_to is required")
		return
	}

	if _, err := h.shifts.Active(r.Context(), tenantID, req.AssignedTo); err != nil {
		if errors.Is(err, shift.ErrNoActiveShift) {
			writeError(w, http.StatusConflict, "assignee has no open shift")
			return
		}
		h.fail(w, "check assignee shift", err)
		return
	}

	t, err := h.tasks.Create(r.Context(), tenantID, req.Text, req.Reward, req.Deadline, req.AssignedTo)
	if err != nil {
		h.fail(w, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// List handles GET /api/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := queryInt(r, "user_id", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	status := model.TaskStatus(r.URL.Query().Get("status"))

	tasks, err := h.tasks.List(r.Context(), auth.TenantID(r.Context()), userID, status, int(limit))
	if err != nil {
		h.fail(w, "list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []model.ExtraTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Complete handles POST /api/tasks/{id}/complete
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	a, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	t, err := h.tasks.Complete(r.Context(), a.TenantID, id, a.UserID)
	if err != nil && t != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "task": t})
		return
	}
	if err != nil {
		h.fail(w, "complete task", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Cancel handles POST /api/tasks/{id}/cancel
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	t, err := h.tasks.Cancel(r.Context(), auth.TenantID(r.Context()), id)
	if err != nil {
		h.fail(w, "cancel task", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Balance handles GET /api/balance
func (h *TaskHandler) Balance(w http.ResponseWriter, r *http.Request) {
	a, _ := auth.FromContext(r.Context())

	b, err := h.tasks.Balance(r.Context(), a.TenantID, a.UserID)
	if errors.Is(err, task.ErrAssigneeNotFound) {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	if err != nil {
		h.fail(w, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"balance": b})
}

func (h *TaskHandler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, task.ErrAlreadyResolved), errors.Is(err, task.ErrExpired):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, task.ErrAssigneeNotFound), errors.Is(err, task.ErrInvalidReward):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
