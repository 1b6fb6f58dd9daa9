package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/shiftboard/internal/auth"
	"github.com/dukerupert/shiftboard/internal/model"
	"github.com/dukerupert/shiftboard/internal/shift"
)

type ShiftHandler struct {
	shifts *shift.Service
	logger *slog.Logger
}

func NewShiftHandler(shifts *shift.Service, logger *slog.Logger) *ShiftHandler {
	return &ShiftHandler{shifts: shifts, logger: logger}
}

type startRequest struct {
	Segment model.Segment `json:"segment"`
}

type commentRequest struct {
	Comment string `json:"comment"`
}

type toggleRequest struct {
	Done bool `json:"done"`
}

// Start handles POST /api/shifts
func (h *ShiftHandler) Start(w http.ResponseWriter, r *http.Request) {
	a, _ := auth.FromContext(r.Context())

	var req startRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch req.Segment {
	case "":
		req.Segment = model.SegmentFull
	case model.SegmentMorning, model.SegmentEvening, model.SegmentFull:
	default:
		writeError(w, http.StatusBadRequest, "segment must be morning, evening or full")
		return
	}
	if a.Role == "" {
		writeError(w, http.StatusBadRequest, "role is required")
		return
	}

	sh, err := h.shifts.Start(r.Context(), a.TenantID, a.UserID, a.Role, req.Segment)
	if err != nil {
		h.fail(w, "start shift", err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

// Active handles GET /api/shifts/active
func (h *ShiftHandler) Active(w http.ResponseWriter, r *http.Request) {
	a, _ := auth.FromContext(r.Context())

	p, err := h.shifts.Progress(r.Context(), a.TenantID, a.UserID)
	if err != nil {
		h.fail(w, "get active shift", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Checklist handles GET /api/shifts/active/checklist. The segment comes from
// the open shift, or from the segment query parameter when none is open.
func (h *ShiftHandler) Checklist(w http.ResponseWriter, r *http.Request) {
	a, _ := auth.FromContext(r.Context())

	role, segment := a.Role, model.Segment(r.URL.Query().Get("segment"))
	sh, err := h.shifts.Active(r.Context(), a.TenantID, a.UserID)
	switch {
	case err == nil:
		role, segment = sh.Role, sh.Segment
	case !errors.Is(err, shift.ErrNoActiveShift):
		h.fail(w, "get active shift", err)
		return
	}
	if segment == "" {
		segment = model.SegmentFull
	}

	items, err := h.shifts.Checklist(r.Context(), a.TenantID, role, segment)
	if err != nil {
		h.fail(w, "resolve checklist", err)
		return
	}
	if items == nil {
		items = []model.ChecklistItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// ToggleDuty handles PUT /api/shifts/active/duties/{index}
func (h *ShiftHandler) ToggleDuty(w http.ResponseWriter, r *http.Request) {
	a, _ := auth.FromContext(r.Context())

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	var req toggleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sh, err := h.shifts.Active(r.Context(), a.TenantID, a.UserID)
	if err != nil {
		h.fail(w, "get active shift", err)
		return
	}
	p, err := h.shifts.ToggleDuty(r.Context(), a.TenantID, sh.ID, index, req.Done)
	if err != nil {
		h.fail(w, "toggle duty", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Report handles POST /api/shifts/active/report
func (h *ShiftHandler) Report(w http.ResponseWriter, r *http.Request) {
	a, _ := auth.FromContext(r.Context())

	var req commentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sh, err := h.shifts.Active(r.Context(), a.TenantID, a.UserID)
	if err != nil {
		h.fail(w, "get active shift", err)
		return
	}
	p, err := h.shifts.SubmitInterimReport(r.Context(), a.TenantID, sh.ID, req.Comment)
	if err != nil {
		h.fail(w, "submit interim report", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Close handles POST /api/shifts/active/close
func (h *ShiftHandler) Close(w http.ResponseWriter, r *http.Request) {
	a, _ := auth.FromContext(r.Context())

	var req commentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sh, err := h.shifts.Active(r.Context(), a.TenantID, a.UserID)
	if err != nil {
		h.fail(w, "get active shift", err)
		return
	}
	summary, err := h.shifts.Close(r.Context(), a.TenantID, sh.ID, req.Comment)
	if err != nil {
		h.fail(w, "close shift", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// History handles GET /api/shifts/history
func (h *ShiftHandler) History(w http.ResponseWriter, r *http.Request) {
	a, _ := auth.FromContext(r.Context())

	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	history, err := h.shifts.History(r.Context(), a.TenantID, a.UserID, int(limit))
	if err != nil {
		h.fail(w, "list shift history", err)
		return
	}
	if history == nil {
		history = []shift.Progress{}
	}
	writeJSON(w, http.StatusOK, history)
}

// Monitor handles GET /api/monitor
func (h *ShiftHandler) Monitor(w http.ResponseWriter, r *http.Request) {
	board, err := h.shifts.Monitor(r.Context(), auth.TenantID(r.Context()))
	if err != nil {
		h.fail(w, "monitor shifts", err)
		return
	}
	if board == nil {
		board = []shift.Progress{}
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *ShiftHandler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shift.ErrAlreadyOpen):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, shift.ErrNoActiveShift):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shift.ErrShiftClosed), errors.Is(err, shift.ErrContention):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, shift.ErrIndexOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
