package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/shiftboard/internal/auth"
	"github.com/dukerupert/shiftboard/internal/kpi"
)

type KPIHandler struct {
	kpi    *kpi.Service
	logger *slog.Logger
}

func NewKPIHandler(svc *kpi.Service, logger *slog.Logger) *KPIHandler {
	return &KPIHandler{kpi: svc, logger: logger}
}

// Get handles GET /api/kpi. Admins may pass user_id to see another member.
func (h *KPIHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, _ := auth.FromContext(r.Context())

	userID, err := queryInt(r, "user_id", a.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	if userID != a.UserID && !a.IsAdmin() {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	res, err := h.kpi.Compute(r.Context(), a.TenantID, userID)
	if err != nil {
		h.fail(w, "compute kpi", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Leaderboard handles GET /api/kpi/leaderboard
func (h *KPIHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.kpi.Leaderboard(r.Context(), auth.TenantID(r.Context()))
	if err != nil {
		h.fail(w, "compute leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// Reset handles POST /api/kpi/{user_id}/reset
func (h *KPIHandler) Reset(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	at, err := h.kpi.ResetPeriod(r.Context(), auth.TenantID(r.Context()), userID)
	if err != nil {
		h.fail(w, "reset kpi period", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "kpi_reset_at": at})
}

// Payout handles POST /api/kpi/{user_id}/payout
func (h *KPIHandler) Payout(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	paid, err := h.kpi.Payout(r.Context(), auth.TenantID(r.Context()), userID)
	if err != nil {
		h.fail(w, "pay out balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "paid": paid, "balance": 0})
}

func (h *KPIHandler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, kpi.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, kpi.ErrNothingToPay):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
