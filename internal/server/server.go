package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/shiftboard/internal/handler"
	"github.com/dukerupert/shiftboard/internal/kpi"
	"github.com/dukerupert/shiftboard/internal/middleware"
	"github.com/dukerupert/shiftboard/internal/shift"
	"github.com/dukerupert/shiftboard/internal/store"
	"github.com/dukerupert/shiftboard/internal/task"
	ws "github.com/dukerupert/shiftboard/internal/websocket"
)

// completeLimit bounds task completion attempts per member per minute.
const completeLimit = 30

// Services are the core operations the HTTP surface exposes.
type Services struct {
	Shifts *shift.Service
	Tasks  *task.Service
	KPI    *kpi.Service
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	shiftH      *handler.ShiftHandler
	taskH       *handler.TaskHandler
	kpiH        *handler.KPIHandler
	pushH       *handler.PushHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

// New wires the handlers. vapidPublicKey may be empty when web push is off.
func New(db *sql.DB, svc Services, hub *ws.Hub, vapidPublicKey string, logger *slog.Logger) *Server {
	return &Server{
		db:          db,
		hub:         hub,
		shiftH:      handler.NewShiftHandler(svc.Shifts, logger.With("component", "shift_handler")),
		taskH:       handler.NewTaskHandler(svc.Tasks, svc.Shifts, logger.With("component", "task_handler")),
		kpiH:        handler.NewKPIHandler(svc.KPI, logger.With("component", "kpi_handler")),
		pushH:       handler.NewPushHandler(store.NewPushStore(db), vapidPublicKey, logger.With("component", "push_handler")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()
	outerMux.HandleFunc("GET /health", s.healthHandler)

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)
	outerMux.Handle("/", middleware.Identity(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func admin(h http.HandlerFunc) http.Handler {
	return middleware.RequireAdmin(h)
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.ActorKey, completeLimit, time.Minute)(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Shifts
	mux.HandleFunc("POST /api/shifts", s.shiftH.Start)
	mux.HandleFunc("GET /api/shifts/active", s.shiftH.Active)
	mux.HandleFunc("GET /api/shifts/active/checklist", s.shiftH.Checklist)
	mux.HandleFunc("PUT /api/shifts/active/duties/{index}", s.shiftH.ToggleDuty)
	mux.HandleFunc("POST /api/shifts/active/report", s.shiftH.Report)
	mux.HandleFunc("POST /api/shifts/active/close", s.shiftH.Close)
	mux.HandleFunc("GET /api/shifts/history", s.shiftH.History)
	mux.Handle("GET /api/monitor", admin(s.shiftH.Monitor))

	// Tasks
	mux.Handle("POST /api/tasks", admin(s.taskH.Create))
	mux.Handle("GET /api/tasks", admin(s.taskH.List))
	mux.Handle("POST /api/tasks/{id}/complete", s.rateLimited(s.taskH.Complete))
	mux.Handle("POST /api/tasks/{id}/cancel", admin(s.taskH.Cancel))
	mux.HandleFunc("GET /api/balance", s.taskH.Balance)

	// KPI
	mux.HandleFunc("GET /api/kpi", s.kpiH.Get)
	mux.Handle("GET /api/kpi/leaderboard", admin(s.kpiH.Leaderboard))
	mux.Handle("POST /api/kpi/{user_id}/reset", admin(s.kpiH.Reset))
	mux.Handle("POST /api/kpi/{user_id}/payout", admin(s.kpiH.Payout))

	// Push
	mux.HandleFunc("POST /api/push/subscriptions", s.pushH.Subscribe)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}
