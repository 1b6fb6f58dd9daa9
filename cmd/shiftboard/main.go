package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dukerupert/shiftboard/internal/clock"
	"github.com/dukerupert/shiftboard/internal/config"
	"github.com/dukerupert/shiftboard/internal/database"
	"github.com/dukerupert/shiftboard/internal/kpi"
	"github.com/dukerupert/shiftboard/internal/logging"
	"github.com/dukerupert/shiftboard/internal/notify"
	"github.com/dukerupert/shiftboard/internal/push"
	"github.com/dukerupert/shiftboard/internal/server"
	"github.com/dukerupert/shiftboard/internal/shift"
	"github.com/dukerupert/shiftboard/internal/store"
	"github.com/dukerupert/shiftboard/internal/sweep"
	"github.com/dukerupert/shiftboard/internal/task"
	ws "github.com/dukerupert/shiftboard/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	clk, err := clock.LoadSystem(cfg.Timezone)
	if err != nil {
		slog.Error("failed to load timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	hub := ws.NewHub(logger.With("component", "websocket"))
	sinks := []notify.Notifier{
		notify.NewLog(logger.With("component", "notify_log")),
		hub,
	}

	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			slog.Warn("redis not reachable, outbox writes will fail until it is", "addr", cfg.Redis.Addr, "error", err)
		}
		cancel()
		sinks = append(sinks, notify.NewStream(rdb, cfg.Redis.Stream))
		slog.Info("redis outbox enabled", "addr", cfg.Redis.Addr, "stream", cfg.Redis.Stream)
	}

	pushCfg := push.Config{
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber:      cfg.Push.Subscriber,
	}
	if pushCfg.Enabled() {
		sinks = append(sinks, push.NewService(pushCfg, store.NewPushStore(db), nil, logger.With("component", "push")))
		slog.Info("web push enabled")
	}

	notifier := notify.NewFanout(logger.With("component", "notify"), sinks...)

	shifts := store.NewShiftStore(db)
	checklists := store.NewChecklistStore(db)
	members := store.NewMemberStore(db)
	balances := store.NewBalanceStore(db)

	svc := server.Services{
		Shifts: shift.NewService(shifts, checklists, members, notifier, clk, logger.With("component", "shift")),
		Tasks:  task.NewService(store.NewTaskStore(db), members, balances, notifier, clk, logger.With("component", "task")),
		KPI:    kpi.NewService(shifts, members, balances, notifier, clk, cfg.KPIWindow, logger.With("component", "kpi")),
	}

	sched := sweep.NewScheduler(svc.Tasks, shifts, checklists, notifier, clk, cfg.SweepInterval, logger.With("component", "sweep"))
	sched.Start(context.Background())

	srv := server.New(db, svc, hub, pushCfg.VAPIDPublicKey, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("shiftboard starting", "addr", ":"+cfg.Port, "timezone", cfg.Timezone, "sweep_interval", cfg.SweepInterval)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	sched.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
