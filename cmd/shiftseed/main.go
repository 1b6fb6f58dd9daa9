package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/dukerupert/shiftboard/internal/config"
	"github.com/dukerupert/shiftboard/internal/database"
	"github.com/dukerupert/shiftboard/internal/logging"
	"github.com/dukerupert/shiftboard/internal/seed"
)

func main() {
	path := flag.String("file", "seed.yaml", "seed file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	in, err := os.Open(*path)
	if err != nil {
		slog.Error("failed to open seed file", "path", *path, "error", err)
		os.Exit(1)
	}
	defer in.Close()

	f, err := seed.Parse(in)
	if err != nil {
		slog.Error("invalid seed file", "path", *path, "error", err)
		os.Exit(1)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	st, err := seed.Apply(context.Background(), db, f, logger)
	if err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
	slog.Info("seed applied", "tenants", st.Tenants, "members", st.Members, "items", st.Items, "reminders", st.Reminders)
}
