package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "SHIFTBOARD_"

type Redis struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

func (r Redis) Enabled() bool {
	return r.Addr != ""
}

type Push struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

func (p Push) Enabled() bool {
	return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != ""
}

type Config struct {
	Port          string
	DBPath        string
	LogLevel      string
	LogFormat     string
	Timezone      string
	SweepInterval time.Duration
	KPIWindow     time.Duration
	Redis         Redis
	Push          Push
}

// Load reads a .env file from the working directory when one exists, then
// builds the config from SHIFTBOARD_* environment variables. Variables already
// set in the environment win over the file.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Port:      get("PORT", "8080"),
		DBPath:    get("DB_PATH", "shiftboard.db"),
		LogLevel:  get("LOG_LEVEL", "info"),
		LogFormat: get("LOG_FORMAT", "text"),
		Timezone:  get("TIMEZONE", "Asia/Almaty"),
		Redis: Redis{
			Addr:     get("REDIS_ADDR", ""),
			Password: get("REDIS_PASSWORD", ""),
			Stream:   get("REDIS_STREAM", "shiftboard:notifications"),
		},
		Push: Push{
			VAPIDPublicKey:  get("VAPID_PUBLIC_KEY", ""),
			VAPIDPrivateKey: get("VAPID_PRIVATE_KEY", ""),
			Subscriber:      get("VAPID_SUBSCRIBER", "mailto:noreply@shiftboard.app"),
		},
	}

	interval, err := time.ParseDuration(get("SWEEP_INTERVAL", "60s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse %sSWEEP_INTERVAL: %w", envPrefix, err)
	}
	if interval <= 0 {
		return Config{}, fmt.Errorf("%sSWEEP_INTERVAL must be positive, got %s", envPrefix, interval)
	}
	cfg.SweepInterval = interval

	days, err := strconv.Atoi(get("KPI_WINDOW_DAYS", "30"))
	if err != nil {
		return Config{}, fmt.Errorf("parse %sKPI_WINDOW_DAYS: %w", envPrefix, err)
	}
	if days <= 0 {
		return Config{}, fmt.Errorf("%sKPI_WINDOW_DAYS must be positive, got %d", envPrefix, days)
	}
	cfg.KPIWindow = time.Duration(days) * 24 * time.Hour

	db, err := strconv.Atoi(get("REDIS_DB", "0"))
	if err != nil {
		return Config{}, fmt.Errorf("parse %sREDIS_DB: %w", envPrefix, err)
	}
	cfg.Redis.DB = db

	return cfg, nil
}
