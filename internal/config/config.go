package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ArenaBaseURL string
	ArenaWSURL   string

	AuthToken  string
	ViewerID   string
	ViewerName string

	RedisURL    string
	DatabaseURL string

	// ReconnectPolicy picks the socket retry curve: "fixed" or "backoff".
	ReconnectPolicy string
	ReconnectDelay  time.Duration

	// RefetchInterval drives REST polling when no socket is available.
	// Zero disables polling.
	RefetchInterval time.Duration

	MessageOverrideDir string
	AnnounceStdout     bool
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ReconnectPolicy: "backoff",
		ReconnectDelay:  5 * time.Second,
		RefetchInterval: 30 * time.Second,
	}

	cfg.ArenaBaseURL = strings.TrimSpace(os.Getenv("ARENA_BASE_URL"))
	cfg.ArenaWSURL = strings.TrimSpace(os.Getenv("ARENA_WS_URL"))

	cfg.AuthToken = strings.TrimSpace(os.Getenv("AUTH_TOKEN"))
	cfg.ViewerID = strings.TrimSpace(os.Getenv("VIEWER_ID"))
	cfg.ViewerName = strings.TrimSpace(os.Getenv("VIEWER_NAME"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("RECONNECT_POLICY")); v != "" {
		switch v {
		case "fixed", "backoff":
			cfg.ReconnectPolicy = v
		default:
			return nil, errors.New("RECONNECT_POLICY must be fixed or backoff")
		}
	}
	if v := strings.TrimSpace(os.Getenv("RECONNECT_DELAY")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, errors.New("RECONNECT_DELAY must be a positive duration")
		}
		cfg.ReconnectDelay = d
	}
	if v := strings.TrimSpace(os.Getenv("REFETCH_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, errors.New("REFETCH_INTERVAL must be a duration")
		}
		cfg.RefetchInterval = d
	}

	cfg.MessageOverrideDir = strings.TrimSpace(os.Getenv("MESSAGE_OVERRIDE_DIR"))

	cfg.AnnounceStdout = true
	if v := strings.TrimSpace(os.Getenv("ANNOUNCE_STDOUT")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AnnounceStdout = b
		}
	}

	if cfg.ArenaBaseURL == "" {
		return nil, errors.New("ARENA_BASE_URL is required")
	}
	if cfg.ViewerID == "" {
		return nil, errors.New("VIEWER_ID is required")
	}

	return cfg, nil
}
