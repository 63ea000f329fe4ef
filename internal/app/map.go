package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"homeworkbot/internal/config"
	"homeworkbot/internal/notifier"
	"homeworkbot/internal/observability/ops"
	"homeworkbot/internal/storage"
	telegram "homeworkbot/internal/transport/telegram/adapter"
	logx "homeworkbot/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

// groupLogTarget parses telegram.group_log. Empty means no operator chat.
func groupLogTarget(cfg *config.Config) (int64, error) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram.group_log: invalid chat id %q", raw)
	}
	return id, nil
}

func mapTelegramConfig(cfg *config.Config, token string) (telegram.Config, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.request_timeout", cfg.Telegram.RequestTimeout, 15*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:          token,
		RequestTimeout: timeout,
		URL:            cfg.Telegram.APIURL,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	if nc.HistorySize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.history_size must be >= 0")
	}
	return notifier.Config{
		RatePerSec:  nc.RatePerSec,
		HistorySize: nc.HistorySize,
	}, nil
}

// mapStorageConfig returns enabled=false when no journal is configured.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	if sc.MaxEntries < 0 {
		return storage.Config{}, false, fmt.Errorf("storage.max_entries must be >= 0")
	}
	out := storage.Config{Driver: driver, MaxEntries: sc.MaxEntries}

	switch driver {
	case "file":
		out.Path = strings.TrimSpace(sc.Path)
		if out.Path == "" {
			out.Path = "./data/deliveries.jsonl"
		}
	case "sqlite", "sqlite3":
		out.Path = strings.TrimSpace(sc.Path)
		if out.Path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		out.BusyTimeout = busy
	case "redis":
		out.Addr = strings.TrimSpace(sc.Addr)
		if out.Addr == "" {
			return storage.Config{}, false, fmt.Errorf("storage.addr is required when storage.driver=redis")
		}
		out.Password = sc.Password
		out.DB = sc.DB
		out.Key = sc.Key
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	return out, true, nil
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	oc := cfg.Ops
	return ops.Config{
		Enabled:       oc.Enabled,
		Addr:          oc.Addr,
		Token:         strings.TrimSpace(oc.Token),
		AllowInsecure: oc.AllowInsecure,
		Pprof:         oc.Pprof,
		ReadTimeout:   10 * time.Second,
		// pprof profile/trace stream for up to 30s by default.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// validateConfig rejects a reloaded file that the running app could not map.
func validateConfig(cfg *config.Config) error {
	if _, err := groupLogTarget(cfg); err != nil {
		return err
	}
	if _, err := mapTelegramConfig(cfg, ""); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := config.ParseRetryPeriod(cfg.Practicum.RetryPeriod); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("practicum.request_timeout", cfg.Practicum.RequestTimeout); err != nil {
		return err
	}
	return nil
}
