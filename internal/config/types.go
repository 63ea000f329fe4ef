package config

// Config is the on-disk (JSON or YAML) configuration.
//
// Secrets never live here: tokens and the destination chat come from the
// environment (see Secrets). Every field is optional.
type Config struct {
	Practicum PracticumConfig `json:"practicum"`
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Ops       OpsConfig       `json:"ops"`
}

// PracticumConfig controls polling of the homework status API.
//
// Durations are Go duration strings (e.g. "30s", "10m").
//
// Defaults:
//   - endpoint: https://practicum.yandex.ru/api/user_api/homework_statuses/
//   - retry_period: "10m"
//   - request_timeout: "30s"
//   - from_date: 0 (process start time)
type PracticumConfig struct {
	Endpoint       string `json:"endpoint,omitempty"`
	RetryPeriod    string `json:"retry_period,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
	// FromDate pins the lower bound of the query window (unix seconds).
	FromDate int64 `json:"from_date,omitempty"`
}

type TelegramConfig struct {
	// APIURL overrides the Bot API base URL (local bot API server).
	APIURL string `json:"api_url,omitempty"`
	// RequestTimeout is a Go duration string (default "15s").
	RequestTimeout string `json:"request_timeout,omitempty"`
	// GroupLog is an optional operator chat id that receives warn+ log lines.
	GroupLog string `json:"group_log,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// NotifierConfig controls outbound status messages.
type NotifierConfig struct {
	// RatePerSec caps outbound sends (token bucket, burst = rate). Default 1.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// HistorySize is how many recent sends /healthz shows. Default 20.
	HistorySize int `json:"history_size,omitempty"`
}

// StorageConfig controls the optional delivery journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/journal.db" }
//	"storage": { "driver": "redis", "addr": "127.0.0.1:6379", "key": "homeworkbot:journal" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	Addr        string `json:"addr,omitempty"`         // redis
	Password    string `json:"password,omitempty"`     // redis (do not log)
	DB          int    `json:"db,omitempty"`           // redis
	Key         string `json:"key,omitempty"`          // redis
	MaxEntries  int    `json:"max_entries,omitempty"`
}

// OpsConfig controls the optional operations HTTP endpoint
// (/healthz, /metrics, /deliveries, /debug/pprof/).
//
// Prefer binding to localhost. A non-loopback address requires a token or allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9090"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}
