package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"homeworkbot/internal/homework"
)

const (
	DefaultEndpoint       = homework.DefaultEndpoint
	DefaultRetryPeriod    = 10 * time.Minute
	DefaultRequestTimeout = 30 * time.Second
)

// Settings is the immutable record the poller runs with.
// It is built once at startup and passed by value.
type Settings struct {
	Endpoint       string
	PracticumToken string
	BotToken       string
	ChatID         int64
	RetryPeriod    time.Duration
	RequestTimeout time.Duration
	// FromDate is the fixed lower bound of every query window (unix seconds).
	FromDate int64
}

// BuildSettings merges the file config with the environment secrets.
// now supplies FromDate when the config doesn't pin one.
func BuildSettings(cfg *Config, sec Secrets, now time.Time) (Settings, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	chatID, err := ParseChatID(sec.ChatID)
	if err != nil {
		return Settings{}, err
	}
	period, err := ParseRetryPeriod(cfg.Practicum.RetryPeriod)
	if err != nil {
		return Settings{}, err
	}
	timeout, err := ParseDurationOrDefault("practicum.request_timeout", cfg.Practicum.RequestTimeout, DefaultRequestTimeout)
	if err != nil {
		return Settings{}, err
	}
	endpoint := strings.TrimSpace(cfg.Practicum.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	from := cfg.Practicum.FromDate
	if from < 0 {
		return Settings{}, fmt.Errorf("practicum.from_date must be >= 0")
	}
	if from == 0 {
		from = now.Unix()
	}
	return Settings{
		Endpoint:       endpoint,
		PracticumToken: sec.PracticumToken,
		BotToken:       sec.BotToken,
		ChatID:         chatID,
		RetryPeriod:    period,
		RequestTimeout: timeout,
		FromDate:       from,
	}, nil
}

// ParseRetryPeriod parses practicum.retry_period. The poll schedule works in
// whole seconds, so fractional periods are rejected.
func ParseRetryPeriod(raw string) (time.Duration, error) {
	d, err := ParseDurationOrDefault("practicum.retry_period", raw, DefaultRetryPeriod)
	if err != nil {
		return 0, err
	}
	if d%time.Second != 0 {
		return 0, fmt.Errorf("practicum.retry_period: %s is not a whole number of seconds", d)
	}
	return d, nil
}

// ParseChatID parses a numeric Telegram chat id (negative for groups/channels).
func ParseChatID(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("CHAT_ID is empty")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("CHAT_ID: invalid chat id %q", raw)
	}
	return id, nil
}
