package poller

import (
	"context"
	"time"
)

// Fetcher returns the raw API answer for homework updated since from.
type Fetcher interface {
	Fetch(ctx context.Context, from int64) (any, error)
}

// Notifier delivers text. Implementations must not fail: they log and drop errors.
type Notifier interface {
	Send(ctx context.Context, text string)
}

type Config struct {
	// RetryPeriod is the fixed sleep between cycles.
	RetryPeriod time.Duration
	// FromDate is the lower bound of every query window (unix seconds).
	// It is captured once and never advanced.
	FromDate int64
}

// Outcome is what a cycle ended up doing.
type Outcome string

const (
	OutcomeNotified   Outcome = "notified"
	OutcomeSuppressed Outcome = "suppressed" // same text as the previous message
	OutcomeEmpty      Outcome = "empty"      // no homework in the window
)

// CycleResult describes one completed cycle. It is also the payload of
// poll.cycle bus events.
type CycleResult struct {
	ID      string        `json:"id"`
	Started time.Time     `json:"started"`
	Took    time.Duration `json:"took"`
	Outcome Outcome       `json:"outcome"`
	// Message is the status or failure text the cycle produced (empty for OutcomeEmpty).
	Message string `json:"message,omitempty"`
	// Err is the cycle error, if any; failures are still notified.
	Err     error  `json:"-"`
	ErrKind string `json:"err_kind,omitempty"`
	ErrText string `json:"err,omitempty"`
}

func (r CycleResult) Failed() bool { return r.Err != nil }
