package ops

import (
	"context"
	"sync"
	"time"

	"homeworkbot/internal/eventbus"
	"homeworkbot/internal/notifier"
	"homeworkbot/internal/poller"
)

// Health tracks the last polling cycle for /healthz.
type Health struct {
	mu         sync.RWMutex
	last       *poller.CycleResult
	startedAt  time.Time
	staleAfter time.Duration
	now        func() time.Time
}

// NewHealth reports stale once no cycle has completed for staleAfter.
// staleAfter <= 0 disables the staleness check.
func NewHealth(staleAfter time.Duration) *Health {
	return &Health{startedAt: time.Now(), staleAfter: staleAfter, now: time.Now}
}

type HealthReport struct {
	Status    string              `json:"status"`
	Uptime    string              `json:"uptime"`
	LastCycle *poller.CycleResult `json:"last_cycle,omitempty"`
	Tasks     any                 `json:"tasks,omitempty"`
	Error     string              `json:"error,omitempty"`

	Notifications []notifier.HistoryItem `json:"recent_notifications,omitempty"`
}

const (
	StatusOK       = "ok"
	StatusStarting = "starting"
	StatusFailing  = "failing"
	StatusStale    = "stale"
)

func (h *Health) Observe(e eventbus.Event) {
	if e.Type != eventbus.TypeCycleDone {
		return
	}
	res, ok := e.Data.(poller.CycleResult)
	if !ok {
		return
	}
	h.mu.Lock()
	h.last = &res
	h.mu.Unlock()
}

// Run consumes events until ctx is done or the channel closes.
func (h *Health) Run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			h.Observe(e)
		}
	}
}

// Report returns the current status. Healthy is false only for stale.
func (h *Health) Report() (HealthReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	rep := HealthReport{Uptime: now.Sub(h.startedAt).Round(time.Second).String()}
	ref := h.startedAt
	if h.last != nil {
		last := *h.last
		rep.LastCycle = &last
		ref = last.Started
	}
	switch {
	case h.staleAfter > 0 && now.Sub(ref) > h.staleAfter:
		rep.Status = StatusStale
		return rep, false
	case h.last == nil:
		rep.Status = StatusStarting
	case h.last.Failed():
		rep.Status = StatusFailing
	default:
		rep.Status = StatusOK
	}
	return rep, true
}
