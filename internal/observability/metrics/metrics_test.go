package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"homeworkbot/internal/eventbus"
	"homeworkbot/internal/notifier"
	"homeworkbot/internal/poller"
)

func TestObserveAndExpose(t *testing.T) {
	bus := eventbus.New()
	m := New(bus)

	m.Observe(eventbus.Event{Type: eventbus.TypeCycleDone, Data: poller.CycleResult{
		Outcome: poller.OutcomeNotified,
		Started: time.Unix(1700000000, 0),
		Took:    50 * time.Millisecond,
	}})
	m.Observe(eventbus.Event{Type: eventbus.TypeCycleDone, Data: poller.CycleResult{
		Outcome: poller.OutcomeSuppressed,
		Err:     errors.New("boom"),
		ErrKind: "response_failure",
	}})
	m.Observe(eventbus.Event{Type: eventbus.TypeNotificationSent, Data: notifier.NotificationEvent{}})
	m.Observe(eventbus.Event{Type: eventbus.TypeNotificationFailed, Data: notifier.NotificationEvent{Error: "x"}})
	m.Observe(eventbus.Event{Type: "something.else"})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`homeworkbot_poll_cycles_total{outcome="notified"} 1`,
		`homeworkbot_poll_cycles_total{outcome="suppressed"} 1`,
		`homeworkbot_poll_cycle_errors_total{kind="response_failure"} 1`,
		`homeworkbot_notifications_total{result="sent"} 1`,
		`homeworkbot_notifications_total{result="failed"} 1`,
		`homeworkbot_eventbus_dropped_events 0`,
		`go_goroutines`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
