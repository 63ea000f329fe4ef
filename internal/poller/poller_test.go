package poller

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"homeworkbot/internal/eventbus"
	"homeworkbot/internal/homework"
	logx "homeworkbot/pkg/logx"
)

type answer struct {
	raw any
	err error
}

type scriptedFetcher struct {
	answers []answer
	froms   []int64
}

func (f *scriptedFetcher) Fetch(ctx context.Context, from int64) (any, error) {
	f.froms = append(f.froms, from)
	if len(f.answers) == 0 {
		return map[string]any{"homeworks": []any{}}, nil
	}
	a := f.answers[0]
	if len(f.answers) > 1 {
		f.answers = f.answers[1:]
	}
	return a.raw, a.err
}

type recordingNotifier struct{ sent []string }

func (r *recordingNotifier) Send(ctx context.Context, text string) { r.sent = append(r.sent, text) }

func homeworks(items ...map[string]any) map[string]any {
	list := make([]any, 0, len(items))
	for _, it := range items {
		list = append(list, it)
	}
	return map[string]any{"homeworks": list, "current_date": int64(1700000000)}
}

func hw(name, status string) map[string]any {
	return map[string]any{"homework_name": name, "status": status}
}

func newTestPoller(t *testing.T, f Fetcher, n Notifier, bus eventbus.Bus, opts ...Option) *Poller {
	t.Helper()
	p, err := New(Config{RetryPeriod: 10 * time.Minute, FromDate: 1700000000}, f, n, logx.Nop(), bus, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

const approvedText = `Изменился статус проверки работы "hw1". Работа проверена: ревьюеру всё понравилось. Ура!`

func TestCycleNotifiesAndDeduplicates(t *testing.T) {
	f := &scriptedFetcher{answers: []answer{{raw: homeworks(hw("hw1", "approved"))}}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n, nil)

	ctx := context.Background()
	if res := p.Cycle(ctx); res.Outcome != OutcomeNotified || res.Message != approvedText {
		t.Fatalf("first cycle: %+v", res)
	}
	if res := p.Cycle(ctx); res.Outcome != OutcomeSuppressed {
		t.Fatalf("second cycle: %+v", res)
	}
	if len(n.sent) != 1 || n.sent[0] != approvedText {
		t.Fatalf("sent = %q", n.sent)
	}
	if p.LastMessage() != approvedText {
		t.Fatalf("last message = %q", p.LastMessage())
	}
}

func TestCycleUsesFirstRecordOnly(t *testing.T) {
	f := &scriptedFetcher{answers: []answer{{raw: homeworks(
		hw("newest", "reviewing"),
		hw("older", "approved"),
	)}}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n, nil)

	p.Cycle(context.Background())
	want := `Изменился статус проверки работы "newest". Работа взята на проверку ревьюером.`
	if len(n.sent) != 1 || n.sent[0] != want {
		t.Fatalf("sent = %q", n.sent)
	}
}

func TestCycleFailureIsNotifiedOnce(t *testing.T) {
	f := &scriptedFetcher{answers: []answer{{err: errors.New("boom")}}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n, nil)

	ctx := context.Background()
	res := p.Cycle(ctx)
	if !res.Failed() || res.Outcome != OutcomeNotified {
		t.Fatalf("first cycle: %+v", res)
	}
	p.Cycle(ctx)

	if len(n.sent) != 1 || n.sent[0] != "Сбой в работе программы: boom" {
		t.Fatalf("sent = %q", n.sent)
	}
}

func TestCycleEmptyListSendsNothing(t *testing.T) {
	f := &scriptedFetcher{answers: []answer{{raw: homeworks()}}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n, nil)

	res := p.Cycle(context.Background())
	if res.Outcome != OutcomeEmpty || res.Failed() {
		t.Fatalf("result = %+v", res)
	}
	if len(n.sent) != 0 || p.LastMessage() != "" {
		t.Fatalf("expected no sends, got %q", n.sent)
	}
}

func TestCycleSoftErrorIsAFailure(t *testing.T) {
	f := &scriptedFetcher{answers: []answer{{raw: map[string]any{
		"code":    homework.CodeNotAuthenticated,
		"message": "Учетные данные не были предоставлены.",
	}}}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n, nil)

	res := p.Cycle(context.Background())
	if !errors.Is(res.Err, homework.ErrResponseFailure) {
		t.Fatalf("err = %v", res.Err)
	}
	if len(n.sent) != 1 || !strings.HasPrefix(n.sent[0], "Сбой в работе программы: ") {
		t.Fatalf("sent = %q", n.sent)
	}
}

func TestCycleStatusChangeAfterFailure(t *testing.T) {
	f := &scriptedFetcher{answers: []answer{
		{raw: homeworks(hw("hw1", "approved"))},
		{err: errors.New("boom")},
		{raw: homeworks(hw("hw1", "approved"))},
	}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n, nil)

	for i := 0; i < 3; i++ {
		p.Cycle(context.Background())
	}
	if len(n.sent) != 3 {
		t.Fatalf("expected three sends, got %q", n.sent)
	}
	if n.sent[2] != approvedText {
		t.Fatalf("third send = %q", n.sent[2])
	}
}

func TestCycleMissingFieldIsNotified(t *testing.T) {
	f := &scriptedFetcher{answers: []answer{{raw: homeworks(hw("hw1", "unknown"))}}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n, nil)

	res := p.Cycle(context.Background())
	if homework.KindOf(res.Err) != homework.KindMissingField {
		t.Fatalf("kind = %q (%v)", homework.KindOf(res.Err), res.Err)
	}
	if res.ErrKind != string(homework.KindMissingField) {
		t.Fatalf("ErrKind = %q", res.ErrKind)
	}
	if len(n.sent) != 1 {
		t.Fatalf("sent = %q", n.sent)
	}
}

func TestCyclePublishesEventAndHeartbeat(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	beats := 0
	f := &scriptedFetcher{answers: []answer{{raw: homeworks(hw("hw1", "rejected"))}}}
	p := newTestPoller(t, f, &recordingNotifier{}, bus, WithHeartbeat(func() { beats++ }))

	res := p.Cycle(context.Background())
	if beats != 1 {
		t.Fatalf("heartbeat calls = %d", beats)
	}
	select {
	case e := <-events:
		got, ok := e.Data.(CycleResult)
		if e.Type != eventbus.TypeCycleDone || !ok || got.ID != res.ID {
			t.Fatalf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no cycle event")
	}
}

func TestRunKeepsWindowAndSleepsFixedPeriod(t *testing.T) {
	tests := []struct {
		name   string
		period time.Duration
		clock  time.Time
	}{
		{"aligned clock", 10 * time.Minute, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"sub-second clock", 10 * time.Minute, time.Date(2024, 1, 1, 12, 0, 0, 700_000_000, time.UTC)},
		{"short period", 2 * time.Second, time.Date(2024, 1, 1, 12, 0, 0, 999_999_999, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &scriptedFetcher{}
			n := &recordingNotifier{}

			var waits []time.Duration
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			clock := tt.clock
			p, err := New(Config{RetryPeriod: tt.period, FromDate: 1700000000}, f, n, logx.Nop(), nil,
				WithClock(func() time.Time { return clock }),
				WithSleeper(func(ctx context.Context, d time.Duration) bool {
					waits = append(waits, d)
					clock = clock.Add(d + 137*time.Millisecond)
					if len(waits) == 3 {
						cancel()
						return false
					}
					return true
				}),
			)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			if err := p.Run(ctx); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(f.froms) != 3 {
				t.Fatalf("fetch calls = %d", len(f.froms))
			}
			for i, from := range f.froms {
				if from != 1700000000 {
					t.Fatalf("fetch %d used from=%d", i, from)
				}
			}
			for i, w := range waits {
				if w != tt.period {
					t.Fatalf("wait %d = %s, want %s", i, w, tt.period)
				}
			}
		})
	}
}

func TestRunReturnsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &scriptedFetcher{}
	p := newTestPoller(t, f, &recordingNotifier{}, nil)

	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{RetryPeriod: time.Minute}, nil, &recordingNotifier{}, logx.Nop(), nil); err == nil {
		t.Fatal("expected error for nil fetcher")
	}
	if _, err := New(Config{}, &scriptedFetcher{}, &recordingNotifier{}, logx.Nop(), nil); err == nil {
		t.Fatal("expected error for zero retry period")
	}
	if _, err := New(Config{RetryPeriod: 1500 * time.Millisecond}, &scriptedFetcher{}, &recordingNotifier{}, logx.Nop(), nil); err == nil {
		t.Fatal("expected error for fractional retry period")
	}
}

// cancellingFetcher cancels the run context mid-request, like a SIGTERM
// arriving while the API call is in flight.
type cancellingFetcher struct{ cancel context.CancelFunc }

func (f *cancellingFetcher) Fetch(ctx context.Context, from int64) (any, error) {
	f.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCycleCancelledDuringFetchSendsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := &recordingNotifier{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	p := newTestPoller(t, &cancellingFetcher{cancel: cancel}, n, bus)

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(n.sent) != 0 {
		t.Fatalf("sent on shutdown: %q", n.sent)
	}
	if p.LastMessage() != "" {
		t.Fatalf("lastMessage = %q", p.LastMessage())
	}
	select {
	case e := <-events:
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}
