package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"homeworkbot/internal/eventbus"
	kit "homeworkbot/internal/transport"
	logx "homeworkbot/pkg/logx"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	to   []kit.ChatTarget
	err  error
	pan  any
}

func (r *recordingSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if r.pan != nil {
		panic(r.pan)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return kit.MessageRef{}, r.err
	}
	r.sent = append(r.sent, text)
	r.to = append(r.to, to)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(r.sent)}, nil
}

func TestSendDeliversToTarget(t *testing.T) {
	rs := &recordingSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{RatePerSec: 100}, rs, kit.ChatTarget{ChatID: 42}, logx.Nop(), bus)
	s.Send(context.Background(), "hello")

	if len(rs.sent) != 1 || rs.sent[0] != "hello" || rs.to[0].ChatID != 42 {
		t.Fatalf("unexpected sends: %v %v", rs.sent, rs.to)
	}
	if h := s.Snapshot(); len(h) != 1 || h[0].Text != "hello" {
		t.Fatalf("unexpected history: %+v", h)
	}
	select {
	case e := <-events:
		if e.Type != eventbus.TypeNotificationSent {
			t.Fatalf("event type = %s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestSendSwallowsTransportErrors(t *testing.T) {
	rs := &recordingSender{err: errors.New("telegram: Forbidden: bot was blocked by the user (403)")}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{}, rs, kit.ChatTarget{ChatID: 1}, logx.Nop(), bus)
	s.Send(context.Background(), "x")

	if len(s.Snapshot()) != 0 {
		t.Fatal("failed send must not enter history")
	}
	e := <-events
	if e.Type != eventbus.TypeNotificationFailed {
		t.Fatalf("event type = %s", e.Type)
	}
	if ev, ok := e.Data.(NotificationEvent); !ok || ev.Error == "" {
		t.Fatalf("expected error in payload, got %+v", e.Data)
	}
}

func TestSendSwallowsPanicsAndMissingSender(t *testing.T) {
	s := New(Config{}, &recordingSender{pan: "boom"}, kit.ChatTarget{ChatID: 1}, logx.Nop(), nil)
	s.Send(context.Background(), "x")

	s = New(Config{}, nil, kit.ChatTarget{ChatID: 1}, logx.Nop(), nil)
	s.Send(context.Background(), "x")
}

func TestSendCancelledContext(t *testing.T) {
	rs := &recordingSender{}
	s := New(Config{RatePerSec: 1}, rs, kit.ChatTarget{ChatID: 1}, logx.Nop(), nil)
	// Drain the burst so the next Wait would block.
	s.Send(context.Background(), "first")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Send(ctx, "second")
	if len(rs.sent) != 1 {
		t.Fatalf("expected only the first send, got %v", rs.sent)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	rs := &recordingSender{}
	s := New(Config{RatePerSec: 1000, HistorySize: 2}, rs, kit.ChatTarget{ChatID: 1}, logx.Nop(), nil)
	for _, m := range []string{"a", "b", "c"} {
		s.Send(context.Background(), m)
	}
	h := s.Snapshot()
	if len(h) != 2 || h[0].Text != "b" || h[1].Text != "c" {
		t.Fatalf("unexpected history: %+v", h)
	}
}
