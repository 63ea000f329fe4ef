package notifier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"homeworkbot/internal/eventbus"
	kit "homeworkbot/internal/transport"
	logx "homeworkbot/pkg/logx"
)

// Service sends text to one fixed chat. It is safe for concurrent use,
// though the poll loop only ever calls it from one goroutine.
type Service struct {
	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus
	target kit.ChatTarget

	cfg     Config
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, target kit.ChatTarget, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:    log,
		sender: sender,
		bus:    bus,
		target: target,
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 20
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	return s
}


// Send delivers text to the configured chat. It never fails from the caller's
// point of view; see the package doc.
func (s *Service) Send(ctx context.Context, text string) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	err := s.deliver(ctx, text)
	took := time.Since(start)

	ev := NotificationEvent{
		ChatID:   s.target.ChatID,
		ThreadID: s.target.ThreadID,
		Text:     text,
		At:       time.Now(),
		Took:     took,
	}
	if err != nil {
		ev.Error = err.Error()
		s.log.Error("notification send failed", logx.Err(err), logx.Int64("chat_id", s.target.ChatID), logx.Duration("took", took))
		s.publish(eventbus.TypeNotificationFailed, ev)
		return
	}

	s.appendHistory(text)
	s.log.Debug("notification sent", logx.Int64("chat_id", s.target.ChatID), logx.Duration("took", took))
	s.publish(eventbus.TypeNotificationSent, ev)
}

func (s *Service) deliver(ctx context.Context, text string) (err error) {
	if s.sender == nil {
		return errNoSender
	}
	defer func() {
		// A misbehaving transport must not take the poll loop down with it.
		if r := recover(); r != nil {
			err = panicError{r}
		}
	}()

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = s.sender.SendText(ctx, s.target, text, &kit.SendOptions{DisablePreview: true})
	return err
}

func (s *Service) publish(typ string, ev NotificationEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// Snapshot returns delivered messages, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Text: text})
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.hmu.Unlock()
}
