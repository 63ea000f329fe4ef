package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"homeworkbot/internal/eventbus"
	"homeworkbot/internal/homework"
	logx "homeworkbot/pkg/logx"
)

const failurePrefix = "Сбой в работе программы: "

// Poller is the poll-compare-notify loop.
//
// Cycles run strictly one after another on the goroutine that calls Run.
// lastMessage is owned by that goroutine, so nothing here is locked.
type Poller struct {
	cfg      Config
	fetcher  Fetcher
	notifier Notifier
	log      logx.Logger
	bus      eventbus.Bus

	schedule  cron.Schedule
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) bool
	heartbeat func()

	lastMessage string
}

type Option func(*Poller)

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) Option { return func(p *Poller) { p.now = now } }

// WithSleeper replaces the context-aware sleep between cycles (tests).
func WithSleeper(fn func(ctx context.Context, d time.Duration) bool) Option {
	return func(p *Poller) { p.sleep = fn }
}

// WithHeartbeat registers a hook called after every cycle (systemd watchdog).
func WithHeartbeat(fn func()) Option { return func(p *Poller) { p.heartbeat = fn } }

func New(cfg Config, f Fetcher, n Notifier, log logx.Logger, bus eventbus.Bus, opts ...Option) (*Poller, error) {
	if f == nil || n == nil {
		return nil, errors.New("poller: fetcher and notifier are required")
	}
	if cfg.RetryPeriod < time.Second || cfg.RetryPeriod%time.Second != 0 {
		return nil, fmt.Errorf("poller: retry period must be a whole number of seconds, got %s", cfg.RetryPeriod)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Poller{
		cfg:      cfg,
		fetcher:  f,
		notifier: n,
		log:      log,
		bus:      bus,
		schedule: cron.Every(cfg.RetryPeriod),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// LastMessage returns the last text sent (or attempted). Not safe to call
// concurrently with Run.
func (p *Poller) LastMessage() string { return p.lastMessage }

// Run executes cycles until ctx is cancelled. Every cycle is followed by the
// fixed sleep, whatever its outcome.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("polling started",
		logx.Duration("retry_period", p.cfg.RetryPeriod),
		logx.Int64("from_date", p.cfg.FromDate),
	)
	for {
		p.Cycle(ctx)
		if ctx.Err() != nil {
			break
		}

		wait := p.nextWait()
		p.log.Debug("sleeping", logx.Duration("wait", wait))
		if !p.sleep(ctx, wait) {
			break
		}
	}
	p.log.Info("polling stopped")
	return nil
}

// nextWait is the delay before the next cycle. The schedule subtracts the
// sub-second part of its input, so it is fed a second-aligned time.
func (p *Poller) nextWait() time.Duration {
	now := p.now().Truncate(time.Second)
	return p.schedule.Next(now).Sub(now)
}

// Cycle runs one fetch-validate-format-notify pass.
func (p *Poller) Cycle(ctx context.Context) CycleResult {
	res := CycleResult{ID: uuid.NewString(), Started: p.now()}
	log := p.log.With(logx.String("cycle", res.ID))

	msg, err := p.statusMessage(ctx, log)
	if ctx.Err() != nil {
		// Shutdown interrupted the request.
		log.Debug("cycle interrupted", logx.Err(err))
		res.Took = p.now().Sub(res.Started)
		return res
	}
	switch {
	case err != nil:
		res.Err = err
		res.ErrKind = string(homework.KindOf(err))
		res.ErrText = err.Error()
		msg = failurePrefix + err.Error()
		log.Error("cycle failed", logx.Err(err), logx.String("kind", res.ErrKind))
	case msg == "":
		res.Outcome = OutcomeEmpty
		log.Debug("no homework in window")
	}

	if msg != "" {
		res.Message = msg
		res.Outcome = p.dispatch(ctx, log, msg)
	}

	res.Took = p.now().Sub(res.Started)
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: eventbus.TypeCycleDone, Data: res})
	}
	if p.heartbeat != nil {
		p.heartbeat()
	}
	return res
}

// statusMessage returns the text for the newest homework, "" if there is none.
func (p *Poller) statusMessage(ctx context.Context, log logx.Logger) (string, error) {
	raw, err := p.fetcher.Fetch(ctx, p.cfg.FromDate)
	if err != nil {
		return "", err
	}
	records, err := homework.ParseResponse(raw)
	if err != nil {
		return "", err
	}
	log.Debug("api answer validated", logx.Int("homeworks", len(records)))
	if len(records) == 0 {
		return "", nil
	}
	return homework.ParseStatus(records[0])
}

// dispatch sends msg unless it equals the previous one.
func (p *Poller) dispatch(ctx context.Context, log logx.Logger, msg string) Outcome {
	if msg == p.lastMessage {
		log.Debug("message unchanged; not sending")
		return OutcomeSuppressed
	}
	log.Info("sending notification")
	p.notifier.Send(ctx, msg)
	p.lastMessage = msg
	return OutcomeNotified
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
