package app

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"homeworkbot/internal/config"
	"homeworkbot/internal/eventbus"
	"homeworkbot/internal/homework"
	"homeworkbot/internal/notifier"
	"homeworkbot/internal/observability/metrics"
	"homeworkbot/internal/observability/ops"
	"homeworkbot/internal/poller"
	"homeworkbot/internal/runtime/supervisor"
	"homeworkbot/internal/storage"
	kit "homeworkbot/internal/transport"
	telegram "homeworkbot/internal/transport/telegram/adapter"
	logx "homeworkbot/pkg/logx"
	"homeworkbot/pkg/systemd"
)

type Options struct {
	ConfigPath string
	// EnvFiles are loaded (if present) before reading secrets from the environment.
	EnvFiles []string
	// HTTPClient overrides the client used for the homework API.
	HTTPClient *http.Client
}

type App struct {
	cfgm     *config.ConfigManager
	settings config.Settings

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	sup  *supervisor.Supervisor

	store   storage.Store
	adapter *telegram.Adapter
	notif   *notifier.Service
	poller  *poller.Poller
	metrics *metrics.Metrics
	health  *ops.Health
	ops     *ops.Service
}

// NewApp loads configuration and secrets and wires every component.
// Missing secrets fail with a configuration_missing error before any
// network activity.
func NewApp(opts Options) (*App, error) {
	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	sec, err := config.LoadSecrets(opts.EnvFiles...)
	if err != nil {
		return nil, err
	}
	if !config.CheckTokens(sec.PracticumToken, sec.BotToken, sec.ChatID) {
		return nil, homework.ConfigurationMissing(sec.Missing()...)
	}
	settings, err := config.BuildSettings(cfg, sec, time.Now())
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	tgCfg, err := mapTelegramConfig(cfg, settings.BotToken)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(tgCfg, bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New applies immediately; enabling the Telegram sink before the
	// target is set would warn about a missing group_log.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	groupLog, _ := groupLogTarget(cfg)
	logSvc.SetTelegramTarget(groupLog, cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("journal enabled", logx.String("driver", sc.Driver))
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, kit.ChatTarget{ChatID: settings.ChatID},
		log.With(logx.String("comp", "notifier")), bus)

	client := homework.NewClient(homework.ClientConfig{
		Endpoint: settings.Endpoint,
		Token:    settings.PracticumToken,
		Timeout:  settings.RequestTimeout,
	}, opts.HTTPClient, log.With(logx.String("comp", "practicum")))

	p, err := poller.New(poller.Config{
		RetryPeriod: settings.RetryPeriod,
		FromDate:    settings.FromDate,
	}, client, notif, log.With(logx.String("comp", "poller")), bus,
		poller.WithHeartbeat(func() { _, _ = systemd.Watchdog() }),
	)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:     cfgm,
		settings: settings,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		notif:    notif,
		poller:   p,
		metrics:  metrics.New(bus),
		// A cycle takes at most one request timeout plus a send; allow two periods.
		health: ops.NewHealth(2*settings.RetryPeriod + settings.RequestTimeout),
	}
	deps := ops.Deps{
		Health:        a.health,
		Metrics:       a.metrics.Handler(),
		Notifications: notif.Snapshot,
		Journal:       store,
		Tasks: func() any {
			if a.sup == nil {
				return nil
			}
			return a.sup.Snapshot()
		},
	}
	a.ops = ops.New(mapOpsConfig(cfg), deps, log)
	return a, nil
}

func (a *App) Settings() config.Settings { return a.settings }

// Done is closed when the app supervisor context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateConfig(cfg) })

	// Subscribe before the poller starts so the first cycle is observed.
	a.consume("metrics", 64, a.metrics.Run)
	a.consume("health", 16, a.health.Run)
	if a.store != nil {
		a.consume("journal", 64, func(c context.Context, events <-chan eventbus.Event) error {
			return runJournal(c, a.store, events, a.log.With(logx.String("comp", "journal")))
		})
	}

	sub := a.cfgm.Subscribe(4)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)

	if err := a.ops.Start(a.sup.Context()); err != nil {
		// ops is optional; never keep the bot from polling.
		a.log.Error("ops endpoint not started", logx.Err(err))
	}

	a.sup.Go("poller", a.poller.Run)

	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify READY failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify READY sent")
	}
	if wd := systemd.WatchdogInterval(); wd > 0 && wd < a.settings.RetryPeriod {
		a.log.Warn("systemd WatchdogSec is shorter than the retry period; the unit will be restarted between cycles",
			logx.Duration("watchdog", wd),
			logx.Duration("retry_period", a.settings.RetryPeriod),
		)
	}

	a.log.Info("app started",
		logx.Int64("chat_id", a.settings.ChatID),
		logx.Duration("retry_period", a.settings.RetryPeriod),
		logx.Bool("journal", a.store != nil),
	)
	return nil
}

// consume runs fn on a dedicated bus subscription under the supervisor.
func (a *App) consume(name string, buffer int, fn func(context.Context, <-chan eventbus.Event) error) {
	events, unsub := a.bus.Subscribe(buffer)
	a.sup.Go(name, func(c context.Context) error {
		defer unsub()
		return fn(c, events)
	})
}

// reloadLoop applies the logging section live. Everything else needs a restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			changed := changedSections(last, next)
			last = next
			if len(changed) == 0 {
				a.log.Debug("config reloaded (no changes)")
				continue
			}

			groupLog, _ := groupLogTarget(next)
			a.logs.SetTelegramTarget(groupLog, next.Logging.Telegram.ThreadID)
			a.logs.Apply(mapLoggingConfig(next))

			var restart []string
			for _, s := range changed {
				if s != "logging" && s != "telegram.group_log" {
					restart = append(restart, s)
				}
			}
			if len(restart) > 0 {
				a.log.Warn("config sections changed; restart required for them to take effect",
					logx.String("sections", strings.Join(restart, ",")))
			}
			a.log.Info("config reloaded", logx.String("changed", strings.Join(changed, ",")))
		}
	}
}

func changedSections(a, b *config.Config) []string {
	if a == nil {
		a = &config.Config{}
	}
	if b == nil {
		b = &config.Config{}
	}
	var out []string
	add := func(name string, x, y any) {
		if !reflect.DeepEqual(x, y) {
			out = append(out, name)
		}
	}
	add("practicum", a.Practicum, b.Practicum)
	add("logging", a.Logging, b.Logging)
	add("telegram.group_log", a.Telegram.GroupLog, b.Telegram.GroupLog)
	ta, tb := a.Telegram, b.Telegram
	ta.GroupLog, tb.GroupLog = "", ""
	add("telegram", ta, tb)
	add("notifier", a.Notifier, b.Notifier)
	add("storage", a.Storage, b.Storage)
	add("ops", a.Ops, b.Ops)
	return out
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	// Cancel first so the poller unwinds out of its sleep immediately.
	a.sup.Cancel()

	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	if n := eventbus.Dropped(a.bus); n > 0 {
		a.log.Debug("event bus dropped events", logx.Uint64("dropped", n))
	}
	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max and the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
