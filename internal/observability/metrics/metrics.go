package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"homeworkbot/internal/eventbus"
	"homeworkbot/internal/notifier"
	"homeworkbot/internal/poller"
)

const namespace = "homeworkbot"

// Metrics owns a private registry fed from bus events.
type Metrics struct {
	reg *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleErrors   *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	lastCycle     prometheus.Gauge
	notifications *prometheus.CounterVec
	busDropped    prometheus.GaugeFunc
}

func New(bus eventbus.Bus) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Completed polling cycles by outcome.",
		}, []string{"outcome"}),
		cycleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycle_errors_total",
			Help:      "Failed polling cycles by error kind.",
		}, []string{"kind"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Wall time of one polling cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_last_cycle_timestamp_seconds",
			Help:      "Unix time the last cycle started.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Telegram deliveries by result.",
		}, []string{"result"}),
	}
	m.busDropped = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "eventbus_dropped_events",
		Help:      "Events dropped because a subscriber was slow.",
	}, func() float64 { return float64(eventbus.Dropped(bus)) })

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cycles, m.cycleErrors, m.cycleDuration, m.lastCycle, m.notifications, m.busDropped,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Observe updates collectors from a single event. Unknown events are ignored.
func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeCycleDone:
		res, ok := e.Data.(poller.CycleResult)
		if !ok {
			return
		}
		m.cycles.WithLabelValues(string(res.Outcome)).Inc()
		if res.Failed() {
			m.cycleErrors.WithLabelValues(kindLabel(res.ErrKind)).Inc()
		}
		m.cycleDuration.Observe(res.Took.Seconds())
		if !res.Started.IsZero() {
			m.lastCycle.Set(float64(res.Started.Unix()))
		}
	case eventbus.TypeNotificationSent:
		m.notifications.WithLabelValues("sent").Inc()
	case eventbus.TypeNotificationFailed:
		if _, ok := e.Data.(notifier.NotificationEvent); ok {
			m.notifications.WithLabelValues("failed").Inc()
		}
	}
}

// Run consumes events until ctx is done or the channel closes.
func (m *Metrics) Run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}

func kindLabel(k string) string {
	if k == "" {
		return "unknown"
	}
	return k
}
