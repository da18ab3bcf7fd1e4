package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"guildhall/internal/game"
)

// Metrics counts game events on its own registry so tests and binaries never
// collide on the global default one.
type Metrics struct {
	registry *prometheus.Registry

	events         *prometheus.CounterVec
	questsResolved *prometheus.CounterVec
	goldRewarded   prometheus.Counter
	payments       *prometheus.CounterVec
	paymentGold    prometheus.Counter
	gameOvers      *prometheus.CounterVec
	sweeps         prometheus.Counter
	sweepSessions  prometheus.Counter
	sweepDuration  prometheus.Histogram
	httpRequests   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "guildhall_events_total",
			Help: "Game events published, by kind.",
		}, []string{"kind"}),
		questsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "guildhall_quests_resolved_total",
			Help: "Quests completed, by result.",
		}, []string{"result"}),
		goldRewarded: f.NewCounter(prometheus.CounterOpts{
			Name: "guildhall_quest_gold_rewarded_total",
			Help: "Gold paid out by successful quests.",
		}),
		payments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "guildhall_debt_payments_total",
			Help: "Debt payments, by kind (quarterly or manual).",
		}, []string{"kind"}),
		paymentGold: f.NewCounter(prometheus.CounterOpts{
			Name: "guildhall_debt_payment_gold_total",
			Help: "Gold applied to debt principal and interest.",
		}),
		gameOvers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "guildhall_game_over_total",
			Help: "Sessions that ended, by reason.",
		}, []string{"reason"}),
		sweeps: f.NewCounter(prometheus.CounterOpts{
			Name: "guildhall_worker_sweeps_total",
			Help: "Day-advance sweeps run by the worker.",
		}),
		sweepSessions: f.NewCounter(prometheus.CounterOpts{
			Name: "guildhall_worker_sessions_advanced_total",
			Help: "Sessions advanced by worker sweeps.",
		}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "guildhall_worker_sweep_seconds",
			Help:    "Duration of worker sweeps.",
			Buckets: prometheus.DefBuckets,
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "guildhall_http_requests_total",
			Help: "API requests, by route pattern and status class.",
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handle(_ string, e game.Event) {
	m.events.WithLabelValues(string(e.Kind())).Inc()
	switch ev := e.(type) {
	case game.QuestCompleted:
		if ev.Outcome.Success {
			m.questsResolved.WithLabelValues("success").Inc()
			m.goldRewarded.Add(float64(ev.Outcome.Gold))
		} else {
			m.questsResolved.WithLabelValues("failure").Inc()
		}
	case game.PaymentMade:
		kind := "quarterly"
		if ev.Payment.Manual {
			kind = "manual"
		}
		m.payments.WithLabelValues(kind).Inc()
		m.paymentGold.Add(float64(ev.Payment.Amount))
	case game.GameOver:
		m.gameOvers.WithLabelValues(ev.Reason).Inc()
	}
}

// ObserveSweep records one worker pass over the active sessions.
func (m *Metrics) ObserveSweep(advanced int, took time.Duration) {
	m.sweeps.Inc()
	m.sweepSessions.Add(float64(advanced))
	m.sweepDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveRequest(route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, fmt.Sprintf("%dxx", status/100)).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends the registry to a Pushgateway under job, for short-lived workers.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
