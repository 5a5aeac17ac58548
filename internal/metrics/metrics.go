package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "interview",
		Name:      "sessions_started_total",
		Help:      "Interview sessions started.",
	})
	sessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interview",
		Name:      "sessions_ended_total",
		Help:      "Interview sessions removed from the registry, by reason.",
	}, []string{"reason"})
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "interview",
		Name:      "active_sessions",
		Help:      "Sessions currently held in the registry.",
	})
	questionsAsked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interview",
		Name:      "questions_asked_total",
		Help:      "Questions appended to sessions, by kind.",
	}, []string{"kind"})
	interventions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interview",
		Name:      "interventions_total",
		Help:      "Silence interventions emitted, by type.",
	}, []string{"type"})
	deflections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interview",
		Name:      "deflections_total",
		Help:      "Integrity deflections recorded, by type.",
	}, []string{"type"})
	providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interview",
		Name:      "provider_calls_total",
		Help:      "Model provider calls, by operation, model and outcome.",
	}, []string{"op", "model", "outcome"})
	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "interview",
		Name:      "provider_call_seconds",
		Help:      "Model provider call latency.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
	}, []string{"op"})
	tokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interview",
		Name:      "tokens_total",
		Help:      "Tokens consumed, by model and direction.",
	}, []string{"model", "direction"})
)

func SessionStarted() {
	sessionsStarted.Inc()
	activeSessions.Inc()
}

func SessionEnded(reason string) {
	sessionsEnded.WithLabelValues(reason).Inc()
	activeSessions.Dec()
}

func QuestionAsked(kind string) {
	questionsAsked.WithLabelValues(kind).Inc()
}

func Intervention(kind string) {
	interventions.WithLabelValues(kind).Inc()
}

func Deflection(kind string) {
	deflections.WithLabelValues(kind).Inc()
}

func ProviderCall(op, model, outcome string, took time.Duration) {
	providerCalls.WithLabelValues(op, model, outcome).Inc()
	providerLatency.WithLabelValues(op).Observe(took.Seconds())
}

func Tokens(model string, input, output int64) {
	tokens.WithLabelValues(model, "input").Add(float64(input))
	tokens.WithLabelValues(model, "output").Add(float64(output))
}
