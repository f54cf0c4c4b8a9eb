package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/trivia/internal/errors"
)

const namespace = "trivia"

var (
	AnswersRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_recorded_total",
		Help:      "Answers stored, by result.",
	}, []string{"result"})

	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Sessions created.",
	})

	SessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_completed_total",
		Help:      "Sessions finalized.",
	})

	LeaderboardSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leaderboard_submissions_total",
		Help:      "Leaderboard submissions, by outcome.",
	}, []string{"outcome"})

	AuditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_failures_total",
		Help:      "Audit entries the sink rejected.",
	})

	txDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tx_duration_seconds",
		Help:      "Duration of store transactions, by operation and status code.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"op", "code"})
)

// ObserveTx records how long the transaction op took since start.
func ObserveTx(op string, start time.Time, err error) {
	code := "OK"
	if err != nil {
		code = errors.Convert(err).Code.String()
	}

	txDuration.WithLabelValues(op, code).Observe(time.Since(start).Seconds())
}
