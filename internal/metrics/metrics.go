// Package metrics holds the Prometheus collectors for session orchestration.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "brainstorm"

// Advance triggers.
const (
	TriggerSubmissions = "submissions"
	TriggerTimer       = "timer"
	TriggerManual      = "manual"
)

type Recorder struct {
	roundsAdvanced       *prometheus.CounterVec
	sessionsCompleted    prometheus.Counter
	ideasSubmitted       prometheus.Counter
	sweepDuration        prometheus.Histogram
	sweepErrors          prometheus.Counter
	notificationsDropped *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		roundsAdvanced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_advanced_total",
			Help:      "Rounds finished by an advance, by what triggered it.",
		}, []string{"trigger"}),
		sessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Sessions that reached COMPLETED.",
		}),
		ideasSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ideas_submitted_total",
			Help:      "Ideas accepted by the ledger.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one timeout sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_errors_total",
			Help:      "Per-session failures during timeout sweeps.",
		}),
		notificationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Events dropped because a subscriber or relay queue was full.",
		}, []string{"sink"}),
	}
	if reg != nil {
		reg.MustRegister(
			r.roundsAdvanced,
			r.sessionsCompleted,
			r.ideasSubmitted,
			r.sweepDuration,
			r.sweepErrors,
			r.notificationsDropped,
		)
	}
	return r
}

func (r *Recorder) RoundAdvanced(trigger string) {
	if r == nil {
		return
	}
	r.roundsAdvanced.WithLabelValues(trigger).Inc()
}

func (r *Recorder) SessionCompleted() {
	if r == nil {
		return
	}
	r.sessionsCompleted.Inc()
}

func (r *Recorder) IdeasSubmitted(n int) {
	if r == nil {
		return
	}
	r.ideasSubmitted.Add(float64(n))
}

func (r *Recorder) ObserveSweep(d time.Duration, failures int) {
	if r == nil {
		return
	}
	r.sweepDuration.Observe(d.Seconds())
	r.sweepErrors.Add(float64(failures))
}

func (r *Recorder) NotificationDropped(sink string) {
	if r == nil {
		return
	}
	r.notificationsDropped.WithLabelValues(sink).Inc()
}
