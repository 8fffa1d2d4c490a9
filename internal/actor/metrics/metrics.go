// Package metrics provides the Prometheus-backed actor.MetricsRecorder. It
// lives outside internal/actor so the core package never imports a
// vendor-specific metrics client directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements actor.MetricsRecorder against a Prometheus registry.
type Recorder struct {
	raiseDuration   *prometheus.HistogramVec
	archivePromoted prometheus.Counter
	eventsCleared   prometheus.Counter
	busFallback     prometheus.Counter
}

// New registers the actor core's metrics against reg and returns a Recorder.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		raiseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "actorsourcing",
			Subsystem: "actor",
			Name:      "raise_duration_seconds",
			Help:      "Duration of Actor.Raise calls by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		archivePromoted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "actorsourcing",
			Subsystem: "actor",
			Name:      "archive_promoted_total",
			Help:      "Number of pending archives promoted to the brief list.",
		}),
		eventsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "actorsourcing",
			Subsystem: "actor",
			Name:      "events_cleared_total",
			Help:      "Number of events pruned from the live log after archive clearing.",
		}),
		busFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "actorsourcing",
			Subsystem: "actor",
			Name:      "bus_fallback_total",
			Help:      "Number of times event publication fell back from its primary path.",
		}),
	}

	reg.MustRegister(r.raiseDuration, r.archivePromoted, r.eventsCleared, r.busFallback)
	return r
}

func (r *Recorder) ObserveRaise(outcome string, durationSeconds float64) {
	r.raiseDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

func (r *Recorder) IncArchivePromoted() {
	r.archivePromoted.Inc()
}

func (r *Recorder) IncEventsCleared(count int) {
	r.eventsCleared.Add(float64(count))
}

func (r *Recorder) IncBusFallback() {
	r.busFallback.Inc()
}
