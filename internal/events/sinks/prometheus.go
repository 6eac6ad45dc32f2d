package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/private-sauna-availability/internal/events"
)

// PrometheusSink owns the run and per-source outcome collectors.
type PrometheusSink struct {
	runsStarted    *prometheus.CounterVec
	runsCompleted  *prometheus.CounterVec
	runsRunning    prometheus.Gauge
	runDuration    *prometheus.HistogramVec
	sourceOutcomes *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec
	fallbacks      *prometheus.CounterVec

	running *runSet
}

// NewPrometheusSink registers the collectors on reg, or the default registerer when nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sauna_runs_started_total",
			Help: "Orchestrated runs started, labeled by trigger.",
		}, []string{"trigger"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sauna_runs_completed_total",
			Help: "Orchestrated runs completed, labeled by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sauna_runs_running",
			Help: "Runs currently executing.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sauna_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 900},
		}, []string{"result"}),
		sourceOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sauna_source_outcomes_total",
			Help: "Adapter run outcomes, labeled by source and outcome.",
		}, []string{"source", "outcome"}),
		sourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sauna_source_duration_seconds",
			Help:    "Adapter run duration, labeled by source.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 180, 300},
		}, []string{"source"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sauna_source_fallbacks_total",
			Help: "Snapshots produced by a fallback extraction strategy, labeled by source.",
		}, []string{"source"}),
		running: &runSet{ids: map[[16]byte]struct{}{}},
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted, s.runsCompleted, s.runsRunning, s.runDuration,
		s.sourceOutcomes, s.sourceDuration, s.fallbacks,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register event collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case events.StageRunStart:
			s.runsStarted.WithLabelValues(evt.Trigger).Inc()
			if s.running.add(evt.RunID) {
				s.runsRunning.Inc()
			}
		case events.StageRunDone:
			s.finishRun(evt, "success")
		case events.StageRunError:
			s.finishRun(evt, "error")
		case events.StageSourceDone:
			s.sourceOutcomes.WithLabelValues(evt.Source, evt.Outcome).Inc()
			if evt.Dur > 0 {
				s.sourceDuration.WithLabelValues(evt.Source).Observe(evt.Dur.Seconds())
			}
			if evt.Fallback {
				s.fallbacks.WithLabelValues(evt.Source).Inc()
			}
		}
	}
	return nil
}

func (s *PrometheusSink) finishRun(evt events.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.running.remove(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close is a no-op.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runSet struct {
	mu  sync.Mutex
	ids map[[16]byte]struct{}
}

func (r *runSet) add(id [16]byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

func (r *runSet) remove(id [16]byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; !ok {
		return false
	}
	delete(r.ids, id)
	return true
}
