// Package health tracks consecutive scrape outcomes per source and decides when
// a source is broken enough to alert on.
package health

import (
	"sort"
	"sync"
	"time"
)

// DefaultThreshold is the consecutive-failure count that triggers an alert.
const DefaultThreshold = 3

// Status classifies a source's health.
type Status string

// Health statuses.
const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusAlerting Status = "alerting"
)

// Transition is the notification-relevant result of recording an outcome.
type Transition int

// Transitions returned by Record*.
const (
	TransitionNone Transition = iota
	// TransitionAlert fires once when failures reach the threshold.
	TransitionAlert
	// TransitionRecovered fires once on the first success after an alert.
	TransitionRecovered
)

func (t Transition) String() string {
	switch t {
	case TransitionAlert:
		return "alert"
	case TransitionRecovered:
		return "recovered"
	default:
		return "none"
	}
}

// State is the per-source health record. At most one counter is nonzero.
type State struct {
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastError            string    `json:"last_error,omitempty"`
	Alerted              bool      `json:"alerted"`
	LastSuccessAt        time.Time `json:"last_success_at,omitempty"`
	LastFailureAt        time.Time `json:"last_failure_at,omitempty"`
}

// Status derives the health status from the counters.
func (s State) Status() Status {
	switch {
	case s.Alerted:
		return StatusAlerting
	case s.ConsecutiveFailures > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Tracker holds State for every source. It is safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	threshold int
	states    map[string]*State
	now       func() time.Time
}

// NewTracker builds a Tracker. A non-positive threshold uses DefaultThreshold.
func NewTracker(threshold int, now func() time.Time) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		threshold: threshold,
		states:    make(map[string]*State),
		now:       now,
	}
}

// Threshold returns the fixed alert threshold.
func (t *Tracker) Threshold() int {
	return t.threshold
}

func (t *Tracker) state(key string) *State {
	st, ok := t.states[key]
	if !ok {
		st = &State{}
		t.states[key] = st
	}
	return st
}

// RecordSuccess resets the failure counter. It returns TransitionRecovered when
// the source was alerting.
func (t *Tracker) RecordSuccess(key string) Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(key)
	wasAlerted := st.Alerted
	st.ConsecutiveFailures = 0
	st.ConsecutiveSuccesses++
	st.Alerted = false
	st.LastSuccessAt = t.now()
	if wasAlerted {
		return TransitionRecovered
	}
	return TransitionNone
}

// RecordFailure increments the failure counter. It returns TransitionAlert only
// on the failure that first reaches the threshold within an incident.
func (t *Tracker) RecordFailure(key string, err error) Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(key)
	st.ConsecutiveSuccesses = 0
	st.ConsecutiveFailures++
	st.LastFailureAt = t.now()
	if err != nil {
		st.LastError = err.Error()
	}
	if !st.Alerted && st.ConsecutiveFailures >= t.threshold {
		st.Alerted = true
		return TransitionAlert
	}
	return TransitionNone
}

// State returns a copy of key's state and whether the source has run at least once.
func (t *Tracker) State(key string) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.states[key]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Snapshot copies every tracked state.
func (t *Tracker) Snapshot() map[string]State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]State, len(t.states))
	for key, st := range t.states {
		out[key] = *st
	}
	return out
}

// Unhealthy lists the keys whose status is not healthy, sorted.
func (t *Tracker) Unhealthy() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	for key, st := range t.states {
		if st.Status() != StatusHealthy {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
