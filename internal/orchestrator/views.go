package orchestrator

import (
	"time"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/health"
	"github.com/JakeFAU/private-sauna-availability/internal/notify"
)

// SourceStatus is one source's health joined with its store entry.
type SourceStatus struct {
	Key                 string        `json:"key"`
	Name                string        `json:"name"`
	Status              health.Status `json:"status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastError           string        `json:"last_error,omitempty"`
	LastSuccessAt       *time.Time    `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time    `json:"last_failure_at,omitempty"`
	UpdatedAt           *time.Time    `json:"updated_at,omitempty"`
	Slots               int           `json:"slots"`
}

// Status is the service-wide view served to operators.
type Status struct {
	Running bool           `json:"running"`
	LastRun *RunSummary    `json:"last_run,omitempty"`
	Sources []SourceStatus `json:"sources"`
}

// Facility is one source's rooms on a single date.
type Facility struct {
	Key       string                   `json:"key"`
	Name      string                   `json:"name"`
	UpdatedAt time.Time                `json:"updated_at"`
	Error     string                   `json:"error,omitempty"`
	Rooms     []availability.RoomSlots `json:"rooms"`
}

// Status reports every source, including ones that have never succeeded.
func (o *Orchestrator) Status() Status {
	o.commitMu.RLock()
	out := Status{Sources: make([]SourceStatus, 0, len(o.adapters))}
	for _, a := range o.adapters {
		src := a.Source()
		st := SourceStatus{Key: src.Key, Name: src.Name, Status: health.StatusHealthy}
		if state, ok := o.health.State(src.Key); ok {
			st.Status = state.Status()
			st.ConsecutiveFailures = state.ConsecutiveFailures
			st.LastError = state.LastError
			st.LastSuccessAt = timePtr(state.LastSuccessAt)
			st.LastFailureAt = timePtr(state.LastFailureAt)
		}
		if view, ok := o.store.Get(src.Key); ok {
			st.UpdatedAt = timePtr(view.UpdatedAt)
			st.Slots = view.Snapshot.SlotCount()
		}
		out.Sources = append(out.Sources, st)
	}
	o.commitMu.RUnlock()

	out.Running = o.Running()
	if last, ok := o.LastRun(); ok {
		out.LastRun = &last
	}
	return out
}

// Availability returns the stored rooms for date. Sources whose last run
// failed keep their cached rooms and carry the failure in Error.
func (o *Orchestrator) Availability(date availability.DateKey) []Facility {
	o.commitMu.RLock()
	defer o.commitMu.RUnlock()
	views := o.store.ForDate(date)
	out := make([]Facility, 0, len(views))
	for _, v := range views {
		f := Facility{
			Key:       v.Source.Key,
			Name:      v.Source.Name,
			UpdatedAt: v.UpdatedAt,
			Rooms:     v.Rooms,
		}
		if state, ok := o.health.State(v.Source.Key); ok && state.ConsecutiveFailures > 0 {
			f.Error = state.LastError
		}
		out = append(out, f)
	}
	return out
}

// HealthSummary condenses Status for the daily summary notification.
func (o *Orchestrator) HealthSummary() notify.HealthSummary {
	return SummarizeHealth(o.Status())
}

// SummarizeHealth counts healthy sources in status. Clients decoding /api/status use it too.
func SummarizeHealth(status Status) notify.HealthSummary {
	out := notify.HealthSummary{TotalSites: len(status.Sources)}
	for _, s := range status.Sources {
		if s.Status == health.StatusHealthy {
			out.HealthySites++
			continue
		}
		out.Unhealthy = append(out.Unhealthy, notify.UnhealthySite{Name: s.Name, ConsecutiveFailures: s.ConsecutiveFailures})
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
