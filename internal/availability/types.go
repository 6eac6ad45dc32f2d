package availability

import "time"

// Source identifies one booking site. Sources are defined at startup and never change during a run.
type Source struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Room is an opaque display label. It may already encode price, duration and capacity.
type Room string

// TimeSlot is an opaque label for a bookable interval, compared by exact string.
type TimeSlot string

// SourceView pairs a source with its latest stored snapshot.
type SourceView struct {
	Source      Source    `json:"source"`
	Snapshot    Snapshot  `json:"snapshot"`
	UpdatedAt   time.Time `json:"updated_at"`
	Fingerprint string    `json:"fingerprint"`
}

// AggregateView is the merged read-only view across all sources, in registry order.
type AggregateView struct {
	Sources []SourceView `json:"sources"`
}

// Lookup returns the view for key, if present.
func (v AggregateView) Lookup(key string) (SourceView, bool) {
	for _, sv := range v.Sources {
		if sv.Source.Key == key {
			return sv, true
		}
	}
	return SourceView{}, false
}

// RoomSlots is one room's availability on a single date.
type RoomSlots struct {
	Room  Room       `json:"name"`
	Slots []TimeSlot `json:"availableSlots"`
}

// DateView is one source's availability restricted to a single date.
type DateView struct {
	Source    Source      `json:"source"`
	UpdatedAt time.Time   `json:"updated_at"`
	Rooms     []RoomSlots `json:"rooms"`
}
