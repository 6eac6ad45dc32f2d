package availability

import (
	"sort"
)

// Snapshot is the complete result of one adapter run: date → room → slots.
// A snapshot replaces, never merges with, the source's previous one.
type Snapshot struct {
	Dates map[DateKey]map[Room][]TimeSlot `json:"dates"`
	// Fallback marks snapshots produced by a secondary extraction strategy.
	Fallback bool   `json:"fallback,omitempty"`
	Strategy string `json:"strategy,omitempty"`
}

// NewSnapshot returns a snapshot with every date in window present and no rooms.
func NewSnapshot(window []DateKey) Snapshot {
	s := Snapshot{Dates: make(map[DateKey]map[Room][]TimeSlot, len(window))}
	for _, d := range window {
		s.Dates[d] = map[Room][]TimeSlot{}
	}
	return s
}

func (s *Snapshot) day(date DateKey) map[Room][]TimeSlot {
	if s.Dates == nil {
		s.Dates = map[DateKey]map[Room][]TimeSlot{}
	}
	rooms, ok := s.Dates[date]
	if !ok {
		rooms = map[Room][]TimeSlot{}
		s.Dates[date] = rooms
	}
	return rooms
}

// AddRoom records room on date with an explicit empty slot list if absent.
func (s *Snapshot) AddRoom(date DateKey, room Room) {
	rooms := s.day(date)
	if _, ok := rooms[room]; !ok {
		rooms[room] = []TimeSlot{}
	}
}

// AddSlot appends slot to room on date unless it is already present.
func (s *Snapshot) AddSlot(date DateKey, room Room, slot TimeSlot) {
	rooms := s.day(date)
	for _, existing := range rooms[room] {
		if existing == slot {
			return
		}
	}
	rooms[room] = append(rooms[room], slot)
}

// SetSlots replaces room's slots on date, dropping duplicates.
func (s *Snapshot) SetSlots(date DateKey, room Room, slots []TimeSlot) {
	rooms := s.day(date)
	rooms[room] = dedup(slots)
}

// Rooms returns the union of rooms across all dates, sorted.
func (s Snapshot) Rooms() []Room {
	seen := map[Room]struct{}{}
	for _, rooms := range s.Dates {
		for room := range rooms {
			seen[room] = struct{}{}
		}
	}
	out := make([]Room, 0, len(seen))
	for room := range seen {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SlotCount totals slots across all dates and rooms.
func (s Snapshot) SlotCount() int {
	total := 0
	for _, rooms := range s.Dates {
		for _, slots := range rooms {
			total += len(slots)
		}
	}
	return total
}

// Empty reports whether the snapshot advertises no rooms at all.
func (s Snapshot) Empty() bool {
	for _, rooms := range s.Dates {
		if len(rooms) > 0 {
			return false
		}
	}
	return true
}

// DateKeys returns the snapshot's dates, sorted.
func (s Snapshot) DateKeys() []DateKey {
	out := make([]DateKey, 0, len(s.Dates))
	for d := range s.Dates {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Normalize makes the snapshot well formed: every window date is present, the
// room set is identical on every date, slots are de-duplicated, and slots are
// ordered by less when it is non-nil.
func (s *Snapshot) Normalize(window []DateKey, less func(a, b TimeSlot) bool) {
	for _, d := range window {
		s.day(d)
	}
	rooms := s.Rooms()
	for date, byRoom := range s.Dates {
		for _, room := range rooms {
			slots := dedup(byRoom[room])
			if less != nil {
				sort.SliceStable(slots, func(i, j int) bool { return less(slots[i], slots[j]) })
			}
			byRoom[room] = slots
		}
		s.Dates[date] = byRoom
	}
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Fallback: s.Fallback, Strategy: s.Strategy}
	if s.Dates == nil {
		return out
	}
	out.Dates = make(map[DateKey]map[Room][]TimeSlot, len(s.Dates))
	for date, rooms := range s.Dates {
		cp := make(map[Room][]TimeSlot, len(rooms))
		for room, slots := range rooms {
			cp[room] = append([]TimeSlot{}, slots...)
		}
		out.Dates[date] = cp
	}
	return out
}

// ForDate returns the rooms for date sorted by room label, and whether the date is present.
func (s Snapshot) ForDate(date DateKey) ([]RoomSlots, bool) {
	rooms, ok := s.Dates[date]
	if !ok {
		return nil, false
	}
	out := make([]RoomSlots, 0, len(rooms))
	for room, slots := range rooms {
		out = append(out, RoomSlots{Room: room, Slots: append([]TimeSlot{}, slots...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out, true
}

func dedup(slots []TimeSlot) []TimeSlot {
	out := make([]TimeSlot, 0, len(slots))
	seen := make(map[TimeSlot]struct{}, len(slots))
	for _, slot := range slots {
		if _, ok := seen[slot]; ok {
			continue
		}
		seen[slot] = struct{}{}
		out = append(out, slot)
	}
	return out
}
