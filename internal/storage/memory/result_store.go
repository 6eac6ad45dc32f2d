package memory

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
)

// ResultStore holds the latest successful snapshot per source. Reads are
// point-in-time consistent and always return copies.
type ResultStore struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]availability.SourceView
	hasher  availability.Hasher
}

// NewResultStore constructs a ResultStore. Aggregates list sources in the order
// given here, followed by any other source in first-put order.
func NewResultStore(hasher availability.Hasher, sources ...availability.Source) *ResultStore {
	s := &ResultStore{
		entries: make(map[string]availability.SourceView),
		hasher:  hasher,
	}
	for _, src := range sources {
		s.order = append(s.order, src.Key)
	}
	return s
}

// Put replaces source's entry unconditionally. Call it only after a successful run.
func (s *ResultStore) Put(source availability.Source, snap availability.Snapshot, at time.Time) availability.SourceView {
	view := availability.SourceView{
		Source:      source,
		Snapshot:    snap.Clone(),
		UpdatedAt:   at.UTC(),
		Fingerprint: s.fingerprint(snap),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[source.Key]; !ok && !s.known(source.Key) {
		s.order = append(s.order, source.Key)
	}
	s.entries[source.Key] = view
	return copyView(view)
}

// Get returns a copy of key's entry.
func (s *ResultStore) Get(key string) (availability.SourceView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view, ok := s.entries[key]
	if !ok {
		return availability.SourceView{}, false
	}
	return copyView(view), true
}

// Aggregate returns every stored entry.
func (s *ResultStore) Aggregate() availability.AggregateView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := availability.AggregateView{Sources: make([]availability.SourceView, 0, len(s.entries))}
	for _, key := range s.order {
		if view, ok := s.entries[key]; ok {
			out.Sources = append(out.Sources, copyView(view))
		}
	}
	return out
}

// ForDate joins the aggregate to one date. Sources whose snapshot lacks the date are omitted.
func (s *ResultStore) ForDate(date availability.DateKey) []availability.DateView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]availability.DateView, 0, len(s.entries))
	for _, key := range s.order {
		view, ok := s.entries[key]
		if !ok {
			continue
		}
		rooms, ok := view.Snapshot.ForDate(date)
		if !ok {
			continue
		}
		out = append(out, availability.DateView{
			Source:    view.Source,
			UpdatedAt: view.UpdatedAt,
			Rooms:     rooms,
		})
	}
	return out
}

func (s *ResultStore) known(key string) bool {
	for _, k := range s.order {
		if k == key {
			return true
		}
	}
	return false
}

func (s *ResultStore) fingerprint(snap availability.Snapshot) string {
	if s.hasher == nil {
		return ""
	}
	// encoding/json sorts map keys, so equal snapshots hash equally.
	data, err := json.Marshal(snap)
	if err != nil {
		return ""
	}
	sum, err := s.hasher.Hash(data)
	if err != nil {
		return ""
	}
	return sum
}

func copyView(v availability.SourceView) availability.SourceView {
	v.Snapshot = v.Snapshot.Clone()
	return v
}
