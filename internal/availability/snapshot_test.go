package availability

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotNormalizeMakesRoomSetDateInvariant(t *testing.T) {
	t.Parallel()

	window := []DateKey{"2025-06-01", "2025-06-02", "2025-06-03"}
	s := NewSnapshot(window[:1])
	s.AddSlot("2025-06-01", "X", "09:00〜10:30")
	s.AddSlot("2025-06-02", "Y", "13:00〜14:30")

	s.Normalize(window, Lexical)

	require.Len(t, s.Dates, 3)
	want := []Room{"X", "Y"}
	for _, d := range window {
		rooms, ok := s.ForDate(d)
		require.True(t, ok, d)
		got := make([]Room, 0, len(rooms))
		for _, r := range rooms {
			got = append(got, r.Room)
			require.NotNil(t, r.Slots)
		}
		require.Equal(t, want, got, d)
	}
	require.Empty(t, s.Dates["2025-06-03"]["X"])
}

func TestSnapshotAddSlotDeduplicates(t *testing.T) {
	t.Parallel()

	s := NewSnapshot(nil)
	s.AddSlot("2025-06-01", "X", "09:00〜10:30")
	s.AddSlot("2025-06-01", "X", "09:00〜10:30")
	s.SetSlots("2025-06-02", "X", []TimeSlot{"a", "b", "a"})

	require.Equal(t, []TimeSlot{"09:00〜10:30"}, s.Dates["2025-06-01"]["X"])
	require.Equal(t, []TimeSlot{"a", "b"}, s.Dates["2025-06-02"]["X"])
	require.Equal(t, 3, s.SlotCount())
}

func TestSnapshotEmpty(t *testing.T) {
	t.Parallel()

	s := NewSnapshot([]DateKey{"2025-06-01"})
	require.True(t, s.Empty())
	s.AddRoom("2025-06-01", "X")
	require.False(t, s.Empty())
	require.Zero(t, s.SlotCount())
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	t.Parallel()

	s := NewSnapshot(nil)
	s.AddSlot("2025-06-01", "X", "a")
	s.Fallback = true
	cp := s.Clone()
	cp.AddSlot("2025-06-01", "X", "b")
	cp.Dates["2025-06-01"]["X"][0] = "changed"

	require.Equal(t, []TimeSlot{"a"}, s.Dates["2025-06-01"]["X"])
	require.True(t, cp.Fallback)
}

func TestSnapshotForDateUnknown(t *testing.T) {
	t.Parallel()

	s := NewSnapshot([]DateKey{"2025-06-01"})
	rooms, ok := s.ForDate("1999-01-01")
	require.False(t, ok)
	require.Nil(t, rooms)
}
