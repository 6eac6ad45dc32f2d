package availability

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSlot(t *testing.T) {
	t.Parallel()

	require.Equal(t, TimeSlot("10:00〜12:30"), NormalizeSlot(" 10:00～12:30 "))
	require.Equal(t, TimeSlot("10:00〜12:30"), NormalizeSlot("10:00~12:30"))
}

func TestSlotRangeWrapsMidnight(t *testing.T) {
	t.Parallel()

	got, err := SlotRange("09:00", 90*time.Minute)
	require.NoError(t, err)
	require.Equal(t, TimeSlot("09:00〜10:30"), got)

	got, err = SlotRange("23:30", 90*time.Minute)
	require.NoError(t, err)
	require.Equal(t, TimeSlot("23:30〜01:00"), got)

	_, err = SlotRange("noon", time.Hour)
	require.Error(t, err)
}

func TestByStartOrdersLateNightLast(t *testing.T) {
	t.Parallel()

	slots := []TimeSlot{"01:00〜08:30", "23:00〜00:30", "09:00〜10:30", "garbage", "13:00〜14:30"}
	sort.SliceStable(slots, func(i, j int) bool { return ByStart(7)(slots[i], slots[j]) })

	require.Equal(t, []TimeSlot{"09:00〜10:30", "13:00〜14:30", "23:00〜00:30", "01:00〜08:30", "garbage"}, slots)
}
