package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowStartsAtLocalDate(t *testing.T) {
	t.Parallel()

	tokyo := time.FixedZone("JST", 9*60*60)
	// 2025-05-31T20:00Z is already June 1st in Tokyo.
	now := time.Date(2025, 5, 31, 20, 0, 0, 0, time.UTC).In(tokyo)

	got := Window(now, 3)
	require.Equal(t, []DateKey{"2025-06-01", "2025-06-02", "2025-06-03"}, got)
	require.Len(t, Window(now, 0), DefaultHorizonDays)
}

func TestInferDateYearBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		month, day int
		now        time.Time
		want       DateKey
		wantErr    bool
	}{
		{name: "same year", month: 6, day: 2, now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), want: "2025-06-02"},
		{name: "january seen in december", month: 1, day: 3, now: time.Date(2025, 12, 30, 0, 0, 0, 0, time.UTC), want: "2026-01-03"},
		{name: "december seen in january", month: 12, day: 31, now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), want: "2025-12-31"},
		{name: "invalid day", month: 2, day: 30, now: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), wantErr: true},
		{name: "invalid month", month: 13, day: 1, now: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := InferDate(tt.month, tt.day, tt.now)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseDateKey(t *testing.T) {
	t.Parallel()

	d, err := ParseDateKey("2025-06-01")
	require.NoError(t, err)
	require.Equal(t, DateKey("2025-06-01"), d)

	_, err = ParseDateKey("06/01/2025")
	require.Error(t, err)
}
