package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeHost(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://Select-Type.com/rsv/?id=1", "select-type.com"},
		{"no scheme", "reserva.be/saunayogan", "reserva.be"},
		{"host with port", "localhost:8191", "localhost"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeHost(tc.input); got != tc.expected {
				t.Errorf("SanitizeHost(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestSourceGauges(t *testing.T) {
	SetSourceSlots("metrics-test", 12)
	if got := testutil.ToFloat64(sourceSlots.WithLabelValues("metrics-test")); got != 12 {
		t.Errorf("expected 12 slots, got %f", got)
	}

	SetConsecutiveFailures("metrics-test", 3)
	if got := testutil.ToFloat64(sourceConsecutiveFailures.WithLabelValues("metrics-test")); got != 3 {
		t.Errorf("expected 3 failures, got %f", got)
	}
}

func TestObserveNavigation(t *testing.T) {
	ObserveNavigation("https://nav-test.example/x", "static", "ok", 512)
	if got := testutil.ToFloat64(navigationBytesTotal.WithLabelValues("nav-test.example")); got != 512 {
		t.Errorf("expected 512 bytes, got %f", got)
	}
}

func TestObserveRateLimitDelay(t *testing.T) {
	ObserveRateLimitDelay("delay-test.example", 250*time.Millisecond)
	if got := testutil.CollectAndCount(rateLimitDelaysSeconds); got == 0 {
		t.Error("expected a rate limit histogram series")
	}
}

func TestObserveNotification(t *testing.T) {
	before := testutil.ToFloat64(notificationsTotal.WithLabelValues("recovery", "sent"))
	ObserveNotification("recovery", "sent")
	if got := testutil.ToFloat64(notificationsTotal.WithLabelValues("recovery", "sent")) - before; got != 1 {
		t.Errorf("expected one notification, got %f", got)
	}
}

func FuzzSanitizeHost(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://reserva.be", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeHost(orig) == "" {
			t.Errorf("SanitizeHost(%q) returned an empty string", orig)
		}
	})
}
