// Package metrics exposes Prometheus collectors for the availability service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sourceSlots = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sauna_source_available_slots",
			Help: "Available slots in the latest stored snapshot, labeled by source.",
		},
		[]string{"source"},
	)

	sourceConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sauna_source_consecutive_failures",
			Help: "Consecutive adapter failures, labeled by source.",
		},
		[]string{"source"},
	)

	navigationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sauna_navigations_total",
			Help: "Page navigations, labeled by host, mode and status.",
		},
		[]string{"host", "mode", "status"},
	)

	navigationBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sauna_navigation_bytes_total",
			Help: "Bytes of HTML read, labeled by host.",
		},
		[]string{"host"},
	)

	headlessPromotionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sauna_headless_promotions_total",
			Help: "Static pages promoted to the headless browser, labeled by host.",
		},
		[]string{"host"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sauna_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	challengeSolvesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sauna_challenge_solves_total",
			Help: "Challenge solver calls, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sauna_notifications_total",
			Help: "Operator notifications, labeled by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetSourceSlots records the slot count of the latest stored snapshot.
func SetSourceSlots(source string, slots int) {
	sourceSlots.WithLabelValues(source).Set(float64(slots))
}

// SetConsecutiveFailures mirrors the health tracker counter.
func SetConsecutiveFailures(source string, failures int) {
	sourceConsecutiveFailures.WithLabelValues(source).Set(float64(failures))
}

// ObserveNavigation records a page navigation and the bytes it returned.
func ObserveNavigation(rawURL, mode, status string, bytesRead int) {
	host := SanitizeHost(rawURL)
	navigationsTotal.WithLabelValues(host, mode, status).Inc()
	if bytesRead > 0 {
		navigationBytesTotal.WithLabelValues(host).Add(float64(bytesRead))
	}
}

// ObservePromotion records a static page handed over to the browser.
func ObservePromotion(rawURL string) {
	headlessPromotionsTotal.WithLabelValues(SanitizeHost(rawURL)).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveChallengeSolve records a solver call outcome.
func ObserveChallengeSolve(outcome string) {
	challengeSolvesTotal.WithLabelValues(outcome).Inc()
}

// ObserveNotification records a dispatched notification.
func ObserveNotification(kind, outcome string) {
	notificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
