// Package dailycheck audits a running service once a day and reports
// problems to the operator channel.
package dailycheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/notify"
	"github.com/JakeFAU/private-sauna-availability/internal/orchestrator"
)

// ErrProblemsFound is returned by Run when at least one facility is in error.
var ErrProblemsFound = errors.New("daily check found errors")

// Result classifies one facility.
type Result string

// Facility results.
const (
	ResultOK      Result = "ok"
	ResultWarning Result = "warning"
	ResultError   Result = "error"
)

// Notifier delivers operator notifications.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) error
}

// Config locates the service under check.
type Config struct {
	BaseURL    string
	Location   *time.Location
	Timeout    time.Duration
	HTTPClient *http.Client
}

// FacilityReport is one facility's verdict.
type FacilityReport struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Rooms  int    `json:"rooms"`
	Slots  int    `json:"slots"`
	Result Result `json:"result"`
	Reason string `json:"reason,omitempty"`
}

// Report is the outcome of one check.
type Report struct {
	Date       string                `json:"date"`
	Facilities []FacilityReport      `json:"facilities"`
	Errors     []string              `json:"errors"`
	Warnings   []string              `json:"warnings"`
	Health     *notify.HealthSummary `json:"health,omitempty"`
}

// HasError reports whether anything was classified as an error.
func (r Report) HasError() bool {
	return len(r.Errors) > 0
}

// Checker fetches the service's availability and status endpoints.
type Checker struct {
	cfg      Config
	http     *http.Client
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// New builds a Checker. notifier may be nil to only report.
func New(cfg Config, notifier Notifier, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Checker{cfg: cfg, http: httpClient, notifier: notifier, logger: logger.Named("dailycheck"), now: time.Now}
}

// Classify judges one facility. A facility with no rooms or a recorded error
// is an error; one with rooms but no open slots is a warning.
func Classify(f orchestrator.Facility) FacilityReport {
	out := FacilityReport{Key: f.Key, Name: f.Name, Rooms: len(f.Rooms), Result: ResultOK}
	for _, r := range f.Rooms {
		out.Slots += len(r.Slots)
	}
	switch {
	case out.Rooms == 0:
		out.Result = ResultError
		out.Reason = "部屋データが0件"
	case f.Error != "":
		out.Result = ResultError
		out.Reason = f.Error
	case out.Slots == 0:
		out.Result = ResultWarning
		out.Reason = "空き枠が0件（予約で埋まっている可能性あり）"
	}
	return out
}

// Check audits today's availability in the configured timezone.
func (c *Checker) Check(ctx context.Context) Report {
	date := availability.NewDateKey(c.now().In(c.cfg.Location))
	report := Report{Date: string(date), Facilities: []FacilityReport{}}

	var status *orchestrator.Status
	var st orchestrator.Status
	if err := c.getJSON(ctx, "/api/status", nil, &st); err != nil {
		c.logger.Warn("status fetch failed", zap.Error(err))
	} else {
		status = &st
		summary := orchestrator.SummarizeHealth(st)
		report.Health = &summary
	}

	var resp struct {
		Date       string                  `json:"date"`
		Facilities []orchestrator.Facility `json:"facilities"`
	}
	if err := c.getJSON(ctx, "/api/availability", url.Values{"date": {string(date)}}, &resp); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("API取得エラー: %v", err))
		return report
	}

	seen := make(map[string]bool, len(resp.Facilities))
	for _, f := range resp.Facilities {
		seen[f.Key] = true
		fr := Classify(f)
		report.Facilities = append(report.Facilities, fr)
		switch fr.Result {
		case ResultError:
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", fr.Name, fr.Reason))
		case ResultWarning:
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %s", fr.Name, fr.Reason))
		}
		c.logger.Info("facility checked",
			zap.String("source", fr.Key),
			zap.String("result", string(fr.Result)),
			zap.Int("rooms", fr.Rooms),
			zap.Int("slots", fr.Slots),
		)
	}
	// Sources that never produced data for today are absent from availability.
	if status != nil {
		for _, s := range status.Sources {
			if seen[s.Key] {
				continue
			}
			reason := "本日のデータなし"
			if s.LastError != "" {
				reason = s.LastError
			}
			report.Facilities = append(report.Facilities, FacilityReport{Key: s.Key, Name: s.Name, Result: ResultError, Reason: reason})
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", s.Name, reason))
		}
	}
	return report
}

// Run checks and notifies. It returns ErrProblemsFound when the report has errors.
func (c *Checker) Run(ctx context.Context) (Report, error) {
	report := c.Check(ctx)
	c.logger.Info("daily check finished",
		zap.String("date", report.Date),
		zap.Int("facilities", len(report.Facilities)),
		zap.Int("errors", len(report.Errors)),
		zap.Int("warnings", len(report.Warnings)),
	)
	if c.notifier != nil {
		if report.HasError() {
			c.send(ctx, notify.DailyCheckError(report.Date, report.Errors, report.Warnings))
		}
		if report.Health != nil {
			if msg, ok := notify.DailySummary(*report.Health); ok {
				c.send(ctx, msg)
			}
		}
	}
	if report.HasError() {
		return report, ErrProblemsFound
	}
	return report, nil
}

func (c *Checker) send(ctx context.Context, msg notify.Message) {
	if err := c.notifier.Send(ctx, msg); err != nil {
		c.logger.Warn("notification failed", zap.String("kind", string(msg.Kind)), zap.Error(err))
	}
}

func (c *Checker) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
