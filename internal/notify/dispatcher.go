package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/metrics"
)

const (
	defaultBaseURL = "https://api.chatwork.com"
	defaultTimeout = 10 * time.Second
	// errorBodyLimit caps how much of a failed response is kept for the log.
	errorBodyLimit = 512
)

// TransportFailure wraps any delivery error. It is never fatal.
type TransportFailure struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *TransportFailure) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("notify %s: status %d: %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("notify %s: %v", e.Kind, e.Err)
}

func (e *TransportFailure) Unwrap() error {
	return e.Err
}

// Config configures the Chatwork transport.
type Config struct {
	Enabled     bool
	APIToken    string
	RoomID      string
	BaseURL     string
	Timeout     time.Duration
	Location    *time.Location
	TitlePrefix string
	HTTPClient  *http.Client
}

// Dispatcher posts messages to one Chatwork room.
type Dispatcher struct {
	cfg       Config
	configErr error
	http      *http.Client
	logger    *zap.Logger
	now       func() time.Time
}

// New builds a Dispatcher. Missing credentials leave it enabled but inert.
func New(cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	d := &Dispatcher{cfg: cfg, http: httpClient, logger: logger.Named("notify"), now: time.Now}
	switch {
	case cfg.APIToken == "":
		d.configErr = &availability.ConfigurationError{Feature: "notifications", Reason: "api token is not set"}
	case cfg.RoomID == "":
		d.configErr = &availability.ConfigurationError{Feature: "notifications", Reason: "room id is not set"}
	}
	return d
}

// Active reports whether Send will attempt delivery.
func (d *Dispatcher) Active() bool {
	return d != nil && d.cfg.Enabled && d.configErr == nil
}

// Send delivers msg. A disabled or unconfigured dispatcher logs and returns nil.
// Delivery errors are logged, counted and returned as *TransportFailure for
// callers that report them; they must never abort the caller's work.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	if d == nil {
		return nil
	}
	if !d.cfg.Enabled {
		d.logger.Debug("notification disabled", zap.String("kind", string(msg.Kind)))
		metrics.ObserveNotification(string(msg.Kind), "disabled")
		return nil
	}
	if d.configErr != nil {
		d.logger.Warn("notification skipped", zap.String("kind", string(msg.Kind)), zap.Error(d.configErr))
		metrics.ObserveNotification(string(msg.Kind), "disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	text := Render(msg, d.cfg.TitlePrefix, d.now().In(d.cfg.Location))
	if err := d.post(ctx, msg.Kind, text); err != nil {
		d.logger.Error("notification failed", zap.String("kind", string(msg.Kind)), zap.Error(err))
		metrics.ObserveNotification(string(msg.Kind), "failed")
		return err
	}
	d.logger.Info("notification sent", zap.String("kind", string(msg.Kind)))
	metrics.ObserveNotification(string(msg.Kind), "sent")
	return nil
}

func (d *Dispatcher) post(ctx context.Context, kind Kind, text string) error {
	endpoint := fmt.Sprintf("%s/v2/rooms/%s/messages", d.cfg.BaseURL, neturl.PathEscape(d.cfg.RoomID))
	form := neturl.Values{"body": {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &TransportFailure{Kind: kind, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-ChatWorkToken", d.cfg.APIToken)

	resp, err := d.http.Do(req)
	if err != nil {
		return &TransportFailure{Kind: kind, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return &TransportFailure{Kind: kind, Status: resp.StatusCode, Err: fmt.Errorf("chatwork rejected message: %s", strings.TrimSpace(string(body)))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
