// Package challenge talks to a FlareSolverr-compatible anti-bot challenge solver.
package challenge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/metrics"
)

// ErrSolverUnavailable means no solver is configured or it is not answering.
var ErrSolverUnavailable = errors.New("challenge solver unavailable")

const (
	probeTimeout = 5 * time.Second
	// requestSlack covers solver overhead on top of its own maxTimeout.
	requestSlack = 10 * time.Second
)

// Config locates the solver. URL is the v1 endpoint, e.g. http://flaresolverr:8191/v1.
type Config struct {
	URL        string
	HTTPClient *http.Client
}

// Solution is what a solved challenge leaves behind.
type Solution struct {
	URL       string
	Status    int
	Cookies   []availability.Cookie
	UserAgent string
	HTML      string
}

// Client calls the solver over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

// New builds a client. An empty URL yields a client that is never available.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.URL, "/"),
		http:     httpClient,
		logger:   logger.Named("challenge"),
	}
}

// Available reports whether the solver answers its health probe.
func (c *Client) Available(ctx context.Context) bool {
	if c == nil || c.endpoint == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL(), nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("solver probe failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close() //nolint:errcheck // read-only probe
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) healthURL() string {
	root := strings.TrimSuffix(c.endpoint, "/v1")
	return root + "/health"
}

type solveRequest struct {
	Cmd        string `json:"cmd"`
	URL        string `json:"url"`
	MaxTimeout int64  `json:"maxTimeout"`
}

type solveResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Solution struct {
		URL       string         `json:"url"`
		Status    int            `json:"status"`
		Cookies   []solverCookie `json:"cookies"`
		UserAgent string         `json:"userAgent"`
		Response  string         `json:"response"`
	} `json:"solution"`
}

type solverCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expiry   float64 `json:"expiry"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// Solve asks the solver to load url and clear any challenge within timeout.
func (c *Client) Solve(ctx context.Context, url string, timeout time.Duration) (Solution, error) {
	if c == nil || c.endpoint == "" {
		metrics.ObserveChallengeSolve("unavailable")
		return Solution{}, ErrSolverUnavailable
	}
	body, err := json.Marshal(solveRequest{Cmd: "request.get", URL: url, MaxTimeout: timeout.Milliseconds()})
	if err != nil {
		return Solution{}, fmt.Errorf("encode solve request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout+requestSlack)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Solution{}, fmt.Errorf("build solve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveChallengeSolve("unavailable")
		return Solution{}, fmt.Errorf("%w: %w", ErrSolverUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // response fully consumed below

	var decoded solveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		metrics.ObserveChallengeSolve("error")
		return Solution{}, fmt.Errorf("decode solve response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || decoded.Status != "ok" {
		metrics.ObserveChallengeSolve("error")
		return Solution{}, fmt.Errorf("solver returned %q (HTTP %d): %s", decoded.Status, resp.StatusCode, decoded.Message)
	}

	metrics.ObserveChallengeSolve("ok")
	sol := Solution{
		URL:       decoded.Solution.URL,
		Status:    decoded.Solution.Status,
		UserAgent: decoded.Solution.UserAgent,
		HTML:      decoded.Solution.Response,
		Cookies:   make([]availability.Cookie, 0, len(decoded.Solution.Cookies)),
	}
	for _, ck := range decoded.Solution.Cookies {
		sol.Cookies = append(sol.Cookies, availability.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expiry,
			HTTPOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
			SameSite: ck.SameSite,
		})
	}
	c.logger.Info("challenge solved",
		zap.String("url", url),
		zap.Int("cookies", len(sol.Cookies)),
		zap.Duration("elapsed", time.Since(start)))
	return sol, nil
}
