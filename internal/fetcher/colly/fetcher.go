// Package collyfetcher implements a static availability.Page using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/metrics"
	"github.com/JakeFAU/private-sauna-availability/internal/policy/ratelimit"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// StatusError reports a non-success HTTP status. The body is still readable from the page.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.URL, e.Code)
}

// Fetcher builds static pages that share one HTTP transport.
type Fetcher struct {
	cfg           Config
	rate          *ratelimit.Limiter
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, rate *ratelimit.Limiter) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.ParseHTTPErrorResponse = true
	return &Fetcher{cfg: cfg, rate: rate, baseCollector: c}
}

// Open returns a page with no document loaded.
func (f *Fetcher) Open(opts availability.PageOptions) *Page {
	ua := f.cfg.UserAgent
	if opts.UserAgent != "" {
		ua = opts.UserAgent
	}
	return &Page{fetcher: f, userAgent: ua}
}

// Page is a plain HTTP document. It cannot run scripts.
type Page struct {
	fetcher *Fetcher

	mu        sync.Mutex
	userAgent string
	cookies   []availability.Cookie
	url       string
	status    int
	body      []byte
	doc       *goquery.Document
}

var _ availability.Page = (*Page)(nil)

type fetchResult struct {
	url    string
	status int
	body   []byte
}

// Navigate performs a GET and keeps the response for later reads.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.fetcher.rate.Wait(ctx, url); err != nil {
		return err
	}
	p.mu.Lock()
	userAgent := p.userAgent
	cookies := cookieHeader(url, p.cookies)
	p.mu.Unlock()

	collector := p.fetcher.baseCollector.Clone()
	collector.SetRequestTimeout(p.fetcher.cfg.Timeout)
	collector.ParseHTTPErrorResponse = true

	var (
		result   fetchResult
		fetchErr error
	)
	p.fetcher.configureCollectorHooks(collector, requestHeaders{userAgent: userAgent, cookie: cookies}, &result, &fetchErr)
	runErr := p.fetcher.runCollector(ctx, collector, url, &fetchErr)
	if ctx.Err() != nil {
		// The visit goroutine may still write result.
		metrics.ObserveNavigation(url, "static", "canceled", 0)
		return runErr
	}

	status := "error"
	if result.status > 0 {
		status = strconv.Itoa(result.status)
	}
	metrics.ObserveNavigation(url, "static", status, len(result.body))

	p.mu.Lock()
	defer p.mu.Unlock()
	p.url, p.status, p.body, p.doc = result.url, result.status, result.body, nil
	if result.status > 0 {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.body))
		if err == nil {
			p.doc = doc
		}
	}
	if result.status >= http.StatusBadRequest {
		return &StatusError{URL: url, Code: result.status}
	}
	return runErr
}

type requestHeaders struct {
	userAgent string
	cookie    string
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	headers requestHeaders,
	result *fetchResult,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		if headers.userAgent != "" {
			r.Headers.Set("User-Agent", headers.userAgent)
		}
		if headers.cookie != "" {
			r.Headers.Set("Cookie", headers.cookie)
		}
		r.Headers.Set("Accept-Language", "ja-JP,ja;q=0.9")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = fetchResult{
			url:    r.Request.URL.String(),
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			*result = fetchResult{
				url:    r.Request.URL.String(),
				status: r.StatusCode,
				body:   append([]byte(nil), r.Body...),
			}
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

var errNoDocument = errors.New("no document loaded")

// Status is the last response status, zero before any navigation.
func (p *Page) Status() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Body is the last raw response body.
func (p *Page) Body() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.body...)
}

// URL is the final URL of the last navigation.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// HTML returns the raw response body.
func (p *Page) HTML(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return "", errNoDocument
	}
	return string(p.body), nil
}

// Title returns the text of the first <title>.
func (p *Page) Title(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return "", errNoDocument
	}
	return strings.TrimSpace(p.doc.Find("title").First().Text()), nil
}

// Text returns the body text with whitespace runs collapsed per line.
func (p *Page) Text(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return "", errNoDocument
	}
	body := p.doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	body.Find("br").ReplaceWithHtml("\n")
	body.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6").AppendHtml("\n")
	lines := strings.Split(body.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}

// Evaluate always fails: static pages have no script engine.
func (p *Page) Evaluate(_ context.Context, _ string, _ any) error {
	return availability.ErrScriptUnsupported
}

// SetUserAgent changes the User-Agent for later navigations.
func (p *Page) SetUserAgent(_ context.Context, userAgent string) error {
	p.mu.Lock()
	p.userAgent = userAgent
	p.mu.Unlock()
	return nil
}

// SetCookies adds cookies sent on later navigations.
func (p *Page) SetCookies(_ context.Context, cookies []availability.Cookie) error {
	p.mu.Lock()
	p.cookies = append(p.cookies, cookies...)
	p.mu.Unlock()
	return nil
}

// AddInitScript is a no-op; no page scripts run here either.
func (p *Page) AddInitScript(_ context.Context, _ string) error {
	return nil
}

// cookieHeader renders the cookies whose domain matches rawURL's host.
func cookieHeader(rawURL string, cookies []availability.Cookie) string {
	if len(cookies) == 0 {
		return ""
	}
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		domain := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
		if domain != "" && host != domain && !strings.HasSuffix(host, "."+domain) {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
