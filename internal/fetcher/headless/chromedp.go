// Package headless implements availability.Page on a shared headless Chrome.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/metrics"
	"github.com/JakeFAU/private-sauna-availability/internal/policy/ratelimit"
)

const defaultNavTimeout = 45 * time.Second

// Config controls the shared browser.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	ExecPath          string
}

// Browser owns one Chrome process. Each Open call gets its own tab.
type Browser struct {
	cfg         Config
	limiter     chan struct{}
	rate        *ratelimit.Limiter
	allocator   context.Context
	allocCancel context.CancelFunc

	startMu       sync.Mutex
	started       bool
	browser       context.Context
	browserCancel context.CancelFunc
}

// NewBrowser prepares a browser allocator. Chrome is launched on first Open.
func NewBrowser(cfg Config, rate *ratelimit.Limiter) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		limiter:     limiter,
		rate:        rate,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.startMu.Lock()
	if b.browserCancel != nil {
		b.browserCancel()
	}
	b.startMu.Unlock()
	b.allocCancel()
}

func (b *Browser) ensureStarted() (context.Context, error) {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.started {
		return b.browser, nil
	}
	browserCtx, cancel := chromedp.NewContext(b.allocator)
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	b.browser = browserCtx
	b.browserCancel = cancel
	b.started = true
	return browserCtx, nil
}

// Open acquires a tab for one adapter run. The caller must Close the page.
func (b *Browser) Open(ctx context.Context, opts availability.PageOptions) (*Page, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	browserCtx, err := b.ensureStarted()
	if err != nil {
		b.release()
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	stop := context.AfterFunc(ctx, tabCancel)
	p := &Page{
		browser: b,
		tab:     tabCtx,
		meta:    newResponseMeta(),
		close: func() {
			stop()
			tabCancel()
			b.release()
		},
	}
	// The first Run creates the target; it must not carry a timeout or the tab dies with it.
	if err := chromedp.Run(tabCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	chromedp.ListenTarget(tabCtx, p.meta.captureEvent)

	userAgent := b.cfg.UserAgent
	if opts.UserAgent != "" {
		userAgent = opts.UserAgent
	}
	if err := p.run(ctx, b.cfg.NavigationTimeout, p.setupAction(userAgent)); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

// Page is one browser tab.
type Page struct {
	browser   *Browser
	tab       context.Context
	meta      *responseMeta
	closeOnce sync.Once
	close     func()
}

var _ availability.Page = (*Page)(nil)

// Close releases the tab and its concurrency slot. Safe to call twice.
func (p *Page) Close() {
	p.closeOnce.Do(p.close)
}

// run executes actions on the tab bounded by both timeout and the caller's ctx.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("chromedp run: %w", ctx.Err())
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (p *Page) setupAction(userAgent string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// Navigate loads url and waits for the body to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.browser.rate.Wait(ctx, url); err != nil {
		return err
	}
	err := p.run(ctx, p.browser.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	status, _ := p.meta.snapshot()
	label := "error"
	if err == nil {
		label = strconv.Itoa(status)
	}
	metrics.ObserveNavigation(url, "headless", label, 0)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// HTML returns the rendered document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.browser.cfg.NavigationTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Title returns the document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, p.browser.cfg.NavigationTimeout, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// Text returns document.body.innerText.
func (p *Page) Text(ctx context.Context) (string, error) {
	var text string
	script := `document.body ? document.body.innerText : ''`
	if err := p.run(ctx, p.browser.cfg.NavigationTimeout, chromedp.Evaluate(script, &text)); err != nil {
		return "", err
	}
	return text, nil
}

// Evaluate runs script in the page. A nil out discards the result.
func (p *Page) Evaluate(ctx context.Context, script string, out any) error {
	if out == nil {
		var ok bool
		return p.run(ctx, p.browser.cfg.NavigationTimeout, chromedp.Evaluate(script+"\n;true", &ok))
	}
	return p.run(ctx, p.browser.cfg.NavigationTimeout, chromedp.Evaluate(script, out))
}

// SetUserAgent overrides the tab's user agent.
func (p *Page) SetUserAgent(ctx context.Context, userAgent string) error {
	return p.run(ctx, p.browser.cfg.NavigationTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetUserAgentOverride(userAgent).Do(ctx)
	}))
}

// SetCookies installs cookies before the next navigation.
func (p *Page) SetCookies(ctx context.Context, cookies []availability.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := toCookieParams(cookies)
	return p.run(ctx, p.browser.cfg.NavigationTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
}

// AddInitScript registers script to run before page scripts on every navigation.
func (p *Page) AddInitScript(ctx context.Context, script string) error {
	return p.run(ctx, p.browser.cfg.NavigationTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))
}

func toCookieParams(cookies []availability.Cookie) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: sameSite(c.SameSite),
		}
		if c.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &expires
		}
		out = append(out, param)
	}
	return out
}

func sameSite(v string) network.CookieSameSite {
	switch strings.ToLower(v) {
	case "strict":
		return network.CookieSameSiteStrict
	case "none":
		return network.CookieSameSiteNone
	default:
		return network.CookieSameSiteLax
	}
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

// snapshot returns the last document status, defaulting to 200.
func (m *responseMeta) snapshot() (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == 0 {
		return http.StatusOK, m.url
	}
	return m.status, m.url
}
