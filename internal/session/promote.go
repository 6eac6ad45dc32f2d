package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/metrics"
)

// ErrNeedsBrowser is returned by static pages whose response needs a browser
// when none is available.
var ErrNeedsBrowser = errors.New("page needs a browser but headless is disabled")

// staticPage guards a static page with the detector. It is used when no
// browser is available.
type staticPage struct {
	StaticPage
	detector Detector
}

func (p *staticPage) Navigate(ctx context.Context, url string) error {
	err := p.StaticPage.Navigate(ctx, url)
	if ctx.Err() != nil {
		return err
	}
	if p.detector != nil && p.detector.ShouldPromote(p.Status(), p.Body()) {
		return &availability.ScrapeFailure{Cause: availability.CauseStructure, Err: fmt.Errorf("%s: %w", url, ErrNeedsBrowser)}
	}
	return err
}

// promotingPage starts static and moves to a browser tab when the detector
// fires or a script is evaluated. Page settings are replayed on the tab.
type promotingPage struct {
	static   StaticPage
	browser  BrowserPages
	detector Detector
	opts     availability.PageOptions

	mu          sync.Mutex
	tab         ClosablePage
	lastURL     string
	userAgent   string
	cookies     []availability.Cookie
	initScripts []string
}

func (p *promotingPage) current() availability.Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tab != nil {
		return p.tab
	}
	return p.static
}

func (p *promotingPage) promote(ctx context.Context) (availability.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tab != nil {
		return p.tab, nil
	}
	tab, err := p.browser.Open(ctx, p.opts)
	if err != nil {
		return nil, fmt.Errorf("promote to browser: %w", err)
	}
	if p.userAgent != "" {
		if err := tab.SetUserAgent(ctx, p.userAgent); err != nil {
			tab.Close()
			return nil, err
		}
	}
	if err := tab.SetCookies(ctx, p.cookies); err != nil {
		tab.Close()
		return nil, err
	}
	for _, script := range p.initScripts {
		if err := tab.AddInitScript(ctx, script); err != nil {
			tab.Close()
			return nil, err
		}
	}
	if p.lastURL != "" {
		metrics.ObservePromotion(p.lastURL)
		if err := tab.Navigate(ctx, p.lastURL); err != nil {
			tab.Close()
			return nil, err
		}
	}
	p.tab = tab
	return tab, nil
}

func (p *promotingPage) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tab != nil {
		p.tab.Close()
		p.tab = nil
	}
}

func (p *promotingPage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.lastURL = url
	tab := p.tab
	p.mu.Unlock()
	if tab != nil {
		return tab.Navigate(ctx, url)
	}

	err := p.static.Navigate(ctx, url)
	if ctx.Err() != nil {
		return err
	}
	if p.detector.ShouldPromote(p.static.Status(), p.static.Body()) {
		_, perr := p.promote(ctx)
		return perr
	}
	return err
}

func (p *promotingPage) HTML(ctx context.Context) (string, error) {
	return p.current().HTML(ctx)
}

func (p *promotingPage) Title(ctx context.Context) (string, error) {
	return p.current().Title(ctx)
}

func (p *promotingPage) Text(ctx context.Context) (string, error) {
	return p.current().Text(ctx)
}

func (p *promotingPage) Evaluate(ctx context.Context, script string, out any) error {
	page, err := p.promote(ctx)
	if err != nil {
		return err
	}
	return page.Evaluate(ctx, script, out)
}

func (p *promotingPage) SetUserAgent(ctx context.Context, userAgent string) error {
	p.mu.Lock()
	p.userAgent = userAgent
	tab := p.tab
	p.mu.Unlock()
	if tab != nil {
		return tab.SetUserAgent(ctx, userAgent)
	}
	return p.static.SetUserAgent(ctx, userAgent)
}

func (p *promotingPage) SetCookies(ctx context.Context, cookies []availability.Cookie) error {
	p.mu.Lock()
	p.cookies = append(p.cookies, cookies...)
	tab := p.tab
	p.mu.Unlock()
	if tab != nil {
		return tab.SetCookies(ctx, cookies)
	}
	return p.static.SetCookies(ctx, cookies)
}

func (p *promotingPage) AddInitScript(ctx context.Context, script string) error {
	p.mu.Lock()
	p.initScripts = append(p.initScripts, script)
	tab := p.tab
	p.mu.Unlock()
	if tab != nil {
		return tab.AddInitScript(ctx, script)
	}
	return nil
}
