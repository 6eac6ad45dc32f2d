package session

import (
	"context"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	collyfetcher "github.com/JakeFAU/private-sauna-availability/internal/fetcher/colly"
	"github.com/JakeFAU/private-sauna-availability/internal/fetcher/headless"
)

// ClosablePage is a page holding resources until Close.
type ClosablePage interface {
	availability.Page
	Close()
}

// BrowserPages opens script-capable pages.
type BrowserPages interface {
	Open(ctx context.Context, opts availability.PageOptions) (ClosablePage, error)
}

// StaticPage is a page backed by a plain HTTP response.
type StaticPage interface {
	availability.Page
	Status() int
	Body() []byte
}

// StaticPages opens static pages.
type StaticPages interface {
	Open(opts availability.PageOptions) StaticPage
}

// Detector decides whether a static response needs the browser.
type Detector interface {
	ShouldPromote(status int, body []byte) bool
}

type browserPages struct {
	browser *headless.Browser
}

// Browser adapts a headless browser to BrowserPages.
func Browser(b *headless.Browser) BrowserPages {
	return browserPages{browser: b}
}

func (b browserPages) Open(ctx context.Context, opts availability.PageOptions) (ClosablePage, error) {
	page, err := b.browser.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return page, nil
}

type staticPages struct {
	fetcher *collyfetcher.Fetcher
}

// Static adapts a colly fetcher to StaticPages.
func Static(f *collyfetcher.Fetcher) StaticPages {
	return staticPages{fetcher: f}
}

func (s staticPages) Open(opts availability.PageOptions) StaticPage {
	return s.fetcher.Open(opts)
}
