// Package pagetest provides an in-memory availability.Page for adapter and session tests.
package pagetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
)

// Doc is what a URL renders to.
type Doc struct {
	HTML   string
	Title  string
	Text   string
	Status int
}

// EvalFunc handles Evaluate calls. It may call Show to change the document.
type EvalFunc func(p *Page, script string, out any) error

// Page serves canned documents by URL and records every interaction.
type Page struct {
	mu sync.Mutex

	Docs        map[string]Doc
	Eval        EvalFunc
	NavigateErr error
	// Block makes Navigate wait for ctx to end.
	Block bool

	current     *Doc
	navigations []string
	scripts     []string
	cookies     []availability.Cookie
	initScripts []string
	userAgent   string
	closed      int
}

var _ availability.Page = (*Page)(nil)

// New returns a page serving docs.
func New(docs map[string]Doc) *Page {
	if docs == nil {
		docs = map[string]Doc{}
	}
	return &Page{Docs: docs}
}

// Show replaces the current document.
func (p *Page) Show(doc Doc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = &doc
}

// Navigate loads the doc registered for url.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	block, navErr := p.Block, p.NavigateErr
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if navErr != nil {
		return navErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, ok := p.Docs[url]
	if !ok {
		p.current = nil
		return fmt.Errorf("no document for %s", url)
	}
	p.current = &doc
	return nil
}

func (p *Page) doc() (Doc, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Doc{}, errors.New("no document loaded")
	}
	return *p.current, nil
}

// HTML returns the current doc's HTML.
func (p *Page) HTML(_ context.Context) (string, error) {
	d, err := p.doc()
	return d.HTML, err
}

// Title returns the current doc's title.
func (p *Page) Title(_ context.Context) (string, error) {
	d, err := p.doc()
	return d.Title, err
}

// Text returns the current doc's text.
func (p *Page) Text(_ context.Context) (string, error) {
	d, err := p.doc()
	return d.Text, err
}

// Evaluate records script and defers to Eval. Without Eval it fails like a static page.
func (p *Page) Evaluate(_ context.Context, script string, out any) error {
	p.mu.Lock()
	p.scripts = append(p.scripts, script)
	eval := p.Eval
	p.mu.Unlock()
	if eval == nil {
		return availability.ErrScriptUnsupported
	}
	return eval(p, script, out)
}

// SetUserAgent records the agent.
func (p *Page) SetUserAgent(_ context.Context, userAgent string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userAgent = userAgent
	return nil
}

// SetCookies records cookies.
func (p *Page) SetCookies(_ context.Context, cookies []availability.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = append(p.cookies, cookies...)
	return nil
}

// AddInitScript records the script.
func (p *Page) AddInitScript(_ context.Context, script string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initScripts = append(p.initScripts, script)
	return nil
}

// Close counts closes.
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
}

// Status returns the current doc's status, 200 when unset.
func (p *Page) Status() int {
	d, err := p.doc()
	if err != nil {
		return 0
	}
	if d.Status == 0 {
		return http.StatusOK
	}
	return d.Status
}

// Body returns the current doc's HTML as bytes.
func (p *Page) Body() []byte {
	d, _ := p.doc()
	return []byte(d.HTML)
}

// Navigations returns every URL navigated to.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Scripts returns every evaluated script.
func (p *Page) Scripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scripts...)
}

// Cookies returns every cookie set.
func (p *Page) Cookies() []availability.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]availability.Cookie(nil), p.cookies...)
}

// InitScripts returns every registered init script.
func (p *Page) InitScripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.initScripts...)
}

// UserAgent returns the last agent set.
func (p *Page) UserAgent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userAgent
}

// Closed reports how many times Close ran.
func (p *Page) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Decode stores v into out the way a browser returns evaluation results.
func Decode(v any, out any) error {
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
