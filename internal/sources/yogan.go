package sources

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/challenge"
)

const (
	yoganURL      = "https://reserva.be/saunayogan/reserve?mode=service_staff&search_evt_no=eeeJyzMDY2MQIAAxwBBQ"
	yoganSolveURL = "https://reserva.be/saunayogan"
	yoganRoom     = availability.Room("プライベートサウナ（150分/定員3名）¥9,900-13,200")
)

// DefaultSolveTimeout bounds a challenge solve when Deps leaves it unset.
const DefaultSolveTimeout = 60 * time.Second

// yoganStealth hides the usual headless fingerprints before any page script runs.
const yoganStealth = `Object.defineProperty(navigator, 'webdriver', { get: () => false });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => ['ja-JP', 'ja', 'en-US', 'en'] });
window.chrome = { runtime: {} };`

// Yogan scrapes reserva.be, which sits behind a challenge. Solver cookies are
// fetched at most once per run and shared by every date.
type Yogan struct {
	deps Deps

	mu        sync.Mutex
	solution  *challenge.Solution
	attempted bool
}

var _ availability.RunScoped = (*Yogan)(nil)

// NewYogan builds the adapter.
func NewYogan(deps Deps) *Yogan {
	return &Yogan{deps: deps.withDefaults()}
}

// Source identifies the site.
func (y *Yogan) Source() availability.Source {
	return availability.Source{Key: "yogan", Name: "サウナヨーガン福岡天神", URL: yoganSolveURL}
}

// PageOptions asks for a browser: the calendar is driven by clicks.
func (y *Yogan) PageOptions() availability.PageOptions {
	return availability.PageOptions{Script: true}
}

// ResetRun drops the cached challenge solution.
func (y *Yogan) ResetRun() {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.solution = nil
	y.attempted = false
}

// solve returns the run's cached solution, calling the solver at most once.
// A nil result means fetch directly.
func (y *Yogan) solve(ctx context.Context) *challenge.Solution {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.attempted {
		return y.solution
	}
	y.attempted = true
	if y.deps.Solver == nil || !y.deps.Solver.Available(ctx) {
		y.deps.Logger.Info("challenge solver unavailable, fetching directly", zap.String("source", "yogan"))
		return nil
	}
	sol, err := y.deps.Solver.Solve(ctx, yoganSolveURL, y.deps.SolveTimeout)
	if err != nil {
		y.deps.Logger.Warn("challenge solve failed, fetching directly", zap.String("source", "yogan"), zap.Error(err))
		return nil
	}
	if len(sol.Cookies) == 0 {
		y.deps.Logger.Warn("challenge solver returned no cookies", zap.String("source", "yogan"))
		return nil
	}
	y.solution = &sol
	return y.solution
}

// Scrape clicks each window date and reads its open time boxes.
func (y *Yogan) Scrape(ctx context.Context, page availability.Page, window []availability.DateKey) (availability.Snapshot, error) {
	key := y.Source().Key
	if err := y.prepare(ctx, page); err != nil {
		return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
	}

	snap := availability.NewSnapshot(window)
	for _, date := range window {
		snap.AddRoom(date, yoganRoom)
	}

	clickedDates, renderedDates := 0, 0
	for i, date := range window {
		if err := y.load(ctx, page); err != nil {
			return availability.Snapshot{}, err
		}
		if i == 0 {
			title, err := page.Title(ctx)
			if err != nil {
				return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
			}
			if IsChallengeTitle(title) {
				return availability.Snapshot{}, availability.Fail(key, availability.CauseChallenge, "challenge page %q", title)
			}
		}

		var clicked string
		if err := page.Evaluate(ctx, yoganClickScript(date), &clicked); err != nil {
			return availability.Snapshot{}, availability.AsScrapeFailure(key, fmt.Errorf("click %s: %w", date, err))
		}
		if clicked == "" {
			y.deps.Logger.Debug("yogan date not bookable", zap.String("date", string(date)))
			continue
		}
		if err := settle(ctx, y.deps.Settle); err != nil {
			return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
		}
		html, err := page.HTML(ctx)
		if err != nil {
			return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
		}
		slots, found, err := ParseYoganTimeboxes(html)
		if err != nil {
			return availability.Snapshot{}, &availability.ScrapeFailure{Source: key, Cause: availability.CauseStructure, Err: err}
		}
		clickedDates++
		if found {
			renderedDates++
		}
		snap.SetSlots(date, yoganRoom, slots)
	}
	if clickedDates > 0 && renderedDates == 0 {
		return availability.Snapshot{}, availability.Fail(key, availability.CauseStructure,
			"no time boxes rendered after clicking %d dates", clickedDates)
	}

	snap.Normalize(window, availability.ByStart(0))
	return snap, nil
}

func (y *Yogan) prepare(ctx context.Context, page availability.Page) error {
	userAgent := y.deps.UserAgent
	if sol := y.solve(ctx); sol != nil {
		if sol.UserAgent != "" {
			userAgent = sol.UserAgent
		}
		if err := page.SetCookies(ctx, yoganCookies(sol.Cookies)); err != nil {
			return fmt.Errorf("set solver cookies: %w", err)
		}
	}
	if err := page.SetUserAgent(ctx, userAgent); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	if err := page.AddInitScript(ctx, yoganStealth); err != nil {
		return fmt.Errorf("add stealth script: %w", err)
	}
	return nil
}

func (y *Yogan) load(ctx context.Context, page availability.Page) error {
	key := y.Source().Key
	if err := page.Navigate(ctx, yoganURL); err != nil {
		return availability.AsScrapeFailure(key, err)
	}
	if err := settle(ctx, y.deps.Settle); err != nil {
		return availability.AsScrapeFailure(key, err)
	}
	return nil
}

// yoganCookies fills the defaults reserva.be expects.
func yoganCookies(in []availability.Cookie) []availability.Cookie {
	out := make([]availability.Cookie, 0, len(in))
	for _, c := range in {
		if c.Domain == "" {
			c.Domain = ".reserva.be"
		}
		if c.Path == "" {
			c.Path = "/"
		}
		if c.SameSite == "" {
			c.SameSite = "Lax"
		}
		out = append(out, c)
	}
	return out
}

// IsChallengeTitle reports whether a page title belongs to a challenge interstitial.
func IsChallengeTitle(title string) bool {
	return strings.Contains(title, "Just a moment") || strings.Contains(title, "Cloudflare")
}

func yoganClickScript(date availability.DateKey) string {
	return fmt.Sprintf(`(() => {
  const id = %q;
  const input = document.querySelector('input#' + CSS.escape(id) + ':not(.is-unavailable)');
  if (!input || !input.dataset.targetdate) { return ''; }
  const label = document.querySelector('label[for="' + id + '"]');
  if (label) { label.click(); return 'label'; }
  input.click();
  return 'input';
})()`, string(date))
}

// ParseYoganTimeboxes returns the open time boxes of the clicked date and
// whether any time box was rendered at all.
func ParseYoganTimeboxes(html string) ([]availability.TimeSlot, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false, fmt.Errorf("parse reserve html: %w", err)
	}
	boxes := doc.Find("input.timebox")
	out := []availability.TimeSlot{}
	boxes.Filter(`[data-vacancy="1"]`).Each(func(_ int, s *goquery.Selection) {
		if t, ok := s.Attr("data-time"); ok && strings.TrimSpace(t) != "" {
			out = append(out, availability.NormalizeSlot(t))
		}
	})
	return out, boxes.Length() > 0, nil
}
