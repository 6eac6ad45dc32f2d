package sources

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/challenge"
	"github.com/JakeFAU/private-sauna-availability/internal/pagetest"
)

type fakeSolver struct {
	mu        sync.Mutex
	available bool
	err       error
	solution  challenge.Solution
	calls     int
	timeouts  []time.Duration
}

func (f *fakeSolver) Available(context.Context) bool {
	return f.available
}

func (f *fakeSolver) Solve(_ context.Context, _ string, timeout time.Duration) (challenge.Solution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.timeouts = append(f.timeouts, timeout)
	return f.solution, f.err
}

func (f *fakeSolver) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSolver) Timeouts() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.timeouts...)
}

const yoganCalendarHTML = `<html><head><title>サウナヨーガン | reserva</title></head><body><div class="calendar"></div></body></html>`

func yoganTimeboxes(boxes ...string) string {
	return `<html><body><div class="timeboxes">` + strings.Join(boxes, "") + `</div></body></html>`
}

// yoganPage renders time boxes for the dates in open and reports every other date unbookable.
func yoganPage(open map[availability.DateKey]string) *pagetest.Page {
	page := pagetest.New(map[string]pagetest.Doc{
		yoganURL: {HTML: yoganCalendarHTML, Title: "サウナヨーガン | reserva"},
	})
	page.Eval = func(p *pagetest.Page, script string, out any) error {
		for date, html := range open {
			if strings.Contains(script, `"`+string(date)+`"`) {
				p.Show(pagetest.Doc{HTML: html})
				return pagetest.Decode("label", out)
			}
		}
		return pagetest.Decode("", out)
	}
	return page
}

func TestParseYoganTimeboxes(t *testing.T) {
	t.Parallel()

	html := yoganTimeboxes(
		`<input class="timebox" data-time="10:00～12:30" data-vacancy="1">`,
		`<input class="timebox" data-time="13:00～15:30" data-vacancy="0">`,
		`<input class="timebox" data-time=" 16:00~18:30 " data-vacancy="1">`,
	)
	slots, found, err := ParseYoganTimeboxes(html)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []availability.TimeSlot{"10:00〜12:30", "16:00〜18:30"}, slots)

	slots, found, err = ParseYoganTimeboxes("<html><body></body></html>")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, slots)
}

func TestYoganScrapeSolvesOncePerRun(t *testing.T) {
	t.Parallel()

	solver := &fakeSolver{available: true, solution: challenge.Solution{
		UserAgent: "SolverAgent/1.0",
		Cookies:   []availability.Cookie{{Name: "cf_clearance", Value: "token"}},
	}}
	adapter := NewYogan(Deps{Solver: solver})
	window := testWindow()
	open := map[availability.DateKey]string{
		"2025-01-11": yoganTimeboxes(
			`<input class="timebox" data-time="19:00～21:30" data-vacancy="1">`,
			`<input class="timebox" data-time="10:00～12:30" data-vacancy="1">`,
		),
		"2025-01-12": yoganTimeboxes(`<input class="timebox" data-time="10:00～12:30" data-vacancy="0">`),
	}

	page := yoganPage(open)
	snap, err := adapter.Scrape(context.Background(), page, window)
	require.NoError(t, err)
	requireWellFormed(t, snap, window)
	require.Equal(t, []availability.TimeSlot{"10:00〜12:30", "19:00〜21:30"}, snap.Dates["2025-01-11"][yoganRoom])
	require.Empty(t, snap.Dates["2025-01-12"][yoganRoom])
	require.Empty(t, snap.Dates["2025-01-10"][yoganRoom])
	require.Len(t, page.Navigations(), len(window))

	require.Equal(t, "SolverAgent/1.0", page.UserAgent())
	require.Equal(t, []availability.Cookie{{
		Name: "cf_clearance", Value: "token", Domain: ".reserva.be", Path: "/", SameSite: "Lax",
	}}, page.Cookies())
	require.Equal(t, []string{yoganStealth}, page.InitScripts())

	_, err = adapter.Scrape(context.Background(), yoganPage(open), window)
	require.NoError(t, err)
	require.Equal(t, 1, solver.Calls())

	adapter.ResetRun()
	_, err = adapter.Scrape(context.Background(), yoganPage(open), window)
	require.NoError(t, err)
	require.Equal(t, 2, solver.Calls())
}

func TestYoganSolveUsesConfiguredTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{name: "configured", in: 15 * time.Second, want: 15 * time.Second},
		{name: "unset", in: 0, want: DefaultSolveTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			solver := &fakeSolver{available: true}
			_, err := NewYogan(Deps{Solver: solver, SolveTimeout: tt.in}).Scrape(context.Background(), yoganPage(nil), testWindow())
			require.NoError(t, err)
			require.Equal(t, []time.Duration{tt.want}, solver.Timeouts())
		})
	}
}

func TestYoganScrapeWithoutSolver(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		solver *fakeSolver
		calls  int
	}{
		{name: "unavailable", solver: &fakeSolver{}, calls: 0},
		{name: "solve error", solver: &fakeSolver{available: true, err: errors.New("boom")}, calls: 1},
		{name: "no cookies", solver: &fakeSolver{available: true}, calls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page := yoganPage(map[availability.DateKey]string{
				"2025-01-10": yoganTimeboxes(`<input class="timebox" data-time="10:00～12:30" data-vacancy="1">`),
			})
			snap, err := NewYogan(Deps{Solver: tt.solver}).Scrape(context.Background(), page, testWindow())
			require.NoError(t, err)
			require.Equal(t, 1, snap.SlotCount())
			require.Equal(t, DefaultUserAgent, page.UserAgent())
			require.Empty(t, page.Cookies())
			require.Equal(t, tt.calls, tt.solver.Calls())
		})
	}
}

func TestYoganScrapeChallengePage(t *testing.T) {
	t.Parallel()

	page := yoganPage(nil)
	page.Docs[yoganURL] = pagetest.Doc{HTML: "<html></html>", Title: "Just a moment..."}
	_, err := NewYogan(Deps{}).Scrape(context.Background(), page, testWindow())
	var sf *availability.ScrapeFailure
	require.ErrorAs(t, err, &sf)
	require.Equal(t, availability.CauseChallenge, sf.Cause)
	require.Empty(t, page.Scripts())
}

func TestYoganScrapeLayoutChange(t *testing.T) {
	t.Parallel()

	page := yoganPage(map[availability.DateKey]string{
		"2025-01-10": "<html><body><p>新しい予約画面</p></body></html>",
	})
	_, err := NewYogan(Deps{}).Scrape(context.Background(), page, testWindow())
	var sf *availability.ScrapeFailure
	require.ErrorAs(t, err, &sf)
	require.Equal(t, availability.CauseStructure, sf.Cause)
}

func TestYoganScrapeNothingBookable(t *testing.T) {
	t.Parallel()

	snap, err := NewYogan(Deps{}).Scrape(context.Background(), yoganPage(nil), testWindow())
	require.NoError(t, err)
	require.False(t, snap.Empty())
	require.Zero(t, snap.SlotCount())
}

func TestIsChallengeTitle(t *testing.T) {
	t.Parallel()

	require.True(t, IsChallengeTitle("Just a moment..."))
	require.True(t, IsChallengeTitle("Attention Required! | Cloudflare"))
	require.False(t, IsChallengeTitle("サウナヨーガン | reserva"))
}
