package sources

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
)

const gflowURL = "https://sw.gflow.cloud/ooo-fukuoka/calendar_open"

// StrategyPriceText marks snapshots read from price labels instead of status icons.
const StrategyPriceText = "price-text"

type gflowRoom struct {
	name     availability.Room
	selector string
	keyword  string
}

var gflowRooms = []gflowRoom{
	{name: "サンカク（100分/120分/定員2名）¥4,500-8,500", selector: ".sankaku-h1", keyword: "サンカク"},
	{name: "マル（100分/120分/定員3名）¥5,000-11,500", selector: ".prime-h1", keyword: "マル"},
	{name: "シカク（120分/定員4名）¥7,000-18,000", selector: ".vip-h1", keyword: "シカク"},
}

var (
	gflowHeaderDate = regexp.MustCompile(`(\d{2})/(\d{2})`)
	gflowSlotRange  = regexp.MustCompile(`(\d{2}:\d{2})~(\d{2}:\d{2})`)
	gflowPriceText  = regexp.MustCompile(`[¥￥]|\d`)
)

// GflowStrategy decides whether one grid cell is bookable.
type GflowStrategy func(cell *goquery.Selection) bool

// GflowIconStrategy reads the open/closed status icons.
func GflowIconStrategy(cell *goquery.Selection) bool {
	open := cell.HasClass("cursor") || cell.Find("i.ri-checkbox-blank-circle-line").Length() > 0
	closed := cell.HasClass("bg-gray") || cell.Find("i.ri-close-line").Length() > 0
	return open && !closed
}

// GflowPriceTextStrategy treats a cell showing a price and no × as bookable.
func GflowPriceTextStrategy(cell *goquery.Selection) bool {
	text := strings.TrimSpace(cell.Text())
	if strings.ContainsAny(text, "×✕") || cell.Find("i.ri-close-line").Length() > 0 {
		return false
	}
	return gflowPriceText.MatchString(text)
}

// Gflow scrapes the gflow gold-table grid, switching rooms by clicking their cards.
type Gflow struct {
	deps Deps
}

// NewGflow builds the adapter.
func NewGflow(deps Deps) *Gflow {
	return &Gflow{deps: deps.withDefaults()}
}

// Source identifies the site.
func (g *Gflow) Source() availability.Source {
	return availability.Source{Key: "gflow", Name: "SAUNA OOO FUKUOKA", URL: gflowURL}
}

// PageOptions asks for a browser: every room's grid, the first included, is
// rendered client side.
func (g *Gflow) PageOptions() availability.PageOptions {
	return availability.PageOptions{Script: true, UserAgent: g.deps.UserAgent}
}

// Scrape reads each room's grid with the icon strategy, falling back to price
// labels when icons yield nothing anywhere.
func (g *Gflow) Scrape(ctx context.Context, page availability.Page, window []availability.DateKey) (availability.Snapshot, error) {
	key := g.Source().Key
	if err := page.Navigate(ctx, gflowURL); err != nil {
		return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
	}
	if err := settle(ctx, g.deps.Settle); err != nil {
		return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
	}

	pages := make([]string, len(gflowRooms))
	for i, room := range gflowRooms {
		if i > 0 {
			var how string
			if err := page.Evaluate(ctx, gflowClickScript(room), &how); err != nil {
				return availability.Snapshot{}, availability.AsScrapeFailure(key, fmt.Errorf("select %s: %w", room.keyword, err))
			}
			if how == "" {
				return availability.Snapshot{}, availability.Fail(key, availability.CauseStructure, "room card %s not found", room.keyword)
			}
			if err := settle(ctx, g.deps.Settle); err != nil {
				return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
			}
		}
		html, err := page.HTML(ctx)
		if err != nil {
			return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
		}
		pages[i] = html
	}

	snap, err := g.build(window, pages, GflowIconStrategy)
	if err != nil {
		return availability.Snapshot{}, &availability.ScrapeFailure{Source: key, Cause: availability.CauseStructure, Err: err}
	}
	if snap.SlotCount() == 0 {
		fallback, err := g.build(window, pages, GflowPriceTextStrategy)
		if err == nil && fallback.SlotCount() > 0 {
			g.deps.Logger.Warn("gflow icons yielded nothing, using price labels",
				zap.String("source", key), zap.Int("slots", fallback.SlotCount()))
			fallback.Fallback = true
			fallback.Strategy = StrategyPriceText
			snap = fallback
		}
	}
	return snap, nil
}

func (g *Gflow) build(window []availability.DateKey, pages []string, strategy GflowStrategy) (availability.Snapshot, error) {
	snap := availability.NewSnapshot(window)
	want := inWindow(window)
	ref := reference(window)
	for i, room := range gflowRooms {
		grid, err := ParseGflowGrid(pages[i], ref, strategy)
		if err != nil {
			return availability.Snapshot{}, fmt.Errorf("%s: %w", room.keyword, err)
		}
		for _, date := range window {
			snap.AddRoom(date, room.name)
		}
		for date, slots := range grid {
			if !want[date] {
				continue
			}
			snap.SetSlots(date, room.name, slots)
		}
	}
	snap.Normalize(window, availability.Lexical)
	return snap, nil
}

// ParseGflowGrid reads dates from the first gold-table header and slot rows from the second.
func ParseGflowGrid(html string, ref time.Time, open GflowStrategy) (map[availability.DateKey][]availability.TimeSlot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse calendar html: %w", err)
	}
	tables := doc.Find("table.gold-table")
	if tables.Length() < 2 {
		return nil, fmt.Errorf("expected 2 gold-table tables, found %d", tables.Length())
	}

	var dates []availability.DateKey
	tables.Eq(0).Find("th").Each(func(_ int, th *goquery.Selection) {
		m := gflowHeaderDate.FindStringSubmatch(th.Text())
		if m == nil {
			return
		}
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		if d, err := availability.InferDate(month, day, ref); err == nil {
			dates = append(dates, d)
		}
	})
	if len(dates) == 0 {
		return nil, fmt.Errorf("no dates in calendar header")
	}

	out := map[availability.DateKey][]availability.TimeSlot{}
	tables.Eq(1).Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		m := gflowSlotRange.FindStringSubmatch(cells.First().Text())
		if m == nil {
			return
		}
		slot := availability.TimeSlot(m[1] + availability.SlotSeparator + m[2])
		cells.Each(func(i int, cell *goquery.Selection) {
			if i == 0 || i-1 >= len(dates) || !open(cell) {
				return
			}
			out[dates[i-1]] = append(out[dates[i-1]], slot)
		})
	})
	return out, nil
}

func gflowClickScript(room gflowRoom) string {
	return fmt.Sprintf(`(() => {
  const selector = %q, keyword = %q;
  for (const label of document.querySelectorAll('label.box-room')) {
    if (label.querySelector(selector)) { label.click(); return 'label-h1'; }
    if (label.textContent.includes(keyword + 'の部屋')) { label.click(); return 'label-keyword'; }
  }
  const h1 = document.querySelector(selector);
  if (h1) { h1.click(); return 'h1'; }
  return '';
})()`, room.selector, room.keyword)
}
