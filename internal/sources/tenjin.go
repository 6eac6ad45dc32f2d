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

const (
	tenjinURL        = "https://select-type.com/rsv/?id=1nwOWa5ac9Y"
	tenjinTimeOption = "137019"
	tenjinSlotLength = 90 * time.Minute
)

type tenjinRoom struct {
	name     availability.Room
	courseID int
}

var tenjinRooms = []tenjinRoom{
	{name: "Standard（60-180分/定員2名）¥2,090-6,270", courseID: 309512},
	{name: "Deluxe（60-180分/定員4名）¥3,135-9,405", courseID: 309513},
}

var (
	tenjinWeekRange = regexp.MustCompile(`(\d{1,2})/(\d{1,2})～\s*(\d{1,2})/(\d{1,2})`)
	tenjinStartTime = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
)

// Tenjin scrapes a select-type weekly grid where ● marks an open 90 minute slot.
type Tenjin struct {
	deps Deps
}

// NewTenjin builds the adapter.
func NewTenjin(deps Deps) *Tenjin {
	return &Tenjin{deps: deps.withDefaults()}
}

// Source identifies the site.
func (t *Tenjin) Source() availability.Source {
	return availability.Source{Key: "tenjin", Name: "テンジンサウナ", URL: tenjinURL}
}

// PageOptions asks for a browser: rooms are switched by calling the page's own script.
func (t *Tenjin) PageOptions() availability.PageOptions {
	return availability.PageOptions{Script: true, UserAgent: t.deps.UserAgent}
}

// Scrape reads each room's weekly grid.
func (t *Tenjin) Scrape(ctx context.Context, page availability.Page, window []availability.DateKey) (availability.Snapshot, error) {
	key := t.Source().Key
	snap := availability.NewSnapshot(window)
	want := inWindow(window)
	ref := reference(window)

	for _, room := range tenjinRooms {
		if err := page.Navigate(ctx, tenjinURL); err != nil {
			return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
		}
		if err := settle(ctx, t.deps.Settle); err != nil {
			return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
		}
		selectCourse := fmt.Sprintf(`if (typeof rsv !== 'undefined' && rsv.chgCrsCal) { rsv.chgCrsCal(%d); }`, room.courseID)
		if err := page.Evaluate(ctx, selectCourse, nil); err != nil {
			return availability.Snapshot{}, availability.AsScrapeFailure(key, fmt.Errorf("select course %d: %w", room.courseID, err))
		}
		if err := settle(ctx, t.deps.Settle); err != nil {
			return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
		}
		selectTime := fmt.Sprintf(`for (const r of document.querySelectorAll('input[type="radio"]')) { if (r.value === %q) { r.click(); break; } }`, tenjinTimeOption)
		if err := page.Evaluate(ctx, selectTime, nil); err != nil {
			return availability.Snapshot{}, availability.AsScrapeFailure(key, fmt.Errorf("select duration: %w", err))
		}
		if err := settle(ctx, t.deps.Settle); err != nil {
			return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
		}

		text, err := page.Text(ctx)
		if err != nil {
			return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
		}
		html, err := page.HTML(ctx)
		if err != nil {
			return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
		}
		slots, err := ParseTenjinWeek(html, text, ref)
		if err != nil {
			return availability.Snapshot{}, &availability.ScrapeFailure{Source: key, Cause: availability.CauseStructure, Err: err}
		}

		count := 0
		for _, date := range window {
			snap.AddRoom(date, room.name)
		}
		for date, times := range slots {
			if !want[date] {
				continue
			}
			for _, slot := range times {
				snap.AddSlot(date, room.name, slot)
				count++
			}
		}
		t.deps.Logger.Debug("tenjin room parsed", zap.String("room", string(room.name)), zap.Int("slots", count))
	}

	snap.Normalize(window, availability.Lexical)
	return snap, nil
}

// ParseTenjinWeek extracts open slots from one rendered weekly grid. The week's
// first day comes from the "M/D～ M/D" range in the page text.
func ParseTenjinWeek(html, text string, ref time.Time) (map[availability.DateKey][]availability.TimeSlot, error) {
	m := tenjinWeekRange.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("week range not found in calendar text")
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	first, err := availability.InferDate(month, day, ref)
	if err != nil {
		return nil, fmt.Errorf("week start: %w", err)
	}
	start, err := first.Time(time.UTC)
	if err != nil {
		return nil, err
	}
	dates := make([]availability.DateKey, 7)
	for i := range dates {
		dates[i] = availability.NewDateKey(start.AddDate(0, 0, i))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse calendar html: %w", err)
	}

	out := map[availability.DateKey][]availability.TimeSlot{}
	doc.Find(".tbl_rsv tbody tr, table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		startLabel := strings.TrimSpace(cells.First().Text())
		if !tenjinStartTime.MatchString(startLabel) {
			return
		}
		slot, err := availability.SlotRange(startLabel, tenjinSlotLength)
		if err != nil {
			return
		}
		cells.Each(func(i int, cell *goquery.Selection) {
			if i == 0 || i-1 >= len(dates) {
				return
			}
			open := strings.Contains(cell.Text(), "●") ||
				cell.Find(`.rsv_ok, .available, [class*="ok"]`).Length() > 0
			if !open {
				return
			}
			date := dates[i-1]
			for _, existing := range out[date] {
				if existing == slot {
					return
				}
			}
			out[date] = append(out[date], slot)
		})
	})
	return out, nil
}
