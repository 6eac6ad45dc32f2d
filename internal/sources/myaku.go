package sources

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
)

const myakuBaseURL = "https://spot-ly.jp/ja/hotels/176"

// Late-night slots sort after the evening ones.
const myakuNightCutoffHour = 7

type myakuPlan struct {
	times []availability.TimeSlot
	night bool
}

type myakuRoom struct {
	display availability.Room
	plans   map[string]myakuPlan
}

// myakuRooms is keyed by the room label in 【】 on the page; plans by the text after it.
var myakuRooms = map[string]myakuRoom{
	"休 -KYU-": {
		display: "休 KYU（90分/定員3名）¥5,500",
		plans: map[string]myakuPlan{
			"90分プラン（午後）": {times: []availability.TimeSlot{"11:30〜13:00", "13:30〜15:00", "15:30〜17:00", "17:30〜19:00", "19:30〜21:00"}},
		},
	},
	"水 -MIZU-": {
		display: "水 MIZU（90分/定員2名）¥5,500",
		plans: map[string]myakuPlan{
			"ナイトパック":     {times: []availability.TimeSlot{"01:00〜08:30"}, night: true},
			"90分プラン（午後）": {times: []availability.TimeSlot{"13:00〜14:30", "15:00〜16:30", "17:00〜18:30", "19:00〜20:30", "21:00〜22:30", "23:00〜00:30"}},
			"90分プラン（午前）": {times: []availability.TimeSlot{"09:00〜10:30", "11:00〜12:30"}},
		},
	},
	"火 -HI-": {
		display: "火 HI（90分/定員4名）¥5,500",
		plans: map[string]myakuPlan{
			"ナイトパック":     {times: []availability.TimeSlot{"00:30〜08:00"}, night: true},
			"90分プラン（午後）": {times: []availability.TimeSlot{"14:30〜16:00", "16:30〜18:00", "18:30〜20:00", "20:30〜22:00", "22:30〜00:00"}},
			"90分プラン（午前）": {times: []availability.TimeSlot{"08:30〜10:00", "10:30〜12:00", "12:30〜14:00"}},
		},
	},
}

var (
	myakuPlanHeader = regexp.MustCompile(`^【([^】]+)】(.+)$`)
	myakuDayLabel   = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})$`)
)

// MyakuPlanDay is one day cell of a plan calendar.
type MyakuPlanDay struct {
	Month, Day int
	Open       bool
}

// MyakuPlan is one 【room】plan block with its weekly ◯/✕ marks.
type MyakuPlan struct {
	Room string
	Plan string
	Days []MyakuPlanDay
}

// Myaku scrapes spot-ly's weekly plan calendars. Availability is per day, so an
// open day offers every fixed time of the plan.
type Myaku struct {
	deps Deps
}

// NewMyaku builds the adapter.
func NewMyaku(deps Deps) *Myaku {
	return &Myaku{deps: deps.withDefaults()}
}

// Source identifies the site.
func (m *Myaku) Source() availability.Source {
	return availability.Source{Key: "myaku", Name: "脈 -MYAKU PRIVATE SAUNA-", URL: myakuBaseURL}
}

// PageOptions starts static; the page is promoted if it renders client side.
func (m *Myaku) PageOptions() availability.PageOptions {
	return availability.PageOptions{UserAgent: m.deps.UserAgent}
}

// MyakuURL builds the calendar URL covering window.
func MyakuURL(window []availability.DateKey) string {
	if len(window) == 0 {
		return myakuBaseURL
	}
	const midnight = "+00%3A00%3A00"
	return fmt.Sprintf("%s?checkinDatetime=%s%s&checkoutDatetime=%s%s",
		myakuBaseURL, window[0], midnight, window[len(window)-1], midnight)
}

// Scrape reads all plan calendars from the page text.
func (m *Myaku) Scrape(ctx context.Context, page availability.Page, window []availability.DateKey) (availability.Snapshot, error) {
	key := m.Source().Key
	if err := page.Navigate(ctx, MyakuURL(window)); err != nil {
		return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
	}
	if err := settle(ctx, m.deps.Settle); err != nil {
		return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
	}
	text, err := page.Text(ctx)
	if err != nil {
		return availability.Snapshot{}, availability.AsScrapeFailure(key, err)
	}

	plans := ParseMyakuPlans(text)
	if len(plans) == 0 {
		return availability.Snapshot{}, availability.Fail(key, availability.CauseStructure, "no plan calendars in page text")
	}

	snap := availability.NewSnapshot(window)
	want := inWindow(window)
	ref := reference(window)
	for _, plan := range plans {
		room, ok := myakuRooms[plan.Room]
		if !ok {
			m.deps.Logger.Debug("myaku room skipped", zap.String("room", plan.Room))
			continue
		}
		info, ok := room.plans[plan.Plan]
		if !ok {
			m.deps.Logger.Debug("myaku plan skipped", zap.String("room", plan.Room), zap.String("plan", plan.Plan))
			continue
		}
		display := room.display
		if info.night {
			display = availability.Room(strings.Replace(string(display), "（90分", "（night", 1))
		}
		for _, date := range window {
			snap.AddRoom(date, display)
		}
		for _, day := range plan.Days {
			date, err := availability.InferDate(day.Month, day.Day, ref)
			if err != nil || !want[date] {
				continue
			}
			snap.AddRoom(date, display)
			if !day.Open {
				continue
			}
			for _, slot := range info.times {
				snap.AddSlot(date, display, slot)
			}
		}
	}
	if snap.Empty() {
		return availability.Snapshot{}, availability.Fail(key, availability.CauseStructure, "no known rooms among %d plans", len(plans))
	}

	snap.Normalize(window, availability.ByStart(myakuNightCutoffHour))
	return snap, nil
}

// ParseMyakuPlans reads 【room】plan headers followed by "M/D" lines each
// followed by a ◯ or ✕ line.
func ParseMyakuPlans(text string) []MyakuPlan {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	var plans []MyakuPlan
	var cur *MyakuPlan
	flush := func() {
		if cur != nil && len(cur.Days) > 0 {
			plans = append(plans, *cur)
		}
		cur = nil
	}
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if h := myakuPlanHeader.FindStringSubmatch(line); h != nil {
			flush()
			cur = &MyakuPlan{Room: strings.TrimSpace(h[1]), Plan: strings.TrimSpace(h[2])}
			continue
		}
		if cur == nil || len(cur.Days) >= 7 || i+1 >= len(lines) {
			continue
		}
		d := myakuDayLabel.FindStringSubmatch(line)
		if d == nil {
			continue
		}
		open, ok := myakuMark(lines[i+1])
		if !ok {
			continue
		}
		month, _ := strconv.Atoi(d[1])
		day, _ := strconv.Atoi(d[2])
		cur.Days = append(cur.Days, MyakuPlanDay{Month: month, Day: day, Open: open})
		i++
	}
	flush()
	return plans
}

func myakuMark(s string) (open, ok bool) {
	switch s {
	case "◯", "○":
		return true, true
	case "✕", "×":
		return false, true
	default:
		return false, false
	}
}
