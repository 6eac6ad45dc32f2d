package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SlotSeparator joins the start and end of a slot label.
const SlotSeparator = "〜"

var slotReplacer = strings.NewReplacer("～", SlotSeparator, "~", SlotSeparator)

// NormalizeSlot trims s and unifies range separators.
func NormalizeSlot(s string) TimeSlot {
	return TimeSlot(slotReplacer.Replace(strings.TrimSpace(s)))
}

// SlotRange builds "HH:MM〜HH:MM" from a start clock and a duration, wrapping past midnight.
func SlotRange(start string, d time.Duration) (TimeSlot, error) {
	minutes, err := clockMinutes(start)
	if err != nil {
		return "", err
	}
	end := (minutes + int(d/time.Minute)) % (24 * 60)
	return TimeSlot(fmt.Sprintf("%02d:%02d%s%02d:%02d",
		minutes/60, minutes%60, SlotSeparator, end/60, end%60)), nil
}

// StartMinutes returns the minutes after midnight at which slot starts.
func StartMinutes(slot TimeSlot) (int, bool) {
	start, _, _ := strings.Cut(string(slot), SlotSeparator)
	m, err := clockMinutes(start)
	if err != nil {
		return 0, false
	}
	return m, true
}

// ByStart orders slots by start time. Slots starting before nightCutoffHour are
// ordered after the rest of the day. Unparseable labels sort last, lexically.
func ByStart(nightCutoffHour int) func(a, b TimeSlot) bool {
	key := func(s TimeSlot) (int, bool) {
		m, ok := StartMinutes(s)
		if !ok {
			return 0, false
		}
		if m < nightCutoffHour*60 {
			m += 24 * 60
		}
		return m, true
	}
	return func(a, b TimeSlot) bool {
		ka, okA := key(a)
		kb, okB := key(b)
		switch {
		case okA && okB:
			if ka != kb {
				return ka < kb
			}
			return a < b
		case okA != okB:
			return okA
		default:
			return a < b
		}
	}
}

// Lexical orders slots by their raw label.
func Lexical(a, b TimeSlot) bool {
	return a < b
}

func clockMinutes(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}
