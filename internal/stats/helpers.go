package stats

import (
	"math"
	"time"
)

const dateLayout = "2006-01-02"

var dayLayouts = []string{dateLayout, time.RFC3339, "2006-01-02T15:04", "2006-01-02T15:04:05"}

var hourLayouts = []string{"2006-01-02T15:04", time.RFC3339, "2006-01-02T15:04:05"}

// rainAmount prefers the rain measurement and falls back to total
// precipitation, then to zero.
func rainAmount(rain, precip *float64) float64 {
	switch {
	case rain != nil:
		return *rain
	case precip != nil:
		return *precip
	default:
		return 0
	}
}

type monthDay struct {
	month time.Month
	day   int
}

func monthDayOf(t time.Time) monthDay {
	return monthDay{month: t.Month(), day: t.Day()}
}

// parseDay reads a date string as a calendar date. Values carrying an offset
// keep the calendar day written in the string.
func parseDay(s string) (time.Time, bool) {
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// hourOf returns the local hour of an hourly timestamp.
func hourOf(s string) (int, bool) {
	for _, layout := range hourLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), true
		}
	}
	return 0, false
}

// ParseDate parses a YYYY-MM-DD query date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func floatAt(values []*float64, i int) *float64 {
	if i < 0 || i >= len(values) {
		return nil
	}
	return values[i]
}

func intAt(values []*int, i int) *int {
	if i < 0 || i >= len(values) {
		return nil
	}
	return values[i]
}

// roundHalfUp rounds .5 towards positive infinity.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
