package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Named reporting periods
const (
	PeriodToday   = "today"
	PeriodWeekly  = "weekly"  // the 7 local days ending today
	PeriodMonthly = "monthly" // the current calendar month
)

const dateLayout = "2006-01-02"

// Window bounds a created_at range; a nil side is open. The zero Window is all time.
type Window struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// IsAllTime reports whether the window is unbounded
func (w Window) IsAllTime() bool {
	return w.From == nil && w.To == nil
}

// Scope restricts a query to rows whose column falls inside the window
func (w Window) Scope(column string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if w.From != nil {
			db = db.Where(column+" >= ?", w.From.UTC())
		}
		if w.To != nil {
			db = db.Where(column+" <= ?", w.To.UTC())
		}
		return db
	}
}

// ResolveWindow turns request filters into a window on local day boundaries in loc.
// An explicit from/to (YYYY-MM-DD) wins over a named period; no filter at all means
// all time.
func ResolveWindow(period, from, to string, loc *time.Location, now time.Time) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)

	if from != "" || to != "" {
		var w Window
		if from != "" {
			d, err := time.ParseInLocation(dateLayout, from, loc)
			if err != nil {
				return Window{}, fmt.Errorf("invalid from date %q", from)
			}
			start := startOfDay(d)
			w.From = &start
		}
		if to != "" {
			d, err := time.ParseInLocation(dateLayout, to, loc)
			if err != nil {
				return Window{}, fmt.Errorf("invalid to date %q", to)
			}
			end := endOfDay(d)
			w.To = &end
		}
		if w.From != nil && w.To != nil && w.To.Before(*w.From) {
			return Window{}, fmt.Errorf("from %s is after to %s", from, to)
		}
		return w, nil
	}

	today := now.In(loc)
	var start, end time.Time
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "":
		return Window{}, nil
	case PeriodToday:
		start, end = startOfDay(today), endOfDay(today)
	case PeriodWeekly:
		start, end = startOfDay(today.AddDate(0, 0, -6)), endOfDay(today)
	case PeriodMonthly:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		start, end = first, endOfDay(first.AddDate(0, 1, -1))
	default:
		return Window{}, fmt.Errorf("unknown period %q", period)
	}
	return Window{From: &start, To: &end}, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// endOfDay is 23:59:59.999 local time
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// LoadLocation resolves a tenant timezone, falling back to fallback and then UTC
func LoadLocation(name, fallback string) *time.Location {
	for _, n := range []string{name, fallback} {
		if n == "" {
			continue
		}
		if loc, err := time.LoadLocation(n); err == nil {
			return loc
		}
	}
	return time.UTC
}
