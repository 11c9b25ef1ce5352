// Package analytics computes windowed aggregations over the per-tenant
// event store for dashboards and budget enrichment.
package analytics

import (
	"fmt"
	"time"
)

// Window is a half-open UTC time range [Start, End). A zero Start means
// unbounded (all time).
type Window struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Window names accepted by ParseWindow.
const (
	WindowAllTime    = "all_time"
	WindowToday      = "today"
	WindowLast2Weeks = "last_2_weeks"
	WindowThisWeek   = "this_week"
	WindowThisMonth  = "this_month"
)

// ParseWindow resolves a window name against now (UTC). this_week starts
// Monday.
func ParseWindow(name string, now time.Time) (Window, error) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch name {
	case "", WindowAllTime:
		return Window{Name: WindowAllTime, End: now}, nil
	case WindowToday:
		return Window{Name: WindowToday, Start: midnight, End: now}, nil
	case WindowLast2Weeks:
		return Window{Name: WindowLast2Weeks, Start: midnight.AddDate(0, 0, -14), End: now}, nil
	case WindowThisWeek:
		// Monday 00:00 UTC of the current week.
		offset := (int(now.Weekday()) + 6) % 7
		return Window{Name: WindowThisWeek, Start: midnight.AddDate(0, 0, -offset), End: now}, nil
	case WindowThisMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Window{Name: WindowThisMonth, Start: start, End: now}, nil
	default:
		return Window{}, fmt.Errorf("unknown window %q", name)
	}
}

// MonthToDate returns [first of month, now).
func MonthToDate(now time.Time) Window {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Window{Name: WindowThisMonth, Start: start, End: now}
}

// Midnight returns today's 00:00 UTC relative to now.
func Midnight(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
