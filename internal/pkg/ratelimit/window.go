package ratelimit

import "time"

// Window granularities form a fixed set; limits attach per variant.
type Window int

const (
	WindowSecond Window = iota
	WindowMinute
	WindowQuarter15Min
	WindowHour
	WindowDay
	WindowMonth
)

func (w Window) String() string {
	switch w {
	case WindowSecond:
		return "second"
	case WindowMinute:
		return "minute"
	case WindowQuarter15Min:
		return "15-minute"
	case WindowHour:
		return "hour"
	case WindowDay:
		return "day"
	case WindowMonth:
		return "month"
	default:
		return "unknown"
	}
}

// Request categories with distinct window sets and limits.
type Category int

const (
	CategoryPublish Category = iota
	CategoryRead
)

func (c Category) String() string {
	if c == CategoryRead {
		return "read"
	}
	return "publish"
}

// Windows each category meters, shortest granularity first, so the
// tightest-binding constraint is always reported first.
func activeWindows(category Category) []Window {
	if category == CategoryRead {
		return []Window{WindowSecond, WindowMinute, WindowQuarter15Min, WindowHour}
	}
	return []Window{WindowSecond, WindowMinute, WindowHour, WindowDay, WindowMonth}
}

// Start of the next calendar-aligned bucket after now: top of the next
// second, minute, quarter hour, hour, day, or the first of the next
// month. Boundaries are computed in now's own location.
func nextBoundary(w Window, now time.Time) time.Time {
	year, month, day := now.Date()
	hour, minute, second := now.Clock()
	loc := now.Location()

	switch w {
	case WindowSecond:
		return time.Date(year, month, day, hour, minute, second, 0, loc).Add(time.Second)
	case WindowMinute:
		return time.Date(year, month, day, hour, minute, 0, 0, loc).Add(time.Minute)
	case WindowQuarter15Min:
		quarter := minute - minute%15
		return time.Date(year, month, day, hour, quarter, 0, 0, loc).Add(15 * time.Minute)
	case WindowHour:
		return time.Date(year, month, day, hour, 0, 0, 0, loc).Add(time.Hour)
	case WindowDay:
		return time.Date(year, month, day, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	case WindowMonth:
		return time.Date(year, month, 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
	default:
		return now.Add(time.Second)
	}
}

// Per-window counter. resetAt always holds the start of the next
// aligned bucket, never a sliding offset.
type rateWindow struct {
	window  Window
	limit   int
	count   int
	resetAt time.Time
}

// Counter set for one category, ordered shortest to longest.
type windowSet struct {
	windows []*rateWindow
}

// Request limits per window granularity; a zero limit disables the
// window entirely.
type Limits struct {
	PerSecond  int
	PerMinute  int
	PerQuarter int
	PerHour    int
	PerDay     int
	PerMonth   int
}

func (l Limits) forWindow(w Window) int {
	switch w {
	case WindowSecond:
		return l.PerSecond
	case WindowMinute:
		return l.PerMinute
	case WindowQuarter15Min:
		return l.PerQuarter
	case WindowHour:
		return l.PerHour
	case WindowDay:
		return l.PerDay
	case WindowMonth:
		return l.PerMonth
	default:
		return 0
	}
}

func newWindowSet(category Category, limits Limits, now time.Time) *windowSet {
	set := &windowSet{}
	for _, w := range activeWindows(category) {
		limit := limits.forWindow(w)
		if limit <= 0 {
			continue
		}
		set.windows = append(set.windows, &rateWindow{
			window:  w,
			limit:   limit,
			resetAt: nextBoundary(w, now),
		})
	}
	return set
}

// Resets every window whose boundary has passed. Lazy: nothing advances
// until a check or record call observes the clock.
func (s *windowSet) rollover(now time.Time) {
	for _, w := range s.windows {
		if !now.Before(w.resetAt) {
			w.count = 0
			w.resetAt = nextBoundary(w.window, now)
		}
	}
}

// Returns the first window at or past its limit, shortest first.
func (s *windowSet) exhausted() *rateWindow {
	for _, w := range s.windows {
		if w.count >= w.limit {
			return w
		}
	}
	return nil
}

func (s *windowSet) increment() {
	for _, w := range s.windows {
		w.count++
	}
}
