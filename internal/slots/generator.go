package slots

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"peran/internal/model"
)

// DefaultInterval is the slot step when the tenant does not configure one.
const DefaultInterval = 30

const minutesPerDay = 24 * 60

// Window is the resolved business window of a day, in minutes since midnight.
type Window struct {
	Open  int
	Close int
}

// Minutes returns the length of the window.
func (w Window) Minutes() int {
	return w.Close - w.Open
}

// Resolve finds the business window for date. Day specific hours win over the
// calendar fallback; an explicitly closed day never resolves. A day entry with
// both times is final even when they do not form a window. There is no
// built-in default window.
func Resolve(date time.Time, cfg *model.Settings) (Window, bool) {
	if cfg == nil {
		return Window{}, false
	}

	day := cfg.OpeningHours.For(date)
	if day.Closed() {
		return Window{}, false
	}
	if day != nil && day.Start != "" && day.End != "" {
		return window(day.Start, day.End)
	}

	if cb := cfg.CalendarBehavior; cb != nil && cb.StartTime != "" && cb.EndTime != "" {
		return window(cb.StartTime, cb.EndTime)
	}
	return Window{}, false
}

func window(start, end string) (Window, bool) {
	open, err := ParseClock(start)
	if err != nil {
		return Window{}, false
	}
	closing, err := ParseClock(end)
	if err != nil {
		return Window{}, false
	}
	// "00:00" as an end means closing at midnight.
	if closing == 0 {
		closing = minutesPerDay
	}
	if closing <= open {
		return Window{}, false
	}
	return Window{Open: open, Close: closing}, true
}

// Compute returns the free slots of length durationMin on date, in order.
// Bookings must already exclude canceled ones. Times are wall-clock minutes in
// date's location.
func Compute(date time.Time, durationMin int, bookings []model.Booking, cfg *model.Settings) []model.TimeSlot {
	if durationMin <= 0 {
		return nil
	}
	w, ok := Resolve(date, cfg)
	if !ok {
		return nil
	}
	interval := cfg.SlotInterval()

	var out []model.TimeSlot
	for m := w.Open; m < w.Close; m += interval {
		if m >= w.Close || m+durationMin > w.Close {
			continue
		}
		start := atMinute(date, m)
		end := atMinute(date, m+durationMin)
		if HasConflict(start, end, bookings) {
			continue
		}
		out = append(out, model.TimeSlot{
			Start:   start,
			End:     end,
			Display: start.Format("15:04"),
		})
	}
	return out
}

// Overlaps checks half-open [aStart, aEnd) against [bStart, bEnd).
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// HasConflict reports whether [start, end) overlaps any booking.
func HasConflict(start, end time.Time, bookings []model.Booking) bool {
	for i := range bookings {
		if Overlaps(start, end, bookings[i].Start, bookings[i].End) {
			return true
		}
	}
	return false
}

// Find returns the slot whose display matches hhmm.
func Find(slots []model.TimeSlot, hhmm string) (model.TimeSlot, bool) {
	for _, s := range slots {
		if s.Display == hhmm {
			return s, true
		}
	}
	return model.TimeSlot{}, false
}

// FindConsecutive groups slots whose starts follow each other by step.
func FindConsecutive(slots []model.TimeSlot, step time.Duration) [][]model.TimeSlot {
	if len(slots) == 0 {
		return nil
	}
	sorted := make([]model.TimeSlot, len(slots))
	copy(sorted, slots)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var groups [][]model.TimeSlot
	current := []model.TimeSlot{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start.Sub(current[len(current)-1].Start) == step {
			current = append(current, sorted[i])
		} else {
			groups = append(groups, current)
			current = []model.TimeSlot{sorted[i]}
		}
	}
	return append(groups, current)
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid time format: %s", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour: %w", err)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute: %w", err)
	}

	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute > 0) {
		return 0, fmt.Errorf("time out of range: %s", s)
	}
	return hour*60 + minute, nil
}

func atMinute(date time.Time, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, minute, 0, 0, date.Location())
}

// FormatDuration formats duration in minutes to human-readable string.
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d tim", hours)
	}
	return fmt.Sprintf("%d tim %d min", hours, mins)
}
