// Package calendar is the month-grid date picker. It marks past, fully booked
// and closed days as unselectable.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	monthNames = [...]string{
		"Januari", "Februari", "Mars", "April", "Maj", "Juni",
		"Juli", "Augusti", "September", "Oktober", "November", "December",
	}
	dayNames = [...]string{"söndag", "måndag", "tisdag", "onsdag", "torsdag", "fredag", "lördag"}
	// Weekdays are the grid column headers, Monday first.
	Weekdays = [7]string{"Mån", "Tis", "Ons", "Tor", "Fre", "Lör", "Sön"}
)

// ErrUnselectable is returned when picking a past, booked or closed day.
var ErrUnselectable = errors.New("date not selectable")

// Month is one page of the calendar.
type Month struct {
	Year  int
	Month time.Month
	Loc   *time.Location
}

// MonthOf returns the page containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month(), Loc: t.Location()}
}

// Parse reads a "YYYY-MM" page key.
func Parse(key string, loc *time.Location) (Month, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation("2006-01", key, loc)
	if err != nil {
		return Month{}, fmt.Errorf("parse month: %w", err)
	}
	return MonthOf(t), nil
}

func (m Month) loc() *time.Location {
	if m.Loc == nil {
		return time.Local
	}
	return m.Loc
}

// First returns midnight of the first day.
func (m Month) First() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, m.loc())
}

// Key is the "YYYY-MM" form used in callback data.
func (m Month) Key() string {
	return m.First().Format("2006-01")
}

// Title is the Swedish heading, e.g. "Januari 2026".
func (m Month) Title() string {
	return fmt.Sprintf("%s %d", monthNames[m.Month-1], m.Year)
}

// DayTitle formats t as e.g. "måndag 12 januari".
func DayTitle(t time.Time) string {
	return fmt.Sprintf("%s %d %s", dayNames[t.Weekday()], t.Day(), strings.ToLower(monthNames[t.Month()-1]))
}

// Prev returns the previous month, crossing years.
func (m Month) Prev() Month {
	return MonthOf(m.First().AddDate(0, -1, 0))
}

// Next returns the following month, crossing years.
func (m Month) Next() Month {
	return MonthOf(m.First().AddDate(0, 1, 0))
}

// Len returns the number of days in the month.
func (m Month) Len() int {
	return m.First().AddDate(0, 1, -1).Day()
}

// Offset is the number of leading blank cells in a Monday-first grid.
func (m Month) Offset() int {
	return (int(m.First().Weekday()) + 6) % 7
}

// Day is one date cell.
type Day struct {
	Date       time.Time
	Key        string // YYYY-MM-DD
	Past       bool
	Booked     bool
	Closed     bool
	Today      bool
	Selectable bool
}

// Days returns every date of the month. booked and closed are keyed by
// YYYY-MM-DD and may be nil.
func (m Month) Days(now time.Time, booked, closed map[string]bool) []Day {
	today := midnight(now.In(m.loc()))
	out := make([]Day, 0, m.Len())
	for d := m.First(); d.Month() == m.Month; d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		day := Day{
			Date:   d,
			Key:    key,
			Past:   d.Before(today),
			Booked: booked[key],
			Closed: closed[key],
			Today:  d.Equal(today),
		}
		day.Selectable = !day.Past && !day.Booked && !day.Closed
		out = append(out, day)
	}
	return out
}

// Weeks lays Days out in rows of seven, padding with nil cells.
func (m Month) Weeks(now time.Time, booked, closed map[string]bool) [][]*Day {
	days := m.Days(now, booked, closed)
	var (
		weeks [][]*Day
		row   []*Day
	)
	for i := 0; i < m.Offset(); i++ {
		row = append(row, nil)
	}
	for i := range days {
		row = append(row, &days[i])
		if len(row) == 7 {
			weeks = append(weeks, row)
			row = nil
		}
	}
	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, nil)
		}
		weeks = append(weeks, row)
	}
	return weeks
}

// HasSelectable reports whether any day of the month can be chosen.
func (m Month) HasSelectable(now time.Time, booked, closed map[string]bool) bool {
	for _, d := range m.Days(now, booked, closed) {
		if d.Selectable {
			return true
		}
	}
	return false
}

// Select validates a "YYYY-MM-DD" pick and returns its midnight in loc.
func Select(key string, now time.Time, booked, closed map[string]bool, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	date, err := time.ParseInLocation("2006-01-02", key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date: %w", err)
	}
	switch {
	case date.Before(midnight(now.In(loc))):
		return time.Time{}, fmt.Errorf("%w: %s is in the past", ErrUnselectable, key)
	case booked[key]:
		return time.Time{}, fmt.Errorf("%w: %s is fully booked", ErrUnselectable, key)
	case closed[key]:
		return time.Time{}, fmt.Errorf("%w: %s is closed", ErrUnselectable, key)
	}
	return date, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
