// Package cycle computes the household billing cycles. A cycle starts on the
// 11th of a month at 00:00 and ends on the 10th of the following month at
// 23:59:59, both inclusive.
package cycle

import (
	"fmt"
	"strings"
	"time"

	"kharch/internal/core"
)

const (
	StartDay = 11
	EndDay   = 10

	keyLayout = "2006-01-02"
)

// Cycle is one 11th-to-10th billing period.
type Cycle struct {
	Start     time.Time
	End       time.Time
	IsCurrent bool
}

// Current returns the cycle containing today, evaluated in today's location.
// Day 10 still belongs to the cycle that started in the previous month.
func Current(today time.Time) Cycle {
	c := anchoredAt(startMonth(today), today.Location())
	c.IsCurrent = c.Contains(today)
	return c
}

// Recent returns count cycles, most recent first. Element 0 is the current
// cycle and element i starts i months before it.
func Recent(count int, today time.Time) []Cycle {
	if count <= 0 {
		return []Cycle{}
	}
	first := startMonth(today)
	out := make([]Cycle, 0, count)
	for i := 0; i < count; i++ {
		c := anchoredAt(first.AddDate(0, -i, 0), today.Location())
		c.IsCurrent = c.Contains(today)
		out = append(out, c)
	}
	return out
}

// For returns the cycle containing t after normalizing t to midday of its
// calendar day. IsCurrent is evaluated against now.
func For(t, now time.Time) Cycle {
	t = Midday(t)
	c := anchoredAt(startMonth(t), t.Location())
	c.IsCurrent = c.Contains(now)
	return c
}

// ParseKey rebuilds a cycle from its Key in loc. The key must name a real
// day-11 start and the matching day-10 end.
func ParseKey(key string, loc *time.Location, now time.Time) (Cycle, error) {
	if loc == nil {
		loc = time.Local
	}
	startRaw, endRaw, ok := strings.Cut(key, "_")
	if !ok {
		return Cycle{}, fmt.Errorf("%w: %q", core.ErrInvalidCycleKey, key)
	}
	start, err := time.ParseInLocation(keyLayout, startRaw, loc)
	if err != nil || start.Day() != StartDay {
		return Cycle{}, fmt.Errorf("%w: %q", core.ErrInvalidCycleKey, key)
	}
	c := anchoredAt(start, loc)
	if c.End.Format(keyLayout) != endRaw {
		return Cycle{}, fmt.Errorf("%w: %q", core.ErrInvalidCycleKey, key)
	}
	c.IsCurrent = c.Contains(now)
	return c, nil
}

// Key identifies the cycle by its start and end dates, e.g. "2025-01-11_2025-02-10".
func (c Cycle) Key() string {
	return c.Start.Format(keyLayout) + "_" + c.End.Format(keyLayout)
}

// Label is the human form used on screen and in printed reports,
// e.g. "11 Jan 2025 - 10 Feb 2025".
func (c Cycle) Label() string {
	return c.Start.Format("02 Jan 2006") + " - " + c.End.Format("02 Jan 2006")
}

// ShortLabel is the compact form used in file names, e.g. "Jan11-Feb10-2025".
func (c Cycle) ShortLabel() string {
	return c.Start.Format("Jan02") + "-" + c.End.Format("Jan02") + "-" + c.End.Format("2006")
}

// Contains reports whether t falls inside [Start, End].
func (c Cycle) Contains(t time.Time) bool {
	return !t.Before(c.Start) && !t.After(c.End)
}

// ContainsDate reports whether the calendar day of t, taken at midday in the
// cycle's location, falls inside the cycle.
func (c Cycle) ContainsDate(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	return c.Contains(Midday(t.In(c.Start.Location())))
}

// Days is the number of calendar days in the cycle, both ends included.
func (c Cycle) Days() int {
	s := time.Date(c.Start.Year(), c.Start.Month(), c.Start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(c.End.Year(), c.End.Month(), c.End.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours()/24) + 1
}

// Previous returns the cycle immediately before c.
func (c Cycle) Previous(now time.Time) Cycle {
	p := anchoredAt(c.Start.AddDate(0, -1, 0), c.Start.Location())
	p.IsCurrent = p.Contains(now)
	return p
}

// Midday moves t to 12:00 of its calendar day in t's location, so that
// timezone shifts of a few hours never move a date across a cycle boundary.
func Midday(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, t.Location())
}

// startMonth returns the first day of the month in which the cycle containing
// t starts.
func startMonth(t time.Time) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	if t.Day() > EndDay {
		return first
	}
	return first.AddDate(0, -1, 0)
}

func anchoredAt(month time.Time, loc *time.Location) Cycle {
	y, m := month.Year(), month.Month()
	return Cycle{
		Start: time.Date(y, m, StartDay, 0, 0, 0, 0, loc),
		End:   time.Date(y, m+1, EndDay, 23, 59, 59, 0, loc),
	}
}
