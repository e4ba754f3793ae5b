package engine

import (
	"time"
)

// nyLoc is the exchange clock for market-hours decisions.
var nyLoc = mustLoadLocation("America/New_York")

// Calendar answers whether the US equity market trades on a given date,
// with operator-supplied extra closures on top of the NYSE schedule.
type Calendar struct {
	extra map[string]bool // YYYYMMDD
}

// NewCalendar builds a calendar with the given extra holidays (YYYYMMDD).
func NewCalendar(extraHolidays []string) *Calendar {
	extra := make(map[string]bool, len(extraHolidays))
	for _, d := range extraHolidays {
		extra[d] = true
	}
	return &Calendar{extra: extra}
}

// IsTradingDay reports whether the NYSE is open on the date of t,
// evaluated on the New York calendar.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	d := t.In(nyLoc)
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if c.extra[d.Format("20060102")] {
		return false
	}
	return !isNYSEHoliday(d)
}

func isNYSEHoliday(d time.Time) bool {
	y, m, day := d.Date()
	switch {
	case m == time.January && day == 1: // New Year's Day
		return true
	case m == time.January && dayOfNthWeekday(y, time.January, time.Monday, 3) == day: // MLK Day
		return true
	case m == time.February && dayOfNthWeekday(y, time.February, time.Monday, 3) == day: // Washington's Birthday
		return true
	case m == time.May && lastWeekdayOfMonth(y, time.May, time.Monday) == day: // Memorial Day
		return true
	case m == time.June && day == 19: // Juneteenth
		return true
	case m == time.July && day == 4: // Independence Day
		return true
	case m == time.September && dayOfNthWeekday(y, time.September, time.Monday, 1) == day: // Labor Day
		return true
	case m == time.November && dayOfNthWeekday(y, time.November, time.Thursday, 4) == day: // Thanksgiving
		return true
	case m == time.December && day == 25: // Christmas
		return true
	}
	gm, gd := goodFriday(y)
	if m == gm && day == gd {
		return true
	}
	return observedShift(d)
}

// observedShift covers fixed-date holidays landing on a weekend: the
// exchange closes the adjacent Friday or Monday.
func observedShift(d time.Time) bool {
	fixed := func(t time.Time) bool {
		_, m, day := t.Date()
		switch {
		case m == time.January && day == 1,
			m == time.June && day == 19,
			m == time.July && day == 4,
			m == time.December && day == 25:
			return true
		}
		return false
	}
	if d.Weekday() == time.Friday && fixed(d.AddDate(0, 0, 1)) {
		return true
	}
	if d.Weekday() == time.Monday && fixed(d.AddDate(0, 0, -1)) {
		return true
	}
	return false
}

// dayOfNthWeekday is the day-of-month of the nth given weekday.
func dayOfNthWeekday(year int, month time.Month, wd time.Weekday, n int) int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return 1 + offset + (n-1)*7
}

// lastWeekdayOfMonth is the day-of-month of the last given weekday.
func lastWeekdayOfMonth(year int, month time.Month, wd time.Weekday) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.Day() - offset
}

// goodFriday is two days before Easter Sunday, which the anonymous
// Gregorian computus locates.
func goodFriday(year int) (time.Month, int) {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1

	easter := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	gf := easter.AddDate(0, 0, -2)
	return gf.Month(), gf.Day()
}
