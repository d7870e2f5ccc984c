// Package temporal validates the date and time fields of a work item and
// converts them to UTC publication instants. Dates are day/month order with a
// 2-digit year; times may carry a 12-hour meridiem suffix. The sheet is
// filled in local time at a fixed +05:30 offset.
package temporal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// offsetMinutes is the fixed local offset the sheet's dates are written in.
const offsetMinutes = 330

// ScheduleThreshold decides between immediate and scheduled publication: a
// target more than this far in the future is scheduled.
const ScheduleThreshold = 10 * time.Minute

// Date is a validated day/month/year value.
type Date struct {
	Day, Month, Year int // Year is the full 4-digit year
}

// Clock is a validated wall-clock time.
type Clock struct {
	Hour, Minute int
}

// ParseDate parses "d/m/yy". A month greater than 12 is rejected so that
// month/day-ordered input fails loudly instead of silently swapping fields.
func ParseDate(s string) (Date, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return Date{}, fmt.Errorf("invalid date %q: want d/m/yy", s)
	}
	day, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Date{}, fmt.Errorf("invalid day in %q", s)
	}
	month, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Date{}, fmt.Errorf("invalid month in %q", s)
	}
	year, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return Date{}, fmt.Errorf("invalid year in %q", s)
	}
	if day < 1 || day > 31 {
		return Date{}, fmt.Errorf("invalid date %q: day %d out of range", s, day)
	}
	if month < 1 || month > 12 {
		return Date{}, fmt.Errorf("invalid date %q: month %d out of range (dates are day/month order)", s, month)
	}
	if year < 0 || year > 99 {
		return Date{}, fmt.Errorf("invalid date %q: want 2-digit year", s)
	}
	return Date{Day: day, Month: month, Year: 2000 + year}, nil
}

// ParseClock parses "HH:MM" with an optional AM/PM suffix. 12 AM normalizes
// to hour 0, 12 PM stays 12, other PM hours add 12.
func ParseClock(s string) (Clock, error) {
	raw := strings.TrimSpace(s)
	upper := strings.ToUpper(raw)

	meridiem := ""
	for _, suffix := range []string{"AM", "PM"} {
		if strings.HasSuffix(upper, suffix) {
			meridiem = suffix
			raw = strings.TrimSpace(raw[:len(raw)-len(suffix)])
			break
		}
	}

	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	if minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid time %q: minute out of range", s)
	}

	switch meridiem {
	case "AM":
		if hour < 1 || hour > 12 {
			return Clock{}, fmt.Errorf("invalid time %q: hour out of range", s)
		}
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour < 1 || hour > 12 {
			return Clock{}, fmt.Errorf("invalid time %q: hour out of range", s)
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour < 0 || hour > 23 {
			return Clock{}, fmt.Errorf("invalid time %q: hour out of range", s)
		}
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// ToUTC composes a date and clock written at the fixed local offset into the
// corresponding UTC instant: the naive composition minus 330 minutes.
func ToUTC(d Date, c Clock) time.Time {
	naive := time.Date(d.Year, time.Month(d.Month), d.Day, c.Hour, c.Minute, 0, 0, time.UTC)
	return naive.Add(-offsetMinutes * time.Minute)
}

// ShouldSchedule reports whether target is far enough past now to use
// scheduled publication instead of posting immediately.
func ShouldSchedule(target, now time.Time) bool {
	return target.Sub(now) > ScheduleThreshold
}
