// Package dateutil provides the leap-year-safe, total date arithmetic
// primitives the scheduling engine is built on. Every function here is
// pure and terminates for any input; there is no error return because
// there is no invalid input that cannot be resolved by a defined fallback.
package dateutil

import "time"

// SafeDate returns the date (y, m, d), falling back to (y, 2, 28) when
// (y, 2, 29) is requested for a non-leap year y. This mirrors the
// source system's try_create_date: Feb-29 anchors are never dropped,
// only folded onto Feb-28 in years that lack a 29th.
func SafeDate(y, m, d int) time.Time {
	if m == 2 && d == 29 && !IsLeapYear(y) {
		d = 28
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

// IsLeapYear applies the standard Gregorian leap-year rule.
func IsLeapYear(y int) bool {
	if y%400 == 0 {
		return true
	}
	if y%100 == 0 {
		return false
	}
	return y%4 == 0
}

// IsMonthEnd reports whether d is the last day of its month: true iff
// the following day falls on the first of the next month.
func IsMonthEnd(d time.Time) bool {
	next := d.AddDate(0, 0, 1)
	return next.Day() == 1
}

// YearlyOccurrences enumerates the yearly recurrences of anchor's
// month/day across every year touched by [from, to], inclusive,
// applying the Feb-29 fallback, then filters to occurrences inside
// [from, to]. Results are ascending.
func YearlyOccurrences(anchor, from, to time.Time) []time.Time {
	if to.Before(from) {
		return nil
	}
	month := int(anchor.Month())
	day := anchor.Day()

	var out []time.Time
	for y := from.Year() - 1; y <= to.Year()+1; y++ {
		occ := SafeDate(y, month, day)
		if !occ.Before(from) && !occ.After(to) {
			out = append(out, occ)
		}
	}
	return out
}

// StartOfMonth returns the first day of d's month.
func StartOfMonth(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// EndOfMonth returns the last day of d's month.
func EndOfMonth(d time.Time) time.Time {
	return StartOfMonth(d).AddDate(0, 1, 0).AddDate(0, 0, -1)
}

// DateOnly truncates t to midnight UTC, the canonical comparison form
// used throughout the scheduling engine.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// InRange reports whether d falls within [from, to], inclusive.
func InRange(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}
