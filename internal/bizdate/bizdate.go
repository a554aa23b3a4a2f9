// Package bizdate translates business calendar days to the inclusive epoch
// second ranges the INVU API expects, and back.
package bizdate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const Layout = "2006-01-02"

// Location is the business timezone: UTC-5 all year.
var Location = time.FixedZone("UTC-5", -5*60*60)

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidRange = errors.New("invalid range")
)

var dayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Range is an inclusive [FIni, FFin] pair of Unix seconds.
type Range struct {
	FIni int64 `json:"fini"`
	FFin int64 `json:"ffin"`
}

// ParseDay resolves YYYY-MM-DD, "today" or "yesterday" to local midnight.
func ParseDay(raw string, now time.Time) (time.Time, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "today", "hoy":
		return midnight(now.In(Location)), nil
	case "yesterday", "ayer":
		return midnight(now.In(Location)).AddDate(0, 0, -1), nil
	}

	if !dayPattern.MatchString(value) {
		return time.Time{}, fmt.Errorf("%w: %q (expected YYYY-MM-DD)", ErrInvalidDate, raw)
	}
	day, err := time.ParseInLocation(Layout, value, Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	// time.Parse already rejects 2024-02-30, the round trip guards the
	// components against any normalization.
	if day.Format(Layout) != value {
		return time.Time{}, fmt.Errorf("%w: %q is not a calendar date", ErrInvalidDate, raw)
	}
	return day, nil
}

// IsDay reports whether s is a YYYY-MM-DD calendar date. 2024-04-31 matches
// the shape but is not a day.
func IsDay(s string) bool {
	if !dayPattern.MatchString(s) {
		return false
	}
	_, err := time.ParseInLocation(Layout, s, Location)
	return err == nil
}

// DayRange returns local midnight through 23:59:59 of day.
func DayRange(day time.Time) Range {
	start := midnight(day.In(Location))
	end := start.AddDate(0, 0, 1).Add(-time.Second)
	return Range{FIni: start.Unix(), FFin: end.Unix()}
}

// DayOf maps epoch seconds to the business day containing them.
func DayOf(epochSeconds int64) string {
	return time.Unix(epochSeconds, 0).In(Location).Format(Layout)
}

func FormatDay(t time.Time) string {
	return t.In(Location).Format(Layout)
}

// ParseRange builds a range from raw epoch strings, as accepted by the
// attendance proxy.
func ParseRange(fini int64, ffin int64) (Range, error) {
	if fini <= 0 || ffin <= 0 {
		return Range{}, fmt.Errorf("%w: fini and ffin must be positive", ErrInvalidRange)
	}
	if fini > ffin {
		return Range{}, fmt.Errorf("%w: fini %d after ffin %d", ErrInvalidRange, fini, ffin)
	}
	return Range{FIni: fini, FFin: ffin}, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
