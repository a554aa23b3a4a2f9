package bizdate

import (
	"fmt"
	"strings"
	"time"
)

// Span is an inclusive run of business days.
type Span struct {
	From time.Time
	To   time.Time
}

// ParseSpan parses desde/hasta. An empty desde means today and an empty hasta
// means desde. maxDays <= 0 disables the length check.
func ParseSpan(desde string, hasta string, now time.Time, maxDays int) (Span, error) {
	if strings.TrimSpace(desde) == "" {
		desde = "today"
	}
	from, err := ParseDay(desde, now)
	if err != nil {
		return Span{}, err
	}
	to := from
	if strings.TrimSpace(hasta) != "" {
		to, err = ParseDay(hasta, now)
		if err != nil {
			return Span{}, err
		}
	}
	if from.After(to) {
		return Span{}, fmt.Errorf("%w: desde %s is after hasta %s", ErrInvalidRange, FormatDay(from), FormatDay(to))
	}

	span := Span{From: from, To: to}
	if maxDays > 0 && span.Len() > maxDays {
		return Span{}, fmt.Errorf("%w: %d days requested, at most %d allowed", ErrInvalidRange, span.Len(), maxDays)
	}
	return span, nil
}

// SingleDay is a one-day span.
func SingleDay(day time.Time) Span {
	d := midnight(day.In(Location))
	return Span{From: d, To: d}
}

func (s Span) Len() int {
	return len(s.Days())
}

func (s Span) Days() []time.Time {
	days := make([]time.Time, 0, 1)
	for d := midnight(s.From.In(Location)); !d.After(s.To); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Range covers the whole span in one inclusive epoch range.
func (s Span) Range() Range {
	return Range{FIni: DayRange(s.From).FIni, FFin: DayRange(s.To).FFin}
}

// Tiles splits the span into the ranges requested upstream: one per day when
// daily is set, otherwise a single range. Tiles never overlap or leave gaps.
func (s Span) Tiles(daily bool) []Range {
	if !daily {
		return []Range{s.Range()}
	}
	days := s.Days()
	tiles := make([]Range, 0, len(days))
	for _, d := range days {
		tiles = append(tiles, DayRange(d))
	}
	return tiles
}

// Contains reports whether the YYYY-MM-DD day falls inside the span. Strings
// that are not calendar dates are never inside.
func (s Span) Contains(day string) bool {
	return IsDay(day) && day >= FormatDay(s.From) && day <= FormatDay(s.To)
}

func (s Span) FromDay() string { return FormatDay(s.From) }

func (s Span) ToDay() string { return FormatDay(s.To) }
