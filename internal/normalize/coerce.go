package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"invusync/backend/internal/bizdate"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 10_000_000_000

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"02/01/2006",
	"02/01/2006 15:04:05",
	time.RFC1123,
	time.RFC1123Z,
}

// Number accepts JSON numbers and numeric strings. Empty strings, NaN and
// infinities are not numeric.
func Number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func Count(v any) (int, bool) {
	f, ok := Number(v)
	if !ok || f < 0 {
		return 0, false
	}
	return int(math.Round(f)), true
}

func PositiveCount(v any) (int, bool) {
	n, ok := Count(v)
	if !ok || n <= 0 {
		return 0, false
	}
	return n, true
}

func ArrayLen(v any) (int, bool) {
	arr, ok := v.([]any)
	if !ok {
		return 0, false
	}
	return len(arr), true
}

func Identifier(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		s := strings.TrimSpace(id)
		return s, s != ""
	case json.Number:
		return id.String(), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	}
	return "", false
}

// Day resolves a date-ish value to YYYY-MM-DD in the business timezone.
// Calendar YYYY-MM-DD strings pass through, other strings go through the generic
// layouts, and numbers are epoch seconds or milliseconds by magnitude.
func Day(v any) (string, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", false
		}
		if bizdate.IsDay(s) {
			return s, true
		}
		if t, ok := parseDateString(s); ok {
			return bizdate.FormatDay(t), true
		}
	}
	f, ok := Number(v)
	if !ok {
		return "", false
	}
	return epochDay(f)
}

func parseDateString(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, bizdate.Location); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func epochDay(f float64) (string, bool) {
	if f <= 0 {
		return "", false
	}
	if f > epochMillisThreshold {
		ms := int64(f)
		return bizdate.FormatDay(time.UnixMilli(ms)), true
	}
	return bizdate.DayOf(int64(f)), true
}
