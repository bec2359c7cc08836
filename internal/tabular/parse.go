package tabular

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Values treated as null when decoding cells, matching what spreadsheet
// exports commonly emit for missing data.
var nullTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"null": {},
	"none": {},
}

func IsNullToken(s string) bool {
	_, ok := nullTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

var boolTokens = map[string]bool{
	"true":  true,
	"1":     true,
	"yes":   true,
	"y":     true,
	"false": false,
	"0":     false,
	"no":    false,
	"n":     false,
}

// ParseBool accepts the fixed case-insensitive boolean token set
// {true,false,1,0,yes,no,y,n}.
func ParseBool(s string) (bool, bool) {
	v, ok := boolTokens[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

func ParseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsIntegral reports whether a float carries no fractional remainder.
func IsIntegral(f float64) bool {
	return math.Abs(f-math.Round(f)) < 1e-9
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
