package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Currency coerces currency-ish values ("$1,234.50", "Free", 42) into a
// float amount.
func Currency(value any, _ RawRecord) (any, error) {
	if f, ok := toFloat(value); ok {
		return f, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("currency: unsupported type %T", value)
	}
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "free" {
		return 0.0, nil
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("currency: parse %q: %w", s, err)
	}
	return f, nil
}

// Integer coerces numeric-ish values ("12", 12.0) into an int.
func Integer(value any, _ RawRecord) (any, error) {
	if f, ok := toFloat(value); ok {
		return int(f), nil
	}
	return nil, fmt.Errorf("integer: unsupported value %v", value)
}

var dayAbbrevs = map[string]string{
	"mon": "Mon", "monday": "Mon",
	"tue": "Tue", "tues": "Tue", "tuesday": "Tue",
	"wed": "Wed", "weds": "Wed", "wednesday": "Wed",
	"thu": "Thu", "thur": "Thu", "thurs": "Thu", "thursday": "Thu",
	"fri": "Fri", "friday": "Fri",
	"sat": "Sat", "saturday": "Sat",
	"sun": "Sun", "sunday": "Sun",
}

// Days canonicalizes day-of-week names into deduplicated three-letter
// abbreviations. Accepts a list or a delimited string
// ("Monday, Wednesday & Friday").
func Days(value any, _ RawRecord) (any, error) {
	var names []string
	switch v := value.(type) {
	case string:
		names = splitDays(v)
	case []string:
		names = v
	case []any:
		for _, item := range v {
			if s, ok := toString(item); ok {
				names = append(names, s)
			}
		}
	default:
		return nil, fmt.Errorf("days: unsupported type %T", value)
	}

	var out []string
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		abbrev, ok := dayAbbrevs[strings.ToLower(strings.TrimSpace(name))]
		if !ok || seen[abbrev] {
			continue
		}
		seen[abbrev] = true
		out = append(out, abbrev)
	}
	return out, nil
}

func splitDays(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '&' || r == '/' || r == ';'
	})
}

// DateTime parses date strings in the formats sources are known to
// emit. Unparsable values normalize to nil rather than erroring, so a
// bad date never drops the whole record.
func DateTime(value any, _ RawRecord) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		if t, ok := ParseDateTime(v); ok {
			return t, nil
		}
		return nil, nil
	}
	return nil, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	// "Jan 2, 2006 7:30pm" with and without a space before the meridiem.
	"Jan 2, 2006 3:04pm",
	"Jan 2, 2006 3:04 pm",
	"January 2, 2006 3:04pm",
	"January 2, 2006 3:04 pm",
	"Jan 2, 2006",
	"January 2, 2006",
}

var meridiemReplacer = strings.NewReplacer("AM", "am", "PM", "pm", "Am", "am", "Pm", "pm")

// ParseDateTime tries each known layout in order; the first successful
// parse wins.
func ParseDateTime(s string) (time.Time, bool) {
	s = meridiemReplacer.Replace(strings.TrimSpace(s))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func toBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return b, true
	}
	return false, false
}
