package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

var months = map[string]time.Month{
	"january": 1, "jan": 1,
	"february": 2, "feb": 2,
	"march": 3, "mar": 3,
	"april": 4, "apr": 4,
	"may":  5,
	"june": 6, "jun": 6,
	"july": 7, "jul": 7,
	"august": 8, "aug": 8,
	"september": 9, "sep": 9, "sept": 9,
	"october": 10, "oct": 10,
	"november": 11, "nov": 11,
	"december": 12, "dec": 12,
}

var (
	agoRe       = regexp.MustCompile(`^(\d+)\s+(day|week|month|year)s?\s+ago$`)
	shorthandRe = regexp.MustCompile(`^(\d+)([dwmy])$`)
	relativeRe  = regexp.MustCompile(`^(last|this)\s+(week|month|year)$`)
	yearRe      = regexp.MustCompile(`^\d{4}$`)
	yearMonthRe = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	monthYearRe = regexp.MustCompile(`^([A-Za-z]+)\s+(\d{4})$|^(\d{4})\s+([A-Za-z]+)$`)
)

// ParseDate resolves an absolute or relative date to the start of that day
// in now's location.
func ParseDate(raw string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	loc := now.Location()
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return startOfDay(t.In(loc)), nil
		}
	}

	lower := strings.ToLower(s)
	today := startOfDay(now)
	switch lower {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}
	if m := agoRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		return shift(today, m[2][:1], n), nil
	}
	if m := shorthandRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		return shift(today, m[2], n), nil
	}
	if m := relativeRe.FindStringSubmatch(lower); m != nil {
		if m[1] == "last" {
			return shift(today, m[2][:1], 1), nil
		}
		return startOf(today, m[2]), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// FormatDate renders a parsed date the way search operators expect it.
func FormatDate(t time.Time) string { return t.Format(dayLayout) }

// normalizeDuring keeps the coarse forms Slack accepts for during: (a month
// name, a year, or year-month) and turns anything else into a day.
func normalizeDuring(raw string, now time.Time) (string, error) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	if _, ok := months[lower]; ok {
		return lower, nil
	}
	if yearRe.MatchString(s) {
		return s, nil
	}
	if m := yearMonthRe.FindStringSubmatch(s); m != nil {
		if mon, _ := strconv.Atoi(m[2]); mon >= 1 && mon <= 12 {
			return s, nil
		}
		return "", fmt.Errorf("unrecognized month in %q", raw)
	}
	if m := monthYearRe.FindStringSubmatch(s); m != nil {
		name, year := m[1], m[2]
		if name == "" {
			name, year = m[4], m[3]
		}
		if mon, ok := months[strings.ToLower(name)]; ok {
			return fmt.Sprintf("%s-%02d", year, int(mon)), nil
		}
	}
	t, err := ParseDate(s, now)
	if err != nil {
		return "", err
	}
	return FormatDate(t), nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOf(day time.Time, unit string) time.Time {
	switch unit {
	case "week":
		offset := (int(day.Weekday()) + 6) % 7 // Monday first
		return day.AddDate(0, 0, -offset)
	case "month":
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	default:
		return time.Date(day.Year(), 1, 1, 0, 0, 0, 0, day.Location())
	}
}

func shift(day time.Time, unit string, n int) time.Time {
	switch unit {
	case "d":
		return day.AddDate(0, 0, -n)
	case "w":
		return day.AddDate(0, 0, -7*n)
	case "m":
		return day.AddDate(0, -n, 0)
	default:
		return day.AddDate(-n, 0, 0)
	}
}
