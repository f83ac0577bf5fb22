// Package parser converts human-entered date and duration strings into
// absolute values. All functions are pure; "now" is always an argument.
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// relativeDays maps the fixed relative-day vocabulary to a day offset.
// English and Chinese forms are both accepted.
var relativeDays = map[string]int{
	"tomorrow":  1,
	"明天":        1,
	"day-after": 2,
	"后天":        2,
	"next-week": 7,
	"下周":        7,
}

var (
	monthDayRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})$`)
	fullDateRe = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})[/-](\d{1,2})$`)
	delayRe    = regexp.MustCompile(`^(\d+)([mhdMHD])$`)
)

// ParseDueDate resolves text to an absolute due date, normalized to 23:59:59
// local time of the resolved day. Recognized, in priority order: a relative-day
// token, a month/day pattern against the current year (rolled one year forward
// when that date has already passed), and a full year/month/day pattern in
// slash or hyphen form. Anything else, including out-of-range components,
// returns ok=false.
func ParseDueDate(text string, now time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)

	if days, ok := relativeDays[strings.ToLower(text)]; ok {
		return endOfDay(now.AddDate(0, 0, days)), true
	}

	if m := monthDayRe.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		due, ok := dateFor(now.Year(), month, day, now.Location())
		if !ok {
			return time.Time{}, false
		}
		if due.Before(now) {
			due, ok = dateFor(now.Year()+1, month, day, now.Location())
			if !ok {
				return time.Time{}, false
			}
		}
		return due, true
	}

	if m := fullDateRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return dateFor(year, month, day, now.Location())
	}

	return time.Time{}, false
}

// ParseDelay parses a delay of the form "<int><m|h|d>" (case-insensitive
// unit, no separator) into a duration. Invalid input returns ok=false.
func ParseDelay(text string) (time.Duration, bool) {
	m := delayRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "m":
		return time.Duration(n) * time.Minute, true
	case "h":
		return time.Duration(n) * time.Hour, true
	case "d":
		return time.Duration(n) * 24 * time.Hour, true
	}
	return 0, false
}

// dateFor builds the end-of-day timestamp for a calendar date, rejecting
// components that time.Date would silently normalize (month 13, Feb 30).
func dateFor(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 23, 59, 59, 0, loc)
	if int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
