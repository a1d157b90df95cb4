// Package timeexpr normalizes natural-language date and time
// expressions into calendar dates and 24-hour clock times.
//
// Resolution is a pure function of (text, reference now): the caller
// always supplies the reference time, so the same text parsed against
// the same reference yields the same result. There is no package-level
// clock and no fixed reference date.
package timeexpr

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Patterns for clock parsing.
var (
	hourMinPattern = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	// \b is ASCII-only in Go regexp, so the Russian "в" needs an
	// explicit leading boundary.
	atHourPattern   = regexp.MustCompile(`(?:^|\s)(?:at|в)\s+(\d{1,2})\b`)
	bareHourPattern = regexp.MustCompile(`\b(\d{1,2})\b`)
)

// relDateOffsets maps relative date keywords to day offsets from the
// reference date. Both Russian and English forms are recognized.
var relDateOffsets = []struct {
	keyword string
	offset  int
}{
	{"послезавтра", 2},
	{"day after tomorrow", 2},
	{"сегодня", 0},
	{"today", 0},
	{"завтра", 1},
	{"tomorrow", 1},
}

// weekdays lists weekday names (including Russian accusative forms used
// after "в", e.g. "в субботу") in a fixed order so that resolution is
// deterministic even when a text mentions several weekdays.
var weekdays = []struct {
	name string
	day  time.Weekday
}{
	{"monday", time.Monday},
	{"tuesday", time.Tuesday},
	{"wednesday", time.Wednesday},
	{"thursday", time.Thursday},
	{"friday", time.Friday},
	{"saturday", time.Saturday},
	{"sunday", time.Sunday},

	{"понедельник", time.Monday},
	{"вторник", time.Tuesday},
	{"среда", time.Wednesday},
	{"среду", time.Wednesday},
	{"четверг", time.Thursday},
	{"пятница", time.Friday},
	{"пятницу", time.Friday},
	{"суббота", time.Saturday},
	{"субботу", time.Saturday},
	{"воскресенье", time.Sunday},
}

// morningWords and eveningWords are period-of-day modifiers that
// disambiguate small hours.
var (
	morningWords   = []string{"in the morning", "morning", "утра", "утром"}
	eveningWords   = []string{"in the evening", "evening", "вечера", "вечером"}
	afternoonWords = []string{"in the afternoon", "afternoon", "дня", "днём", "днем"}
)

// Clock is a 24-hour wall-clock time.
type Clock struct {
	Hour   int
	Minute int
}

// String formats the clock as "HH:MM".
func (c Clock) String() string {
	return padTwo(c.Hour) + ":" + padTwo(c.Minute)
}

func padTwo(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// AddMinutes returns the clock advanced by the given minutes, capped at
// 23:59 so a slot never spills into the next day.
func (c Clock) AddMinutes(minutes int) Clock {
	total := c.Hour*60 + c.Minute + minutes
	if total > 23*60+59 {
		total = 23*60 + 59
	}
	return Clock{Hour: total / 60, Minute: total % 60}
}

// MinutesUntil returns the minutes from c to other within the same day.
func (c Clock) MinutesUntil(other Clock) int {
	return (other.Hour*60 + other.Minute) - (c.Hour*60 + c.Minute)
}

// Before reports whether c is strictly earlier than other.
func (c Clock) Before(other Clock) bool {
	return c.Hour*60+c.Minute < other.Hour*60+other.Minute
}

// Normalizer resolves relative date words and clock expressions against
// a caller-supplied reference time in a fixed zone.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer creates a normalizer for the given reference zone.
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// ResolveDate resolves a relative date expression in text against ref.
// Recognized: today/tomorrow/day-after-tomorrow words and weekday names
// (nearest future occurrence, today excluded: "on Monday" said on a
// Monday means next week). Returns the date at midnight in the
// normalizer's zone, or ok=false when nothing matches.
func (n *Normalizer) ResolveDate(text string, ref time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)
	refDate := n.midnight(ref)

	for _, rd := range relDateOffsets {
		if strings.Contains(lower, rd.keyword) {
			return refDate.AddDate(0, 0, rd.offset), true
		}
	}

	for _, wd := range weekdays {
		if !containsWord(lower, wd.name) {
			continue
		}
		diff := int(wd.day-refDate.Weekday()+7) % 7
		if diff == 0 {
			diff = 7
		}
		return refDate.AddDate(0, 0, diff), true
	}

	return time.Time{}, false
}

// ResolveClock resolves a clock expression in text. Recognized forms:
// "14:00", "at 16" / "в 16", and an hour with a period-of-day word
// ("6 in the morning" / "6 утра"). A bare hour from 1 to 6 without a
// period word is read as afternoon/evening, matching how people phrase
// booking times; 7-11 stay as morning hours. Returns ok=false when no
// clock expression is present.
func (n *Normalizer) ResolveClock(text string) (Clock, bool) {
	lower := strings.ToLower(text)

	if m := hourMinPattern.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour <= 23 && minute <= 59 {
			return Clock{Hour: hour, Minute: minute}, true
		}
	}

	hour := -1
	if m := atHourPattern.FindStringSubmatch(lower); m != nil {
		if h, err := strconv.Atoi(m[1]); err == nil && h <= 23 {
			hour = h
		}
	}
	if hour == -1 {
		// A lone number next to a period word ("6 утра", "6 in the
		// morning") is still a clock expression.
		if m := bareHourPattern.FindStringSubmatch(lower); m != nil && hasPeriodWord(lower) {
			if h, err := strconv.Atoi(m[1]); err == nil && h <= 23 {
				hour = h
			}
		}
	}
	if hour == -1 {
		return Clock{}, false
	}

	if hour <= 12 {
		switch {
		case containsAny(lower, eveningWords):
			if hour < 12 {
				hour += 12
			}
		case containsAny(lower, afternoonWords):
			if hour <= 6 {
				hour += 12
			}
		case containsAny(lower, morningWords):
			// explicit morning, keep as-is
		case hour >= 1 && hour <= 6:
			// Ambiguous small hour defaults to afternoon.
			hour += 12
		}
	}

	return Clock{Hour: hour}, true
}

// midnight truncates t to the start of its day in the normalizer's zone.
func (n *Normalizer) midnight(t time.Time) time.Time {
	t = t.In(n.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, n.loc)
}

func hasPeriodWord(lower string) bool {
	return containsAny(lower, morningWords) ||
		containsAny(lower, eveningWords) ||
		containsAny(lower, afternoonWords)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// containsWord reports whether s contains w as a whole word, so "sunday"
// does not match inside "sundaybest".
func containsWord(s, w string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], w)
		if i == -1 {
			return false
		}
		start := idx + i
		end := start + len(w)
		beforeOK := start == 0 || isBoundary(rune(s[start-1]))
		afterOK := end == len(s) || isBoundary(rune(s[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isBoundary(r rune) bool {
	return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?' || r == ':' || r == ';' || r == '\n' || r == '\t'
}
