package slots

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mintoctopus/reserve/server/timeexpr"
)

const defaultDurationMinutes = 60

// locationRules maps location keywords (including common Russian
// inflections) to canonical location names, checked in declared order.
var locationRules = []struct {
	keyword   string
	canonical string
}{
	{"глэмпинг", "Glamping"},
	{"глемпинг", "Glamping"},
	{"glamping", "Glamping"},
	{"спасалк", "Rescue Station"},
	{"rescue", "Rescue Station"},
	{"бане", "Bathhouse"},
	{"баню", "Bathhouse"},
	{"баня", "Bathhouse"},
	{"bathhouse", "Bathhouse"},
}

// defaultLocation is used when the text names no known location.
const defaultLocation = "Bathhouse"

var (
	minutesPattern = regexp.MustCompile(`(?:^|\s)(\d{2,3})\s*(?:min|мин)`)
	// Cyrillic "с"/"до" lack ASCII word boundaries, hence the explicit
	// leading whitespace alternation.
	rangePattern = regexp.MustCompile(`(?:^|\s)(?:с|from)\s+(\d{1,2})(?::(\d{2}))?\s+(?:до|to)\s+(\d{1,2})(?::(\d{2}))?`)
)

var hourWords = []string{"на час", "по часу", "час", "for an hour", "an hour", "per hour", "hourly"}

// FallbackExtractor is the deterministic rule-based tier. It combines
// the time expression normalizer with a location keyword table and a
// small duration grammar. Same text, same reference, same batch.
type FallbackExtractor struct {
	normalizer *timeexpr.Normalizer
}

// NewFallbackExtractor creates the rule-based tier for the given zone.
func NewFallbackExtractor(loc *time.Location) *FallbackExtractor {
	return &FallbackExtractor{normalizer: timeexpr.NewNormalizer(loc)}
}

// Extract parses text against the reference time. An unresolvable date
// or clock yields an empty batch rather than a guess.
func (f *FallbackExtractor) Extract(text string, ref time.Time) Batch {
	date, ok := f.normalizer.ResolveDate(text, ref)
	if !ok {
		return Batch{}
	}

	lower := strings.ToLower(text)
	location := resolveLocation(lower)
	duration := resolveDuration(lower)

	if start, end, ok := resolveRange(lower); ok {
		return splitRange(date, start, end, duration, location)
	}

	start, ok := f.normalizer.ResolveClock(text)
	if !ok {
		return Batch{}
	}
	end := start.AddMinutes(duration)
	if !start.Before(end) {
		return Batch{}
	}

	return Batch{{
		Date:            date,
		StartTime:       start.String(),
		EndTime:         end.String(),
		Location:        location,
		DurationMinutes: start.MinutesUntil(end),
		Source:          SourceFallback,
	}}
}

func resolveLocation(lower string) string {
	for _, rule := range locationRules {
		if strings.Contains(lower, rule.keyword) {
			return rule.canonical
		}
	}
	return defaultLocation
}

func resolveDuration(lower string) int {
	if m := minutesPattern.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v >= 15 && v <= 240 {
			return v
		}
	}
	for _, w := range hourWords {
		if strings.Contains(lower, w) {
			return 60
		}
	}
	return defaultDurationMinutes
}

// resolveRange parses a "с 10 до 18" / "from 10 to 18" span.
func resolveRange(lower string) (timeexpr.Clock, timeexpr.Clock, bool) {
	m := rangePattern.FindStringSubmatch(lower)
	if m == nil {
		return timeexpr.Clock{}, timeexpr.Clock{}, false
	}
	start, ok := clockFromParts(m[1], m[2])
	if !ok {
		return timeexpr.Clock{}, timeexpr.Clock{}, false
	}
	end, ok := clockFromParts(m[3], m[4])
	if !ok {
		return timeexpr.Clock{}, timeexpr.Clock{}, false
	}
	// "с 10 до 6" means the span crosses noon; read the end as PM.
	if !start.Before(end) && end.Hour < 12 {
		end.Hour += 12
	}
	if !start.Before(end) {
		return timeexpr.Clock{}, timeexpr.Clock{}, false
	}
	return start, end, true
}

func clockFromParts(hourStr, minStr string) (timeexpr.Clock, bool) {
	hour, err := strconv.Atoi(hourStr)
	if err != nil || hour > 23 {
		return timeexpr.Clock{}, false
	}
	minute := 0
	if minStr != "" {
		minute, err = strconv.Atoi(minStr)
		if err != nil || minute > 59 {
			return timeexpr.Clock{}, false
		}
	}
	return timeexpr.Clock{Hour: hour, Minute: minute}, true
}

// splitRange cuts a span into consecutive slots of the given duration.
// A trailing remainder shorter than the duration is dropped.
func splitRange(date time.Time, start, end timeexpr.Clock, duration int, location string) Batch {
	batch := Batch{}
	for cur := start; cur.MinutesUntil(end) >= duration; cur = cur.AddMinutes(duration) {
		slotEnd := cur.AddMinutes(duration)
		batch = append(batch, SlotCandidate{
			Date:            date,
			StartTime:       cur.String(),
			EndTime:         slotEnd.String(),
			Location:        location,
			DurationMinutes: duration,
			Source:          SourceFallback,
		})
	}
	return batch
}
