// Package slots turns free-form slot descriptions ("завтра с 14 до 18
// в бане, по часу") into structured slot candidates. Extraction runs in
// two tiers: a remote model tier and a deterministic rule-based
// fallback. The engine's public contract is total: it never returns an
// error and always yields a (possibly empty) batch.
package slots

import (
	"fmt"
	"time"
)

// Source tags which tier produced a candidate.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// SlotCandidate is one structured slot extracted from text.
type SlotCandidate struct {
	Date            time.Time `json:"date"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	Location        string    `json:"location"`
	DurationMinutes int       `json:"duration_minutes"`
	Source          Source    `json:"source"`
}

// DateString formats the candidate date as a civil date.
func (c SlotCandidate) DateString() string {
	return c.Date.Format("2006-01-02")
}

// Summary renders the candidate for admin notifications and replies.
func (c SlotCandidate) Summary() string {
	return fmt.Sprintf("%s %s–%s, %s", c.DateString(), c.StartTime, c.EndTime, c.Location)
}

// Batch is an ordered list of candidates. It may be empty, never nil.
type Batch []SlotCandidate

// validateTimes checks that start and end are well-formed clock strings
// with start strictly before end, and returns the span in minutes.
func validateTimes(start, end string) (int, bool) {
	s, err := time.Parse("15:04", start)
	if err != nil {
		return 0, false
	}
	e, err := time.Parse("15:04", end)
	if err != nil {
		return 0, false
	}
	minutes := int(e.Sub(s).Minutes())
	if minutes <= 0 {
		return 0, false
	}
	return minutes, true
}

// beforeDay reports whether d falls on a calendar day strictly before
// ref's day. Candidates in the past are invalid.
func beforeDay(d, ref time.Time) bool {
	dy, dm, dd := d.Date()
	ry, rm, rd := ref.In(d.Location()).Date()
	if dy != ry {
		return dy < ry
	}
	if dm != rm {
		return dm < rm
	}
	return dd < rd
}
