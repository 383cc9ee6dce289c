package services

import (
	"log"
	"strings"
	"time"

	"chronotick/internal/types"

	"github.com/scmhub/calendar"
)

// Gap labels shown on session markers
const (
	GapLabelOvernight = "Overnight"
	GapLabelWeekend   = "Weekend"
	GapLabelHoliday   = "Holiday"
	GapLabelSession   = "Session gap"
)

const defaultMIC = "xnys"

// SessionCalendar classifies replay session gaps against an exchange
// trading calendar
type SessionCalendar struct {
	calendar *calendar.Calendar
	fallback bool // Weekends only, no holiday data
	mic      string
}

// NewSessionCalendar loads the calendar for an ISO 10383 MIC such as "xnys".
// Unknown MICs fall back to xnys, then to a plain Mon-Fri week.
func NewSessionCalendar(mic string) *SessionCalendar {
	mic = strings.ToLower(strings.TrimSpace(mic))
	if mic == "" {
		mic = defaultMIC
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil && mic != defaultMIC {
		log.Printf("[calendar] No calendar for MIC %q, using %s", mic, defaultMIC)
		mic = defaultMIC
		cal = calendar.GetCalendar(mic)
	}
	if cal == nil {
		log.Printf("[calendar] Failed to load calendar %q, using Mon-Fri fallback", mic)
		return newWeekdayCalendar()
	}

	return &SessionCalendar{calendar: cal, mic: mic}
}

func newWeekdayCalendar() *SessionCalendar {
	return &SessionCalendar{fallback: true, mic: "weekdays"}
}

// MIC returns the market identifier in use
func (sc *SessionCalendar) MIC() string {
	return sc.mic
}

// IsTradingDay reports whether the calendar date of t is a business day.
// Replay timestamps carry exchange wall-clock time, so only the date
// components are used.
func (sc *SessionCalendar) IsTradingDay(t time.Time) bool {
	if isWeekend(t) {
		return false
	}
	if sc.fallback {
		return true
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, sc.calendar.Loc)
	return sc.calendar.IsBusinessDay(day)
}

// Label names a session gap by the days it skips: a holiday anywhere in the
// gap wins over a weekend, a gap without skipped days is overnight.
func (sc *SessionCalendar) Label(gap *types.SessionGapMessage) string {
	if gap == nil || gap.From.IsZero() || gap.To.IsZero() || !gap.To.After(gap.From) {
		return GapLabelSession
	}

	from := truncateDay(gap.From)
	to := truncateDay(gap.To)
	if !to.After(from) {
		// Same calendar day, e.g. a lunch break
		return GapLabelSession
	}

	weekend, holiday := false, false
	for day := from.AddDate(0, 0, 1); day.Before(to); day = day.AddDate(0, 0, 1) {
		switch {
		case isWeekend(day):
			weekend = true
		case !sc.IsTradingDay(day):
			holiday = true
		}
	}

	switch {
	case holiday:
		return GapLabelHoliday
	case weekend:
		return GapLabelWeekend
	case to.Sub(from) == 24*time.Hour:
		return GapLabelOvernight
	default:
		// Skipped business days, most likely missing data
		return GapLabelSession
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
