// Package schedule holds the pure time arithmetic behind the check and backup
// cadences. Nothing here performs I/O or reads the clock.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
)

const (
	MinIntervalMinutes     = 15
	MaxIntervalMinutes     = 60
	DefaultIntervalMinutes = 60

	// DefaultTimezone is the organization's civil timezone.
	DefaultTimezone = "Asia/Jakarta"

	day = 24 * time.Hour
)

// AllowedIntervals are the check intervals accepted at the settings boundary.
var AllowedIntervals = []int{15, 30, 60}

var timeOfDayRe = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// SnapInterval clamps minutes to [15, 60] and rounds to the nearest allowed
// interval. Equidistant values resolve to 60.
func SnapInterval(minutes int) int {
	if minutes < MinIntervalMinutes {
		minutes = MinIntervalMinutes
	}
	if minutes > MaxIntervalMinutes {
		minutes = MaxIntervalMinutes
	}

	best, bestDist := DefaultIntervalMinutes, -1
	for _, allowed := range AllowedIntervals {
		dist := abs(minutes - allowed)
		switch {
		case bestDist < 0 || dist < bestDist:
			best, bestDist = allowed, dist
		case dist == bestDist:
			best = DefaultIntervalMinutes
		}
	}
	return best
}

// IsAllowedInterval reports whether minutes is exactly one of AllowedIntervals.
func IsAllowedInterval(minutes int) bool {
	for _, allowed := range AllowedIntervals {
		if minutes == allowed {
			return true
		}
	}
	return false
}

// NextCheckSlot returns the first instant strictly after now that is an exact
// multiple of intervalMinutes from the Unix epoch. The result keeps now's location.
func NextCheckSlot(now time.Time, intervalMinutes int) time.Time {
	if intervalMinutes < 1 {
		intervalMinutes = DefaultIntervalMinutes
	}
	slot := int64(intervalMinutes) * 60
	sec := now.Unix()

	q := sec / slot
	if sec%slot < 0 {
		q--
	}
	return time.Unix((q+1)*slot, 0).In(now.Location())
}

// TimeOfDay is a wall-clock time in the system timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "H:mm" or "HH:mm" in 24-hour notation.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	m := timeOfDayRe.FindStringSubmatch(s)
	if m == nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q, expected HH:mm", s)
	}
	h, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return TimeOfDay{Hour: h, Minute: minute}, nil
}

// MustTimeOfDay parses s and falls back to midnight when it is invalid.
func MustTimeOfDay(s string) TimeOfDay {
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		return TimeOfDay{}
	}
	return tod
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// on returns the instant at t on the calendar day of d in loc.
func (t TimeOfDay) on(d time.Time, loc *time.Location) time.Time {
	d = d.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// LoadLocation resolves the system timezone. An unknown zone, or a missing
// tzdata, falls back to a fixed UTC+7 zone named WIB.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

// FirstBackupSlot returns the next occurrence of tod strictly after now.
func FirstBackupSlot(now time.Time, tod TimeOfDay, loc *time.Location) time.Time {
	candidate := tod.on(now, loc)
	if !candidate.After(now) {
		candidate = tod.on(candidate.AddDate(0, 0, 1), loc)
	}
	return candidate
}

// BackupCadence is the part of the backup settings the slot arithmetic needs.
type BackupCadence struct {
	Frequency domain.Frequency
	TimeOfDay TimeOfDay
	// GapDays is the twice-weekly gap (3 or 4) to apply for this step.
	GapDays int
}

// NextBackupSlot computes the next backup time from base at the configured
// time of day. fromScheduled tells whether base is the previous scheduled slot
// (calendar-aware monthly step) or the current time (monthly falls back to
// +30 days).
func NextBackupSlot(base time.Time, fromScheduled bool, c BackupCadence, loc *time.Location) time.Time {
	b := base.In(loc)

	switch c.Frequency {
	case domain.FrequencyWeekly:
		return c.TimeOfDay.on(b.AddDate(0, 0, 7), loc)
	case domain.FrequencyTwiceWeekly:
		return c.TimeOfDay.on(b.AddDate(0, 0, NormalizeGap(c.GapDays)), loc)
	case domain.FrequencyMonthly:
		if !fromScheduled {
			return c.TimeOfDay.on(b.AddDate(0, 0, 30), loc)
		}
		return c.TimeOfDay.on(addMonthClamped(b, loc), loc)
	default:
		return c.TimeOfDay.on(b.AddDate(0, 0, 1), loc)
	}
}

// addMonthClamped moves to the same day next month, clamped to the last day of
// that month (Jan 31 -> Feb 28/29).
func addMonthClamped(t time.Time, loc *time.Location) time.Time {
	year, month, d := t.Date()
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, loc)
	lastDay := firstOfNext.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), d, 0, 0, 0, 0, loc)
}

// NormalizeGap maps any stored gap to 3 or 4.
func NormalizeGap(gap int) int {
	if gap == 4 {
		return 4
	}
	return 3
}

// ToggleGap returns the gap to apply after the one just used.
func ToggleGap(gap int) int {
	if NormalizeGap(gap) == 3 {
		return 4
	}
	return 3
}

// TimeframeDays is how much run history a backup of the given cadence covers.
func TimeframeDays(freq domain.Frequency, gapDays int) int {
	switch freq {
	case domain.FrequencyWeekly:
		return 7
	case domain.FrequencyMonthly:
		return 30
	case domain.FrequencyTwiceWeekly:
		return NormalizeGap(gapDays)
	default:
		return 1
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
