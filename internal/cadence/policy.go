// Package cadence implements the human-paced sending policy: per-message
// delays, coffee/long breaks, working-hours gating, and the weekend gate.
//
// Every function here is a total function over its documented inputs and
// performs no I/O. Callers are responsible for passing `now` already in the
// configured local timezone; no timezone conversion happens inside.
package cadence

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/leadline/outreach-engine/internal/domain"
)

const (
	// MinDelaySeconds is the hard platform-imposed floor on any computed
	// delay, regardless of mode or settings.
	MinDelaySeconds = 5

	// Human-mode delays are drawn uniformly from [HumanDelayMin, HumanDelayMax].
	HumanDelayMinSeconds = 60
	HumanDelayMaxSeconds = 210
)

// CalculateDelay returns the number of seconds to wait before the next
// message. In human mode the delay is uniform in [60, 210]. Otherwise it is
// the configured base delay with uniform jitter of ±DelayVariation. The
// result never drops below MinDelaySeconds.
func CalculateDelay(messagesSentThisSession int, s domain.CadenceSettings) int {
	var delay float64
	if s.HumanMode {
		delay = float64(HumanDelayMinSeconds) + rand.Float64()*float64(HumanDelayMaxSeconds-HumanDelayMinSeconds)
	} else {
		jitter := (rand.Float64()*2 - 1) * s.DelayVariation // [-v, +v]
		delay = float64(s.DelayBetweenMessages) * (1 + jitter)
	}
	if delay < MinDelaySeconds {
		return MinDelaySeconds
	}
	return int(delay)
}

// BreakDecision is the outcome of the break policy for one loop iteration.
type BreakDecision struct {
	ShouldBreak     bool
	Type            domain.BreakType
	DurationSeconds int
}

// ShouldTakeBreak decides whether a break is due after the given number of
// messages this session. The long-break interval is checked first: a count
// that is a multiple of both intervals takes the long break (e.g. intervals
// 15 and 50 coincide at 150). A count of zero never breaks.
func ShouldTakeBreak(messagesSentThisSession int, s domain.CadenceSettings) BreakDecision {
	if messagesSentThisSession <= 0 {
		return BreakDecision{}
	}
	if s.LongBreakInterval > 0 && messagesSentThisSession%s.LongBreakInterval == 0 {
		return BreakDecision{ShouldBreak: true, Type: domain.BreakLong, DurationSeconds: s.LongBreakDuration}
	}
	if s.CoffeeBreakInterval > 0 && messagesSentThisSession%s.CoffeeBreakInterval == 0 {
		return BreakDecision{ShouldBreak: true, Type: domain.BreakCoffee, DurationSeconds: s.CoffeeBreakDuration}
	}
	return BreakDecision{}
}

// IsWithinWorkingHours reports whether now's local wall-clock time falls in
// the inclusive [StartTime, EndTime] window. Always true when working hours
// are disabled. StartTime/EndTime must be well-formed "HH:MM"; malformed
// values are a caller contract violation (the settings resolver validates
// stored values before they reach this function).
func IsWithinWorkingHours(s domain.CadenceSettings, now time.Time) bool {
	if !s.WorkingHoursEnabled {
		return true
	}
	start, err1 := parseClock(s.StartTime)
	end, err2 := parseClock(s.EndTime)
	if err1 != nil || err2 != nil {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	return cur >= start && cur <= end
}

// TimeUntilWorkingHours returns how long until the next occurrence of
// StartTime, or zero with ok=false if now is already within working hours.
// When today's start has already passed, it rolls to tomorrow's start.
func TimeUntilWorkingHours(s domain.CadenceSettings, now time.Time) (time.Duration, bool) {
	if IsWithinWorkingHours(s, now) {
		return 0, false
	}
	start, err := parseClock(s.StartTime)
	if err != nil {
		return 0, false
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), start/60, start%60, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now), true
}

// ShouldSkipDay reports whether outreach is forbidden on the given weekday.
// Saturday and Sunday are always skipped; there is no settings override.
// Even a misconfigured settings record cannot make a weekend sendable.
func ShouldSkipDay(day time.Weekday) bool {
	return day == time.Saturday || day == time.Sunday
}

// parseClock parses "HH:MM" into minutes past midnight.
func parseClock(v string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(v, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", v, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", v)
	}
	return h*60 + m, nil
}
