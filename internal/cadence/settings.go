package cadence

import (
	"context"

	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/pkg/logger"
)

// SettingsSource returns the single currently-active stored cadence
// configuration, or nil when none exists (defaults apply).
type SettingsSource interface {
	ActiveSettings(ctx context.Context) (*domain.CadenceSettings, error)
}

// Defaults returns the hardcoded fallback cadence configuration, the last
// tier of the resolution chain.
func Defaults() domain.CadenceSettings {
	return domain.CadenceSettings{
		HumanMode:            true,
		DelayBetweenMessages: 90,
		DelayVariation:       0.3,
		CoffeeBreakInterval:  15,
		CoffeeBreakDuration:  300,
		LongBreakInterval:    50,
		LongBreakDuration:    1800,
		WorkingHoursEnabled:  true,
		StartTime:            "09:00",
		EndTime:              "18:00",
		DailyLimit:           250,
		DaysSinceLastContact: 3,
		MaxMessagesPerRun:    10,
	}
}

// ResolveSettings walks the three-tier chain: explicit override, stored
// active settings, hardcoded defaults. It always returns a fully-populated
// value; a store failure degrades to defaults rather than erroring, since
// pacing must keep working on a transient settings-store blip.
func ResolveSettings(ctx context.Context, override *domain.CadenceSettings, src SettingsSource) domain.CadenceSettings {
	if override != nil {
		return sanitize(*override)
	}
	if src != nil {
		stored, err := src.ActiveSettings(ctx)
		if err != nil {
			logger.Warn("cadence settings lookup failed, using defaults", "error", err)
		} else if stored != nil {
			return sanitize(*stored)
		}
	}
	return Defaults()
}

// sanitize backfills zero values and malformed clock strings from the
// defaults so the pure policy functions never see an invalid field.
func sanitize(s domain.CadenceSettings) domain.CadenceSettings {
	d := Defaults()
	if s.DelayBetweenMessages <= 0 {
		s.DelayBetweenMessages = d.DelayBetweenMessages
	}
	if s.DelayVariation < 0 || s.DelayVariation > 1 {
		s.DelayVariation = d.DelayVariation
	}
	if s.CoffeeBreakInterval <= 0 {
		s.CoffeeBreakInterval = d.CoffeeBreakInterval
	}
	if s.CoffeeBreakDuration <= 0 {
		s.CoffeeBreakDuration = d.CoffeeBreakDuration
	}
	if s.LongBreakInterval <= 0 {
		s.LongBreakInterval = d.LongBreakInterval
	}
	if s.LongBreakDuration <= 0 {
		s.LongBreakDuration = d.LongBreakDuration
	}
	if _, err := parseClock(s.StartTime); err != nil {
		s.StartTime = d.StartTime
	}
	if _, err := parseClock(s.EndTime); err != nil {
		s.EndTime = d.EndTime
	}
	if s.DailyLimit <= 0 {
		s.DailyLimit = d.DailyLimit
	}
	if s.DaysSinceLastContact <= 0 {
		s.DaysSinceLastContact = d.DaysSinceLastContact
	}
	if s.MaxMessagesPerRun <= 0 {
		s.MaxMessagesPerRun = d.MaxMessagesPerRun
	}
	return s
}
