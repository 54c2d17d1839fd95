package domain

import "time"

// CadenceSettings is the fully-populated pacing configuration consumed by
// the cadence policy and both send paths. Values are resolved through a
// three-tier chain (explicit override, stored active record, hardcoded
// defaults) before any policy function sees them, so a partially-filled
// settings value never reaches the policy layer.
type CadenceSettings struct {
	ID       string `json:"id,omitempty" db:"id"`
	IsActive bool   `json:"is_active,omitempty" db:"is_active"`

	// Delay pacing
	HumanMode            bool    `json:"human_mode" db:"human_mode"`
	DelayBetweenMessages int     `json:"delay_between_messages" db:"delay_between_messages"` // seconds
	DelayVariation       float64 `json:"delay_variation" db:"delay_variation"`               // 0.0-1.0 jitter fraction

	// Breaks
	CoffeeBreakInterval int `json:"coffee_break_interval" db:"coffee_break_interval"` // messages
	CoffeeBreakDuration int `json:"coffee_break_duration" db:"coffee_break_duration"` // seconds
	LongBreakInterval   int `json:"long_break_interval" db:"long_break_interval"`     // messages
	LongBreakDuration   int `json:"long_break_duration" db:"long_break_duration"`     // seconds

	// Working hours, local wall-clock "HH:MM"
	WorkingHoursEnabled bool   `json:"working_hours_enabled" db:"working_hours_enabled"`
	StartTime           string `json:"start_time" db:"start_time"`
	EndTime             string `json:"end_time" db:"end_time"`

	// Compliance
	DailyLimit           int `json:"daily_limit" db:"daily_limit"`
	DaysSinceLastContact int `json:"days_since_last_contact" db:"days_since_last_contact"` // cooldown threshold
	MaxMessagesPerRun    int `json:"max_messages_per_run" db:"max_messages_per_run"`       // on-demand batch cap

	UpdatedAt time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// BreakType identifies which pause the cadence policy requires.
type BreakType string

const (
	BreakNone   BreakType = ""
	BreakCoffee BreakType = "coffee"
	BreakLong   BreakType = "long"
)
