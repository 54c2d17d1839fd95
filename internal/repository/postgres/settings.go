package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/leadline/outreach-engine/internal/domain"
)

// SettingsRepo implements cadence.SettingsSource.
type SettingsRepo struct{ db *sql.DB }

// NewSettingsRepo creates a Postgres-backed cadence settings source.
func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

// ActiveSettings returns the most recently updated active settings record,
// or nil when none exists (hardcoded defaults apply downstream).
func (r *SettingsRepo) ActiveSettings(ctx context.Context) (*domain.CadenceSettings, error) {
	s := &domain.CadenceSettings{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, is_active, human_mode, delay_between_messages, delay_variation,
		       coffee_break_interval, coffee_break_duration,
		       long_break_interval, long_break_duration,
		       working_hours_enabled, start_time, end_time,
		       daily_limit, days_since_last_contact, max_messages_per_run,
		       updated_at
		FROM outreach_cadence_settings
		WHERE is_active = TRUE
		ORDER BY updated_at DESC
		LIMIT 1
	`).Scan(
		&s.ID, &s.IsActive, &s.HumanMode, &s.DelayBetweenMessages, &s.DelayVariation,
		&s.CoffeeBreakInterval, &s.CoffeeBreakDuration,
		&s.LongBreakInterval, &s.LongBreakDuration,
		&s.WorkingHoursEnabled, &s.StartTime, &s.EndTime,
		&s.DailyLimit, &s.DaysSinceLastContact, &s.MaxMessagesPerRun,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active settings: %w", err)
	}
	return s, nil
}

// Save stores a settings record. Activating a record deactivates all
// others so at most one is active.
func (r *SettingsRepo) Save(ctx context.Context, s *domain.CadenceSettings) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	defer tx.Rollback()

	if s.IsActive {
		if _, err := tx.ExecContext(ctx, `
			UPDATE outreach_cadence_settings SET is_active = FALSE, updated_at = NOW()
			WHERE is_active = TRUE
		`); err != nil {
			return fmt.Errorf("deactivate settings: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outreach_cadence_settings
			(id, is_active, human_mode, delay_between_messages, delay_variation,
			 coffee_break_interval, coffee_break_duration,
			 long_break_interval, long_break_duration,
			 working_hours_enabled, start_time, end_time,
			 daily_limit, days_since_last_contact, max_messages_per_run, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		ON CONFLICT (id) DO UPDATE SET
			is_active = EXCLUDED.is_active,
			human_mode = EXCLUDED.human_mode,
			delay_between_messages = EXCLUDED.delay_between_messages,
			delay_variation = EXCLUDED.delay_variation,
			coffee_break_interval = EXCLUDED.coffee_break_interval,
			coffee_break_duration = EXCLUDED.coffee_break_duration,
			long_break_interval = EXCLUDED.long_break_interval,
			long_break_duration = EXCLUDED.long_break_duration,
			working_hours_enabled = EXCLUDED.working_hours_enabled,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			daily_limit = EXCLUDED.daily_limit,
			days_since_last_contact = EXCLUDED.days_since_last_contact,
			max_messages_per_run = EXCLUDED.max_messages_per_run,
			updated_at = NOW()
	`, s.ID, s.IsActive, s.HumanMode, s.DelayBetweenMessages, s.DelayVariation,
		s.CoffeeBreakInterval, s.CoffeeBreakDuration,
		s.LongBreakInterval, s.LongBreakDuration,
		s.WorkingHoursEnabled, s.StartTime, s.EndTime,
		s.DailyLimit, s.DaysSinceLastContact, s.MaxMessagesPerRun)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return tx.Commit()
}
