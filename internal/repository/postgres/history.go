package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/leadline/outreach-engine/internal/domain"
)

// HistoryRepo implements eligibility.HistoryRepository against the
// append-only outreach_contact_history ledger.
type HistoryRepo struct{ db *sql.DB }

// NewHistoryRepo creates a Postgres-backed history ledger.
func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

// LastContact returns the most recent ledger record matching the phone or
// email, or nil when the contact has never been attempted. Email-only
// contacts leave an empty phone in the ledger, so an empty phone must never
// become a match clause or every phone-less row of every contact matches.
func (r *HistoryRepo) LastContact(ctx context.Context, phone string, email *string) (*domain.ContactHistoryRecord, error) {
	var conds []string
	var args []interface{}
	if phone != "" {
		args = append(args, phone)
		conds = append(conds, fmt.Sprintf("phone = $%d", len(args)))
	}
	if email != nil && *email != "" {
		args = append(args, *email)
		conds = append(conds, fmt.Sprintf("email = $%d", len(args)))
	}
	if len(conds) == 0 {
		return nil, nil
	}

	q := `
		SELECT id, contact_id, campaign_id, sdr_id, channel, phone, email,
		       outcome, delay_seconds, break_taken, error_message, contacted_at
		FROM outreach_contact_history
		WHERE ` + strings.Join(conds, " OR ") + `
		ORDER BY contacted_at DESC LIMIT 1`

	rec := &domain.ContactHistoryRecord{}
	err := r.db.QueryRowContext(ctx, q, args...).Scan(
		&rec.ID, &rec.ContactID, &rec.CampaignID, &rec.SDRID, &rec.Channel,
		&rec.Phone, &rec.Email, &rec.Outcome, &rec.DelaySeconds,
		&rec.BreakTaken, &rec.ErrorMessage, &rec.ContactedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last contact: %w", err)
	}
	return rec, nil
}

// CountSentOnDay counts outcome=sent records within the local calendar day
// [00:00:00, 23:59:59.999] of date, optionally filtered by SDR and/or
// campaign.
func (r *HistoryRepo) CountSentOnDay(ctx context.Context, sdrID, campaignID *string, date time.Time) (int, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 999000000, date.Location())

	q := `
		SELECT COUNT(*)
		FROM outreach_contact_history
		WHERE outcome = 'sent'
		  AND contacted_at BETWEEN $1 AND $2`
	args := []interface{}{dayStart, dayEnd}
	idx := 3

	if sdrID != nil {
		q += fmt.Sprintf(" AND sdr_id = $%d", idx)
		args = append(args, *sdrID)
		idx++
	}
	if campaignID != nil {
		q += fmt.Sprintf(" AND campaign_id = $%d", idx)
		args = append(args, *campaignID)
		idx++
	}

	var count int
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sent on day: %w", err)
	}
	return count, nil
}

// Append adds one ledger record. Records are write-once.
func (r *HistoryRepo) Append(ctx context.Context, rec *domain.ContactHistoryRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_contact_history
			(id, contact_id, campaign_id, sdr_id, channel, phone, email,
			 outcome, delay_seconds, break_taken, error_message, contacted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rec.ID, rec.ContactID, rec.CampaignID, rec.SDRID, rec.Channel, rec.Phone,
		rec.Email, rec.Outcome, rec.DelaySeconds, rec.BreakTaken, rec.ErrorMessage,
		rec.ContactedAt)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}
