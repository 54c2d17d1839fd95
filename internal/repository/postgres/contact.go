// Package postgres implements the engine's store interfaces against
// PostgreSQL using database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/worker"
)

// ContactRepo implements worker.ContactStore.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

const contactColumns = `
	id, campaign_id, COALESCE(first_name,''), COALESCE(last_name,''),
	COALESCE(company,''), phone, email, status, scheduled_send_at,
	assigned_sdr_id, created_at, updated_at`

func scanContact(row interface{ Scan(...interface{}) error }) (*domain.Contact, error) {
	c := &domain.Contact{}
	err := row.Scan(
		&c.ID, &c.CampaignID, &c.FirstName, &c.LastName,
		&c.Company, &c.Phone, &c.Email, &c.Status, &c.ScheduledSendAt,
		&c.AssignedSDRID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ContactRepo) Get(ctx context.Context, id string) (*domain.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM outreach_contacts
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, worker.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// PendingDue fetches pending contacts due for dispatch, oldest created
// first. There is no priority lane inside a batch; priority only affects
// the scheduled_send_at set upstream.
func (r *ContactRepo) PendingDue(ctx context.Context, now time.Time, limit int, sdrID, campaignID *string) ([]domain.Contact, error) {
	q := `
		SELECT ` + contactColumns + `
		FROM outreach_contacts
		WHERE status = 'pending'
		  AND scheduled_send_at IS NOT NULL
		  AND scheduled_send_at <= $1`
	args := []interface{}{now}
	idx := 2

	if sdrID != nil {
		q += fmt.Sprintf(" AND assigned_sdr_id = $%d", idx)
		args = append(args, *sdrID)
		idx++
	}
	if campaignID != nil {
		q += fmt.Sprintf(" AND campaign_id = $%d", idx)
		args = append(args, *campaignID)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at ASC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pending contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// MarkStatus flips a contact out of pending. The status='pending' guard
// makes overlapping invocations a single-writer-wins race: the loser's
// update touches zero rows and its attempt is simply wasted.
func (r *ContactRepo) MarkStatus(ctx context.Context, id string, status domain.ContactStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outreach_contacts
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, status)
	if err != nil {
		return fmt.Errorf("mark contact %s: %w", status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return worker.ErrNotFound
	}
	return nil
}

// Create inserts a new contact from intake.
func (r *ContactRepo) Create(ctx context.Context, c *domain.Contact) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_contacts
			(id, campaign_id, first_name, last_name, company, phone, email,
			 status, scheduled_send_at, assigned_sdr_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`, c.ID, c.CampaignID, c.FirstName, c.LastName, c.Company, c.Phone, c.Email,
		c.Status, c.ScheduledSendAt, c.AssignedSDRID)
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}

// SetScheduledSendAt stores the upstream scheduling hint for a contact.
func (r *ContactRepo) SetScheduledSendAt(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outreach_contacts SET scheduled_send_at = $2, updated_at = NOW() WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("set scheduled_send_at: %w", err)
	}
	return nil
}
