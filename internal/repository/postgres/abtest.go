package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/leadline/outreach-engine/internal/abtest"
	"github.com/leadline/outreach-engine/internal/domain"
)

// ABTestRepo implements abtest.Repository.
type ABTestRepo struct{ db *sql.DB }

// NewABTestRepo creates a Postgres-backed A/B test repository.
func NewABTestRepo(db *sql.DB) *ABTestRepo { return &ABTestRepo{db: db} }

func (r *ABTestRepo) GetTest(ctx context.Context, testID string) (*domain.ABTest, error) {
	t := &domain.ABTest{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, name, status, winner_variant, confidence_level,
		       created_at, updated_at
		FROM outreach_ab_tests
		WHERE id = $1
	`, testID).Scan(
		&t.ID, &t.CampaignID, &t.Name, &t.Status, &t.WinnerVariant,
		&t.ConfidenceLevel, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, abtest.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ab test: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, test_id, name, weight, COALESCE(subject,''), COALESCE(body,'')
		FROM outreach_ab_variants
		WHERE test_id = $1
		ORDER BY name ASC
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("get ab variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.ABVariant
		if err := rows.Scan(&v.ID, &v.TestID, &v.Name, &v.Weight, &v.Subject, &v.Body); err != nil {
			return nil, fmt.Errorf("scan ab variant: %w", err)
		}
		t.Variants = append(t.Variants, v)
	}
	return t, rows.Err()
}

// ActiveTestForCampaign returns the most recently created active test for
// the campaign, or nil when there is none.
func (r *ABTestRepo) ActiveTestForCampaign(ctx context.Context, campaignID string) (*domain.ABTest, error) {
	var testID string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM outreach_ab_tests
		WHERE campaign_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`, campaignID).Scan(&testID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active test for campaign: %w", err)
	}
	return r.GetTest(ctx, testID)
}

func (r *ABTestRepo) CreateTest(ctx context.Context, t *domain.ABTest) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create ab test: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outreach_ab_tests (id, campaign_id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`, t.ID, t.CampaignID, t.Name, t.Status)
	if err != nil {
		return fmt.Errorf("create ab test: %w", err)
	}

	for i := range t.Variants {
		v := &t.Variants[i]
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		v.TestID = t.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO outreach_ab_variants (id, test_id, name, weight, subject, body)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, v.ID, v.TestID, v.Name, v.Weight, v.Subject, v.Body)
		if err != nil {
			return fmt.Errorf("create ab variant %s: %w", v.Name, err)
		}
	}
	return tx.Commit()
}

func (r *ABTestRepo) UpdateTestStatus(ctx context.Context, testID string, status domain.ABTestStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outreach_ab_tests SET status = $2, updated_at = NOW() WHERE id = $1
	`, testID, status)
	if err != nil {
		return fmt.Errorf("update ab test status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return abtest.ErrNotFound
	}
	return nil
}

func (r *ABTestRepo) GetAssignment(ctx context.Context, testID, contactID string) (*domain.ABTestAssignment, error) {
	a := &domain.ABTestAssignment{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, test_id, contact_id, variant_name, assigned_at
		FROM outreach_ab_assignments
		WHERE test_id = $1 AND contact_id = $2
	`, testID, contactID).Scan(&a.ID, &a.TestID, &a.ContactID, &a.VariantName, &a.AssignedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

// CreateAssignment inserts the one-time assignment. The unique index on
// (test_id, contact_id) is the race safety net; its violation surfaces as
// abtest.ErrDuplicateAssignment.
func (r *ABTestRepo) CreateAssignment(ctx context.Context, a *domain.ABTestAssignment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_ab_assignments (id, test_id, contact_id, variant_name, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.TestID, a.ContactID, a.VariantName, a.AssignedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return abtest.ErrDuplicateAssignment
		}
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

func (r *ABTestRepo) AssignmentCounts(ctx context.Context, testID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT variant_name, COUNT(*)
		FROM outreach_ab_assignments
		WHERE test_id = $1
		GROUP BY variant_name
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("assignment counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan assignment count: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// AppendEvent inserts one funnel event. The payload column is JSONB, so an
// absent payload must go in as NULL, not as the empty string.
func (r *ABTestRepo) AppendEvent(ctx context.Context, e *domain.ABTestEvent) error {
	payload := sql.NullString{String: e.Payload, Valid: e.Payload != ""}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_ab_events (id, assignment_id, event_type, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.AssignmentID, e.EventType, payload, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("append ab event: %w", err)
	}
	return nil
}

// VariantResults rolls up assignment and event counts per variant.
func (r *ABTestRepo) VariantResults(ctx context.Context, testID string) ([]domain.ABVariantResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT v.name, v.weight,
		       COUNT(DISTINCT a.id) AS assigned,
		       COUNT(*) FILTER (WHERE e.event_type = 'sent')      AS sent,
		       COUNT(*) FILTER (WHERE e.event_type = 'opened')    AS opened,
		       COUNT(*) FILTER (WHERE e.event_type = 'clicked')   AS clicked,
		       COUNT(*) FILTER (WHERE e.event_type = 'responded') AS responded,
		       COUNT(*) FILTER (WHERE e.event_type = 'booked')    AS booked,
		       COUNT(*) FILTER (WHERE e.event_type = 'bounced')   AS bounced
		FROM outreach_ab_variants v
		LEFT JOIN outreach_ab_assignments a ON a.test_id = v.test_id AND a.variant_name = v.name
		LEFT JOIN outreach_ab_events e ON e.assignment_id = a.id
		WHERE v.test_id = $1
		GROUP BY v.name, v.weight
		ORDER BY v.name ASC
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("variant results: %w", err)
	}
	defer rows.Close()

	var out []domain.ABVariantResult
	total := 0
	for rows.Next() {
		var res domain.ABVariantResult
		if err := rows.Scan(
			&res.VariantName, &res.TargetWeight, &res.AssignedCount,
			&res.SentCount, &res.OpenCount, &res.ClickCount,
			&res.ResponseCount, &res.BookedCount, &res.BounceCount,
		); err != nil {
			return nil, fmt.Errorf("scan variant result: %w", err)
		}
		total += res.AssignedCount
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if total > 0 {
		for i := range out {
			out[i].ActualSharePct = float64(out[i].AssignedCount) / float64(total) * 100
		}
	}
	return out, nil
}
