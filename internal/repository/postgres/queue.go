package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/worker"
)

// QueueRepo implements worker.QueueStore against outreach_send_queue.
type QueueRepo struct{ db *sql.DB }

// NewQueueRepo creates a Postgres-backed send queue.
func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{db: db} }

const queueColumns = `
	id, contact_id, campaign_id, sdr_id, destination, body, status,
	error_message, provider_message_id, claimed_by, claimed_at, sent_at,
	created_at, updated_at`

func scanQueueItem(row interface{ Scan(...interface{}) error }) (*domain.SendQueueItem, error) {
	item := &domain.SendQueueItem{}
	err := row.Scan(
		&item.ID, &item.ContactID, &item.CampaignID, &item.SDRID,
		&item.Destination, &item.Body, &item.Status, &item.ErrorMessage,
		&item.ProviderMessageID, &item.ClaimedBy, &item.ClaimedAt, &item.SentAt,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Enqueue inserts a new pending item and returns its id.
func (r *QueueRepo) Enqueue(ctx context.Context, item *domain.SendQueueItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_send_queue
			(id, contact_id, campaign_id, sdr_id, destination, body, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', NOW(), NOW())
	`, item.ID, item.ContactID, item.CampaignID, item.SDRID, item.Destination, item.Body)
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return item.ID, nil
}

// NextPending peeks at the oldest pending item without claiming it.
// Returns nil when the queue is empty.
func (r *QueueRepo) NextPending(ctx context.Context) (*domain.SendQueueItem, error) {
	item, err := scanQueueItem(r.db.QueryRowContext(ctx, `
		SELECT `+queueColumns+`
		FROM outreach_send_queue
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT 1
	`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peek queue: %w", err)
	}
	return item, nil
}

// ClaimNextPending claims the oldest pending item for this worker,
// transitioning it to sending. Only pending rows are claimable, so sent
// and failed items can never re-enter the loop. Returns nil when the queue
// is empty.
func (r *QueueRepo) ClaimNextPending(ctx context.Context, workerID string) (*domain.SendQueueItem, error) {
	item, err := scanQueueItem(r.db.QueryRowContext(ctx, `
		UPDATE outreach_send_queue
		SET status = 'sending', claimed_by = $1, claimed_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM outreach_send_queue
			WHERE status = 'pending'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+queueColumns, workerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim queue item: %w", err)
	}
	return item, nil
}

// MarkSent moves a sending item to its terminal sent state.
func (r *QueueRepo) MarkSent(ctx context.Context, id, providerMessageID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outreach_send_queue
		SET status = 'sent', provider_message_id = $2, sent_at = NOW(),
		    error_message = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, providerMessageID)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// MarkFailed moves a sending item to its terminal failed state with the
// error text. There is no automatic retry out of failed.
func (r *QueueRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outreach_send_queue
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1
	`, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (r *QueueRepo) Get(ctx context.Context, id string) (*domain.SendQueueItem, error) {
	item, err := scanQueueItem(r.db.QueryRowContext(ctx, `
		SELECT `+queueColumns+` FROM outreach_send_queue WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, worker.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

func (r *QueueRepo) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outreach_send_queue WHERE status = 'pending'
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return n, nil
}

// StuckSending lists items sitting in sending state longer than olderThan.
// These are abandoned claims from a killed worker, surfaced for operator
// re-enqueue.
func (r *QueueRepo) StuckSending(ctx context.Context, olderThan time.Duration) ([]domain.SendQueueItem, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM outreach_send_queue
		WHERE status = 'sending' AND claimed_at < $1
		ORDER BY claimed_at ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("stuck sending: %w", err)
	}
	defer rows.Close()

	var out []domain.SendQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// Requeue resets a failed or stuck item back to pending. This is the
// deliberate operator action, exposed through the API, never called by the
// dispatch loop itself.
func (r *QueueRepo) Requeue(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outreach_send_queue
		SET status = 'pending', claimed_by = NULL, claimed_at = NULL,
		    error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('failed', 'sending')
	`, id)
	if err != nil {
		return fmt.Errorf("requeue: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return worker.ErrNotFound
	}
	return nil
}
