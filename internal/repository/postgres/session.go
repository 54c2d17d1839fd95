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

// SessionRepo implements worker.SessionStore.
type SessionRepo struct{ db *sql.DB }

// NewSessionRepo creates a Postgres-backed dispatch session store.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = `
	id, name, sdr_id, status, paused_until, total_sent, total_failed,
	worker_id, last_heartbeat_at, started_at, created_at, updated_at`

func scanSession(row interface{ Scan(...interface{}) error }) (*domain.DispatchSession, error) {
	s := &domain.DispatchSession{}
	err := row.Scan(
		&s.ID, &s.Name, &s.SDRID, &s.Status, &s.PausedUntil,
		&s.TotalSent, &s.TotalFailed, &s.WorkerID, &s.LastHeartbeatAt,
		&s.StartedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.DispatchSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM outreach_dispatch_sessions WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, worker.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) GetByName(ctx context.Context, name string) (*domain.DispatchSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM outreach_dispatch_sessions WHERE name = $1
	`, name))
	if err == sql.ErrNoRows {
		return nil, worker.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session by name: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) Create(ctx context.Context, s *domain.DispatchSession) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_dispatch_sessions
			(id, name, sdr_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`, s.ID, s.Name, s.SDRID, s.Status)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// SetStatus applies operator controls: running, paused (optionally until a
// timestamp), or stopped.
func (r *SessionRepo) SetStatus(ctx context.Context, id string, status domain.SessionStatus, pausedUntil *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outreach_dispatch_sessions
		SET status = $2, paused_until = $3, updated_at = NOW()
		WHERE id = $1
	`, id, status, pausedUntil)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return worker.ErrNotFound
	}
	return nil
}

// Attach binds a worker process to the session at startup.
func (r *SessionRepo) Attach(ctx context.Context, id, workerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outreach_dispatch_sessions
		SET worker_id = $2, started_at = NOW(), last_heartbeat_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, workerID)
	if err != nil {
		return fmt.Errorf("attach session: %w", err)
	}
	return nil
}

// Heartbeat refreshes liveness and durable totals for the session.
func (r *SessionRepo) Heartbeat(ctx context.Context, id, workerID string, totalSent, totalFailed int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outreach_dispatch_sessions
		SET last_heartbeat_at = NOW(), total_sent = total_sent + $3,
		    total_failed = total_failed + $4, updated_at = NOW()
		WHERE id = $1 AND worker_id = $2
	`, id, workerID, totalSent, totalFailed)
	if err != nil {
		return fmt.Errorf("session heartbeat: %w", err)
	}
	return nil
}
