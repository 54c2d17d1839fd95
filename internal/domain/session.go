package domain

import "time"

// SessionStatus enumerates the operator-visible states of a dispatch session.
type SessionStatus string

const (
	SessionRunning SessionStatus = "running"
	SessionPaused  SessionStatus = "paused"
	SessionStopped SessionStatus = "stopped"
)

// DispatchSession is the persisted state of one named sending session.
// Exactly one worker process owns a session at a time; the channel-side
// login (e.g. an authenticated WhatsApp client) is bound to it.
//
// Pause/resume gate whether the worker's loop proceeds; they do not touch
// the worker's in-process session counter, which is deliberately ephemeral.
type DispatchSession struct {
	ID              string        `json:"id" db:"id"`
	Name            string        `json:"name" db:"name"`
	SDRID           *string       `json:"sdr_id" db:"sdr_id"`
	Status          SessionStatus `json:"status" db:"status"`
	PausedUntil     *time.Time    `json:"paused_until" db:"paused_until"`
	TotalSent       int           `json:"total_sent" db:"total_sent"`
	TotalFailed     int           `json:"total_failed" db:"total_failed"`
	WorkerID        *string       `json:"worker_id" db:"worker_id"`
	LastHeartbeatAt *time.Time    `json:"last_heartbeat_at" db:"last_heartbeat_at"`
	StartedAt       *time.Time    `json:"started_at" db:"started_at"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// IsDispatchable reports whether the worker loop may proceed past its gate
// for this session at the given instant.
func (s *DispatchSession) IsDispatchable(now time.Time) bool {
	if s.Status == SessionStopped {
		return false
	}
	if s.Status == SessionPaused {
		return s.PausedUntil != nil && now.After(*s.PausedUntil)
	}
	return true
}
