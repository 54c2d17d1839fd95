// Package worker contains the two send-orchestration entry points: the
// long-running DispatchWorker that drains the durable queue with in-process
// sleeps, and the OnDemandProcessor that sends directly from the contact
// store and relies on invocation frequency for pacing.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/eligibility"
)

// ErrNotFound is returned by stores when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// ContactStore is the contact access both send paths need.
type ContactStore interface {
	Get(ctx context.Context, id string) (*domain.Contact, error)

	// PendingDue returns status=pending contacts whose scheduled_send_at is
	// at or before now, oldest created first, optionally filtered by SDR
	// and/or campaign.
	PendingDue(ctx context.Context, now time.Time, limit int, sdrID, campaignID *string) ([]domain.Contact, error)

	// MarkStatus performs the atomic pending→sent / pending→failed flip.
	// It must only transition rows still in pending, so a lost race between
	// two overlapping invocations wastes one send attempt at most.
	MarkStatus(ctx context.Context, id string, status domain.ContactStatus) error
}

// QueueStore is the durable send queue the dispatch worker drains.
type QueueStore interface {
	Enqueue(ctx context.Context, item *domain.SendQueueItem) (string, error)

	// NextPending peeks at the oldest pending item without claiming it, or
	// returns nil when the queue is empty. The dispatch worker peeks before
	// its pacing sleep so the delay counts toward the item it will claim.
	NextPending(ctx context.Context) (*domain.SendQueueItem, error)

	// ClaimNextPending atomically claims the oldest pending item for this
	// worker (pending→sending) or returns nil when the queue is empty.
	ClaimNextPending(ctx context.Context, workerID string) (*domain.SendQueueItem, error)

	MarkSent(ctx context.Context, id, providerMessageID string) error
	MarkFailed(ctx context.Context, id, errMsg string) error

	Get(ctx context.Context, id string) (*domain.SendQueueItem, error)
	PendingCount(ctx context.Context) (int, error)

	// StuckSending lists items abandoned in sending state longer than the
	// given age — the residue of a killed worker. Recovery is a deliberate
	// operator re-enqueue, never automatic.
	StuckSending(ctx context.Context, olderThan time.Duration) ([]domain.SendQueueItem, error)
}

// SessionStore persists dispatch session state and operator controls.
type SessionStore interface {
	Get(ctx context.Context, id string) (*domain.DispatchSession, error)
	GetByName(ctx context.Context, name string) (*domain.DispatchSession, error)
	Create(ctx context.Context, s *domain.DispatchSession) error
	SetStatus(ctx context.Context, id string, status domain.SessionStatus, pausedUntil *time.Time) error
	Attach(ctx context.Context, id, workerID string) error
	Heartbeat(ctx context.Context, id, workerID string, totalSent, totalFailed int) error
}

// EligibilityGate is the cooldown/daily-cap decision surface both send
// paths share. *eligibility.Gate satisfies it; tests substitute doubles.
type EligibilityGate interface {
	CanContactLead(ctx context.Context, phone string, email *string, daysThreshold int) eligibility.Decision
	DailyMessageCount(ctx context.Context, sdrID, campaignID *string, date time.Time) (int, error)
	RecordContact(ctx context.Context, p eligibility.RecordParams) error
}
