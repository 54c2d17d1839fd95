// Package distlock provides the exclusive-ownership lock guarding a sender
// session. The destination transport treats two processes driving one
// authenticated session as a security anomaly, so a dispatch worker must
// hold this lock for the whole time it owns the session.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// NewSessionLock creates a lock over the named sender session using the
// best available backend. If redisClient is non-nil, uses Redis (preferred
// for cross-host locking). Otherwise falls back to PostgreSQL advisory
// locks, which release automatically when the holding connection drops.
func NewSessionLock(redisClient *redis.Client, db *sql.DB, sessionName string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, "session:"+sessionName, ttl)
	}
	return NewPGAdvisoryLock(db, "session:"+sessionName)
}

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
// pg_try_advisory_lock is session-scoped: the lock drops with the DB
// connection, giving crash-safety similar to Redis TTL expiry.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock without blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

// Release releases the advisory lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
