// Package eligibility decides whether a contact may be messaged right now.
// It owns the single write path into the contact-history ledger, which is
// the source of truth for both cooldown checks and daily volume counters.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/pkg/logger"
)

// HistoryRepository is the ledger access the gate needs.
type HistoryRepository interface {
	// LastContact returns the most recent history record matching the phone
	// or email, or nil when the contact has never been attempted.
	LastContact(ctx context.Context, phone string, email *string) (*domain.ContactHistoryRecord, error)

	// CountSentOnDay counts outcome=sent records within the local calendar
	// day of date, optionally filtered by SDR and/or campaign.
	CountSentOnDay(ctx context.Context, sdrID, campaignID *string, date time.Time) (int, error)

	// Append adds one record to the ledger. Records are never mutated.
	Append(ctx context.Context, rec *domain.ContactHistoryRecord) error
}

// Decision is the outcome of one cooldown check.
type Decision struct {
	CanContact       bool       `json:"can_contact"`
	LastContactedAt  *time.Time `json:"last_contacted_at"`
	DaysSinceContact *float64   `json:"days_since_contact"`
}

// Gate evaluates contact eligibility against the history ledger. The Redis
// client is optional; when present it fronts the daily counter so the two
// send paths don't hammer the ledger on every iteration. The ledger always
// remains authoritative.
type Gate struct {
	repo  HistoryRepository
	redis *redis.Client
	clock func() time.Time
}

// NewGate creates an eligibility gate. redisClient may be nil.
func NewGate(repo HistoryRepository, redisClient *redis.Client) *Gate {
	return &Gate{repo: repo, redis: redisClient, clock: time.Now}
}

// SetClock overrides the time source. Tests only.
func (g *Gate) SetClock(clock func() time.Time) { g.clock = clock }

// CanContactLead checks whether the cooldown has elapsed for the contact
// identified by phone or email. A contact exactly at the threshold is
// eligible (>= comparison).
//
// On a ledger lookup failure the gate fails OPEN: a transient store blip
// must not silently halt all outreach. The miss is logged; the trade-off is
// deliberate and documented, not a bug to fix here.
func (g *Gate) CanContactLead(ctx context.Context, phone string, email *string, daysThreshold int) Decision {
	last, err := g.repo.LastContact(ctx, phone, email)
	if err != nil {
		logger.Warn("eligibility lookup failed, failing open",
			"phone", phone, "error", err)
		return Decision{CanContact: true}
	}
	if last == nil {
		return Decision{CanContact: true}
	}

	days := g.clock().Sub(last.ContactedAt).Hours() / 24
	return Decision{
		CanContact:       days >= float64(daysThreshold),
		LastContactedAt:  &last.ContactedAt,
		DaysSinceContact: &days,
	}
}

// DailyMessageCount returns the number of messages sent within the local
// calendar day of date, optionally filtered by SDR and/or campaign. Redis
// is consulted first; any cache failure falls through to the ledger.
func (g *Gate) DailyMessageCount(ctx context.Context, sdrID, campaignID *string, date time.Time) (int, error) {
	key := dailyKey(sdrID, campaignID, date)
	if g.redis != nil {
		if n, err := g.redis.Get(ctx, key).Int(); err == nil {
			return n, nil
		}
	}

	count, err := g.repo.CountSentOnDay(ctx, sdrID, campaignID, date)
	if err != nil {
		return 0, fmt.Errorf("daily message count: %w", err)
	}

	if g.redis != nil {
		// Repopulate the cache; expire shortly after local midnight.
		ttl := time.Until(endOfDay(date)) + time.Hour
		if ttl > 0 {
			if err := g.redis.Set(ctx, key, count, ttl).Err(); err != nil {
				logger.Debug("daily counter cache set failed", "key", key, "error", err)
			}
		}
	}
	return count, nil
}

// RecordParams describes one actual send attempt to be recorded. Callers
// must record exactly once per attempt (sent, failed, or explicit skip) and
// never for a mere eligibility check.
type RecordParams struct {
	ContactID    string
	CampaignID   string
	SDRID        *string
	Channel      domain.ChannelType
	Phone        string
	Email        *string
	Outcome      domain.ContactOutcome
	DelaySeconds *int
	BreakTaken   *string
	ErrorMessage *string
}

// RecordContact appends one ledger record for an actual send attempt and
// bumps the cached daily counters for every filter combination the record
// matches. The cache bump is best-effort; the ledger append is not.
func (g *Gate) RecordContact(ctx context.Context, p RecordParams) error {
	rec := &domain.ContactHistoryRecord{
		ID:           uuid.New().String(),
		ContactID:    p.ContactID,
		CampaignID:   p.CampaignID,
		SDRID:        p.SDRID,
		Channel:      p.Channel,
		Phone:        p.Phone,
		Email:        p.Email,
		Outcome:      p.Outcome,
		DelaySeconds: p.DelaySeconds,
		BreakTaken:   p.BreakTaken,
		ErrorMessage: p.ErrorMessage,
		ContactedAt:  g.clock(),
	}
	if err := g.repo.Append(ctx, rec); err != nil {
		return fmt.Errorf("record contact: %w", err)
	}

	if g.redis != nil && p.Outcome == domain.OutcomeSent {
		g.bumpDailyCounters(ctx, p.SDRID, &p.CampaignID, rec.ContactedAt)
	}
	return nil
}

// bumpDailyCounters increments every cached counter the new record falls
// under: unfiltered, per-SDR, per-campaign, and per-SDR-per-campaign.
func (g *Gate) bumpDailyCounters(ctx context.Context, sdrID, campaignID *string, at time.Time) {
	keys := []string{dailyKey(nil, nil, at)}
	if sdrID != nil {
		keys = append(keys, dailyKey(sdrID, nil, at))
	}
	if campaignID != nil {
		keys = append(keys, dailyKey(nil, campaignID, at))
	}
	if sdrID != nil && campaignID != nil {
		keys = append(keys, dailyKey(sdrID, campaignID, at))
	}

	ttl := time.Until(endOfDay(at)) + time.Hour
	pipe := g.redis.Pipeline()
	for _, key := range keys {
		// Only bump counters that already exist; a missing key means the
		// ledger hasn't been consulted today and will seed it correctly.
		pipe.Eval(ctx, `if redis.call("EXISTS", KEYS[1]) == 1 then return redis.call("INCR", KEYS[1]) end return 0`, []string{key})
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Debug("daily counter bump failed", "error", err)
	}
}

func dailyKey(sdrID, campaignID *string, date time.Time) string {
	sdr := "all"
	if sdrID != nil {
		sdr = *sdrID
	}
	camp := "all"
	if campaignID != nil {
		camp = *campaignID
	}
	return fmt.Sprintf("outreach:daily:%s:%s:%s", sdr, camp, date.Format("2006-01-02"))
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999000000, t.Location())
}
