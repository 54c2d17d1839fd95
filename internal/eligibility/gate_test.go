package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadline/outreach-engine/internal/domain"
)

type fakeHistoryRepo struct {
	last      *domain.ContactHistoryRecord
	lastErr   error
	count     int
	countErr  error
	appended  []*domain.ContactHistoryRecord
	appendErr error
}

func (f *fakeHistoryRepo) LastContact(ctx context.Context, phone string, email *string) (*domain.ContactHistoryRecord, error) {
	return f.last, f.lastErr
}

func (f *fakeHistoryRepo) CountSentOnDay(ctx context.Context, sdrID, campaignID *string, date time.Time) (int, error) {
	return f.count, f.countErr
}

func (f *fakeHistoryRepo) Append(ctx context.Context, rec *domain.ContactHistoryRecord) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, rec)
	return nil
}

func TestCanContactLeadNoHistory(t *testing.T) {
	g := NewGate(&fakeHistoryRepo{}, nil)
	d := g.CanContactLead(context.Background(), "+5511999990000", nil, 3)
	assert.True(t, d.CanContact)
	assert.Nil(t, d.LastContactedAt)
}

func TestCanContactLeadCooldownBoundary(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		daysAgo   float64
		threshold int
		want      bool
	}{
		{"exactly at threshold is eligible", 3.0, 3, true},
		{"just under threshold", 2.9, 3, false},
		{"well past threshold", 10, 3, true},
		{"contacted yesterday", 1, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last := now.Add(-time.Duration(tt.daysAgo * 24 * float64(time.Hour)))
			repo := &fakeHistoryRepo{last: &domain.ContactHistoryRecord{ContactedAt: last}}
			g := NewGate(repo, nil)
			g.SetClock(func() time.Time { return now })

			d := g.CanContactLead(context.Background(), "+5511999990000", nil, tt.threshold)
			assert.Equal(t, tt.want, d.CanContact)
			require.NotNil(t, d.LastContactedAt)
			assert.Equal(t, last, *d.LastContactedAt)
			require.NotNil(t, d.DaysSinceContact)
			assert.InDelta(t, tt.daysAgo, *d.DaysSinceContact, 0.01)
		})
	}
}

func TestCanContactLeadFailsOpenOnStoreError(t *testing.T) {
	repo := &fakeHistoryRepo{lastErr: errors.New("store unavailable")}
	g := NewGate(repo, nil)

	d := g.CanContactLead(context.Background(), "+5511999990000", nil, 3)
	assert.True(t, d.CanContact, "gate must fail open on lookup failure")
	assert.Nil(t, d.LastContactedAt)
}

func TestDailyMessageCountLedgerFallback(t *testing.T) {
	repo := &fakeHistoryRepo{count: 17}
	g := NewGate(repo, nil)

	n, err := g.DailyMessageCount(context.Background(), nil, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 17, n)
}

func TestDailyMessageCountUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := &fakeHistoryRepo{count: 5}
	g := NewGate(repo, client)
	date := time.Now()

	// First call misses the cache and seeds it from the ledger.
	n, err := g.DailyMessageCount(context.Background(), nil, nil, date)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// Ledger changes are invisible until the cache expires.
	repo.count = 99
	n, err = g.DailyMessageCount(context.Background(), nil, nil, date)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestRecordContactAppendsOnce(t *testing.T) {
	repo := &fakeHistoryRepo{}
	g := NewGate(repo, nil)

	delay := 95
	err := g.RecordContact(context.Background(), RecordParams{
		ContactID:    "c-1",
		CampaignID:   "camp-1",
		Channel:      domain.ChannelWhatsApp,
		Phone:        "+5511999990000",
		Outcome:      domain.OutcomeSent,
		DelaySeconds: &delay,
	})
	require.NoError(t, err)
	require.Len(t, repo.appended, 1)

	rec := repo.appended[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, domain.OutcomeSent, rec.Outcome)
	assert.Equal(t, domain.ChannelWhatsApp, rec.Channel)
	require.NotNil(t, rec.DelaySeconds)
	assert.Equal(t, 95, *rec.DelaySeconds)
	assert.False(t, rec.ContactedAt.IsZero())
}

func TestRecordContactSurfacesWriteError(t *testing.T) {
	repo := &fakeHistoryRepo{appendErr: errors.New("write refused")}
	g := NewGate(repo, nil)

	err := g.RecordContact(context.Background(), RecordParams{
		ContactID:  "c-1",
		CampaignID: "camp-1",
		Channel:    domain.ChannelWhatsApp,
		Phone:      "+5511999990000",
		Outcome:    domain.OutcomeFailed,
	})
	assert.Error(t, err)
}

func TestRecordContactBumpsExistingCachedCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := &fakeHistoryRepo{count: 3}
	g := NewGate(repo, client)
	date := time.Now()

	// Seed the cache via a read.
	n, err := g.DailyMessageCount(context.Background(), nil, nil, date)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	err = g.RecordContact(context.Background(), RecordParams{
		ContactID:  "c-1",
		CampaignID: "camp-1",
		Channel:    domain.ChannelWhatsApp,
		Phone:      "+5511999990000",
		Outcome:    domain.OutcomeSent,
	})
	require.NoError(t, err)

	n, err = g.DailyMessageCount(context.Background(), nil, nil, date)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "cached unfiltered counter should have been bumped")
}

func TestRecordContactSkipDoesNotBumpCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := &fakeHistoryRepo{count: 3}
	g := NewGate(repo, client)
	date := time.Now()

	_, err := g.DailyMessageCount(context.Background(), nil, nil, date)
	require.NoError(t, err)

	err = g.RecordContact(context.Background(), RecordParams{
		ContactID:  "c-1",
		CampaignID: "camp-1",
		Channel:    domain.ChannelWhatsApp,
		Phone:      "+5511999990000",
		Outcome:    domain.OutcomeSkipped,
	})
	require.NoError(t, err)

	n, err := g.DailyMessageCount(context.Background(), nil, nil, date)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "skips never count against the daily limit")
}
