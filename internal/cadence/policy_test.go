package cadence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadline/outreach-engine/internal/domain"
)

func TestCalculateDelayHumanModeRange(t *testing.T) {
	s := domain.CadenceSettings{HumanMode: true}

	sum := 0
	for i := 0; i < 1000; i++ {
		d := CalculateDelay(i, s)
		require.GreaterOrEqual(t, d, 60, "human-mode delay below range")
		require.LessOrEqual(t, d, 210, "human-mode delay above range")
		sum += d
	}

	mean := float64(sum) / 1000
	assert.InDelta(t, 135, mean, 15, "sample mean should cluster near the midpoint")
}

func TestCalculateDelayStandardMode(t *testing.T) {
	s := domain.CadenceSettings{
		HumanMode:            false,
		DelayBetweenMessages: 100,
		DelayVariation:       0.2,
	}

	for i := 0; i < 1000; i++ {
		d := CalculateDelay(i, s)
		assert.GreaterOrEqual(t, d, 80)
		assert.LessOrEqual(t, d, 120)
	}
}

func TestCalculateDelayFloor(t *testing.T) {
	tests := []struct {
		name string
		s    domain.CadenceSettings
	}{
		{"zero base delay", domain.CadenceSettings{DelayBetweenMessages: 0}},
		{"tiny base delay", domain.CadenceSettings{DelayBetweenMessages: 1, DelayVariation: 1.0}},
		{"negative-leaning jitter", domain.CadenceSettings{DelayBetweenMessages: 4, DelayVariation: 0.9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 200; i++ {
				assert.GreaterOrEqual(t, CalculateDelay(i, tt.s), MinDelaySeconds)
			}
		})
	}
}

func TestShouldTakeBreak(t *testing.T) {
	s := domain.CadenceSettings{
		CoffeeBreakInterval: 15,
		CoffeeBreakDuration: 300,
		LongBreakInterval:   50,
		LongBreakDuration:   1800,
	}

	tests := []struct {
		count    int
		expected domain.BreakType
		duration int
	}{
		{0, domain.BreakNone, 0},
		{1, domain.BreakNone, 0},
		{14, domain.BreakNone, 0},
		{15, domain.BreakCoffee, 300},
		{30, domain.BreakCoffee, 300},
		{50, domain.BreakLong, 1800},
		{100, domain.BreakLong, 1800},
		// 150 is a multiple of both 15 and 50; the long break wins.
		{150, domain.BreakLong, 1800},
	}

	for _, tt := range tests {
		d := ShouldTakeBreak(tt.count, s)
		assert.Equal(t, tt.expected, d.Type, "count=%d", tt.count)
		assert.Equal(t, tt.expected != domain.BreakNone, d.ShouldBreak, "count=%d", tt.count)
		assert.Equal(t, tt.duration, d.DurationSeconds, "count=%d", tt.count)
	}
}

func TestShouldTakeBreakNeverAtZero(t *testing.T) {
	configs := []domain.CadenceSettings{
		{CoffeeBreakInterval: 1, LongBreakInterval: 1},
		{CoffeeBreakInterval: 15, LongBreakInterval: 50},
		{},
	}
	for _, s := range configs {
		assert.False(t, ShouldTakeBreak(0, s).ShouldBreak)
	}
}

func TestIsWithinWorkingHours(t *testing.T) {
	s := domain.CadenceSettings{
		WorkingHoursEnabled: true,
		StartTime:           "09:00",
		EndTime:             "18:00",
	}

	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 3, h, m, 0, 0, time.UTC) // a Tuesday
	}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before start", at(8, 59), false},
		{"at start (inclusive)", at(9, 0), true},
		{"midday", at(12, 30), true},
		{"at end (inclusive)", at(18, 0), true},
		{"after end", at(18, 1), false},
		{"midnight", at(0, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWithinWorkingHours(s, tt.now))
		})
	}

	s.WorkingHoursEnabled = false
	assert.True(t, IsWithinWorkingHours(s, at(3, 0)), "disabled working hours always pass")
}

func TestTimeUntilWorkingHours(t *testing.T) {
	s := domain.CadenceSettings{
		WorkingHoursEnabled: true,
		StartTime:           "09:00",
		EndTime:             "18:00",
	}

	t.Run("already within hours", func(t *testing.T) {
		now := time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)
		_, ok := TimeUntilWorkingHours(s, now)
		assert.False(t, ok)
	})

	t.Run("before today's start", func(t *testing.T) {
		now := time.Date(2026, 3, 3, 7, 0, 0, 0, time.UTC)
		d, ok := TimeUntilWorkingHours(s, now)
		require.True(t, ok)
		assert.Equal(t, 2*time.Hour, d)
	})

	t.Run("after today's end rolls to tomorrow", func(t *testing.T) {
		now := time.Date(2026, 3, 3, 20, 0, 0, 0, time.UTC)
		d, ok := TimeUntilWorkingHours(s, now)
		require.True(t, ok)
		assert.Equal(t, 13*time.Hour, d)
	})
}

func TestShouldSkipDay(t *testing.T) {
	assert.True(t, ShouldSkipDay(time.Sunday))
	assert.True(t, ShouldSkipDay(time.Saturday))
	for d := time.Monday; d <= time.Friday; d++ {
		assert.False(t, ShouldSkipDay(d), "weekday %v should be sendable", d)
	}
}

type fakeSettingsSource struct {
	settings *domain.CadenceSettings
	err      error
}

func (f *fakeSettingsSource) ActiveSettings(ctx context.Context) (*domain.CadenceSettings, error) {
	return f.settings, f.err
}

func TestResolveSettingsTiers(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit override wins", func(t *testing.T) {
		override := &domain.CadenceSettings{DailyLimit: 42, StartTime: "08:00", EndTime: "17:00"}
		stored := &domain.CadenceSettings{DailyLimit: 99}
		got := ResolveSettings(ctx, override, &fakeSettingsSource{settings: stored})
		assert.Equal(t, 42, got.DailyLimit)
	})

	t.Run("stored active settings next", func(t *testing.T) {
		stored := &domain.CadenceSettings{DailyLimit: 99, StartTime: "10:00", EndTime: "16:00"}
		got := ResolveSettings(ctx, nil, &fakeSettingsSource{settings: stored})
		assert.Equal(t, 99, got.DailyLimit)
		assert.Equal(t, "10:00", got.StartTime)
	})

	t.Run("defaults when store empty", func(t *testing.T) {
		got := ResolveSettings(ctx, nil, &fakeSettingsSource{})
		assert.Equal(t, Defaults(), got)
	})

	t.Run("defaults when store errors", func(t *testing.T) {
		got := ResolveSettings(ctx, nil, &fakeSettingsSource{err: errors.New("connection refused")})
		assert.Equal(t, Defaults(), got)
	})

	t.Run("zero fields backfilled", func(t *testing.T) {
		stored := &domain.CadenceSettings{DailyLimit: 10} // everything else zero
		got := ResolveSettings(ctx, nil, &fakeSettingsSource{settings: stored})
		assert.Equal(t, 10, got.DailyLimit)
		assert.Equal(t, Defaults().StartTime, got.StartTime)
		assert.Greater(t, got.CoffeeBreakInterval, 0)
		assert.Greater(t, got.LongBreakInterval, 0)
	})

	t.Run("malformed clock strings replaced", func(t *testing.T) {
		stored := &domain.CadenceSettings{StartTime: "not-a-time", EndTime: "25:99", DailyLimit: 5}
		got := ResolveSettings(ctx, nil, &fakeSettingsSource{settings: stored})
		assert.Equal(t, Defaults().StartTime, got.StartTime)
		assert.Equal(t, Defaults().EndTime, got.EndTime)
	})
}
