package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/leadline/outreach-engine/internal/abtest"
	"github.com/leadline/outreach-engine/internal/cadence"
	"github.com/leadline/outreach-engine/internal/domain"
)

// VariantStep pins the contact to an A/B variant at intake so the deficit
// balancer sees assignments in arrival order. A campaign with no active
// test is a no-op, not a failure.
type VariantStep struct {
	tests *abtest.Service
}

// NewVariantStep creates the variant assignment step.
func NewVariantStep(tests *abtest.Service) *VariantStep {
	return &VariantStep{tests: tests}
}

func (s *VariantStep) Name() string { return "variant_assignment" }

func (s *VariantStep) Run(ctx context.Context, c *domain.Contact) (string, error) {
	test, err := s.tests.ActiveTestForCampaign(ctx, c.CampaignID)
	if err != nil {
		return "", err
	}
	if test == nil {
		return "no active test", nil
	}
	a, err := s.tests.AssignVariant(ctx, test.ID, c.ID)
	if err != nil {
		return "", err
	}
	return "variant " + a.VariantName, nil
}

// ScheduleStore is the slice of contact persistence the schedule step needs.
type ScheduleStore interface {
	SetScheduledSendAt(ctx context.Context, id string, at time.Time) error
}

// ScheduleStep stamps the contact with the next instant the cadence policy
// would allow a send: now if inside the working window, otherwise rolled
// forward past closed hours and weekends. This is an upstream hint only —
// the dispatch loop re-checks every gate at send time.
type ScheduleStep struct {
	contacts ScheduleStore
	settings cadence.SettingsSource

	clock func() time.Time
}

// NewScheduleStep creates the send-time scheduling step.
func NewScheduleStep(contacts ScheduleStore, settings cadence.SettingsSource) *ScheduleStep {
	return &ScheduleStep{contacts: contacts, settings: settings, clock: time.Now}
}

// SetClock overrides the time source for tests.
func (s *ScheduleStep) SetClock(clock func() time.Time) { s.clock = clock }

func (s *ScheduleStep) Name() string { return "send_time_hint" }

func (s *ScheduleStep) Run(ctx context.Context, c *domain.Contact) (string, error) {
	settings := cadence.ResolveSettings(ctx, nil, s.settings)
	at := NextSendWindow(settings, s.clock())
	if err := s.contacts.SetScheduledSendAt(ctx, c.ID, at); err != nil {
		return "", err
	}
	c.ScheduledSendAt = &at
	return at.Format(time.RFC3339), nil
}

// NextSendWindow returns the earliest instant at or after now that falls on
// a weekday inside working hours.
func NextSendWindow(settings domain.CadenceSettings, now time.Time) time.Time {
	at := now
	for i := 0; i < 8; i++ { // at most a full week of rolling forward
		if cadence.ShouldSkipDay(at.Weekday()) {
			at = startOfNextDay(at)
			continue
		}
		if cadence.IsWithinWorkingHours(settings, at) {
			return at
		}
		until, ok := cadence.TimeUntilWorkingHours(settings, at)
		if !ok {
			return at
		}
		at = at.Add(until)
	}
	return at
}

func startOfNextDay(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, t.Location())
}

// RenderStep personalizes the contact's message template at intake. The
// rendered preview is surfaced in the step result; the authoritative render
// happens again at enqueue/build time so late variant changes still apply.
type RenderStep struct {
	builder *Builder
}

// NewRenderStep creates the personalization render step.
func NewRenderStep(builder *Builder) *RenderStep {
	return &RenderStep{builder: builder}
}

func (s *RenderStep) Name() string { return "personalization_render" }

func (s *RenderStep) Run(ctx context.Context, c *domain.Contact) (string, error) {
	msg, err := s.builder.Build(ctx, c)
	if err != nil {
		return "", err
	}
	preview := msg.Body
	if len(preview) > 80 {
		preview = preview[:80] + "..."
	}
	return fmt.Sprintf("%s via %s", preview, msg.Channel), nil
}
