package worker

import (
	"context"
	"time"

	"github.com/leadline/outreach-engine/internal/cadence"
	"github.com/leadline/outreach-engine/internal/channel"
	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/eligibility"
	"github.com/leadline/outreach-engine/internal/pkg/logger"
)

// Skip reasons returned by an on-demand run. These are expected, frequent
// outcomes, not errors.
const (
	SkipWeekend      = "weekend"
	SkipOutsideHours = "outside_working_hours"
	SkipDailyLimit   = "daily_limit_reached"
	SkipNoneEligible = "no_eligible_contacts"
)

// MessageBuilder resolves a pending contact into a ready-to-send message:
// template rendering, variant content, destination selection.
type MessageBuilder interface {
	Build(ctx context.Context, c *domain.Contact) (*domain.ChannelMessage, error)
}

// OnDemandParams configures a single on-demand run.
type OnDemandParams struct {
	SDRID            *string
	CampaignID       *string
	MaxMessages      int // 0 means use the resolved settings' per-run cap
	SettingsOverride *domain.CadenceSettings
}

// ContactResult is the per-contact outcome of an on-demand run.
type ContactResult struct {
	ContactID    string                `json:"contact_id"`
	Outcome      domain.ContactOutcome `json:"outcome"`
	Error        string                `json:"error,omitempty"`
	DelaySeconds int                   `json:"delay_seconds,omitempty"`
	BreakType    string                `json:"break_type,omitempty"`
}

// RunResult is the aggregate outcome of one on-demand invocation.
type RunResult struct {
	Skipped     bool            `json:"skipped"`
	SkipReason  string          `json:"skip_reason,omitempty"`
	Candidates  int             `json:"candidates"`
	Eligible    int             `json:"eligible"`
	FilteredOut int             `json:"filtered_out"`
	Sent        int             `json:"sent"`
	Failed      int             `json:"failed"`
	Results     []ContactResult `json:"results,omitempty"`
}

// OnDemandProcessor is the stateless counterpart of the dispatch worker.
// It never sleeps: delays and breaks are computed and logged, and pacing
// comes from the frequency of external invocations. The session counter
// starts at zero on every run, scoped to this invocation's progress only.
// Safe to double-fire: a contact another invocation already flipped out of
// pending is simply not re-selected, and a lost status race costs at most
// one wasted send attempt.
type OnDemandProcessor struct {
	contacts ContactStore
	gate     EligibilityGate
	settings cadence.SettingsSource
	builder  MessageBuilder
	senders  map[domain.ChannelType]channel.Sender

	clock func() time.Time
}

// NewOnDemandProcessor creates an on-demand processor. Register at least
// one sender; a built message whose channel has no sender fails that
// contact, not the run.
func NewOnDemandProcessor(
	contacts ContactStore,
	gate EligibilityGate,
	settings cadence.SettingsSource,
	builder MessageBuilder,
	senders map[domain.ChannelType]channel.Sender,
) *OnDemandProcessor {
	return &OnDemandProcessor{
		contacts: contacts,
		gate:     gate,
		settings: settings,
		builder:  builder,
		senders:  senders,
		clock:    time.Now,
	}
}

// SetClock overrides the time source for tests.
func (p *OnDemandProcessor) SetClock(clock func() time.Time) { p.clock = clock }

// Run executes one on-demand pass. Failsafe skips (weekend, hours, daily
// limit, nothing eligible) come back as a structured result, never an
// error; an error return means the contact store itself is unusable.
func (p *OnDemandProcessor) Run(ctx context.Context, params OnDemandParams) (*RunResult, error) {
	settings := cadence.ResolveSettings(ctx, params.SettingsOverride, p.settings)
	now := p.clock()

	if cadence.ShouldSkipDay(now.Weekday()) {
		logger.Info("on-demand run skipped", "reason", SkipWeekend, "day", now.Weekday().String())
		return &RunResult{Skipped: true, SkipReason: SkipWeekend}, nil
	}
	if !cadence.IsWithinWorkingHours(settings, now) {
		logger.Info("on-demand run skipped", "reason", SkipOutsideHours,
			"start", settings.StartTime, "end", settings.EndTime)
		return &RunResult{Skipped: true, SkipReason: SkipOutsideHours}, nil
	}

	sentToday, err := p.gate.DailyMessageCount(ctx, params.SDRID, params.CampaignID, now)
	if err != nil {
		logger.Warn("daily count lookup failed, proceeding", "error", err.Error())
		sentToday = 0
	}
	if sentToday >= settings.DailyLimit {
		logger.Info("on-demand run skipped", "reason", SkipDailyLimit,
			"sent_today", sentToday, "daily_limit", settings.DailyLimit)
		return &RunResult{Skipped: true, SkipReason: SkipDailyLimit}, nil
	}

	maxMessages := params.MaxMessages
	if maxMessages <= 0 {
		maxMessages = settings.MaxMessagesPerRun
	}

	// Over-fetch so the eligibility filter still has enough to work with.
	candidates, err := p.contacts.PendingDue(ctx, now, maxMessages*2, params.SDRID, params.CampaignID)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Candidates: len(candidates)}

	var eligible []domain.Contact
	for _, c := range candidates {
		if len(eligible) >= maxMessages {
			break
		}
		decision := p.gate.CanContactLead(ctx, c.Phone, c.Email, settings.DaysSinceLastContact)
		if !decision.CanContact {
			result.FilteredOut++
			result.Results = append(result.Results, ContactResult{
				ContactID: c.ID,
				Outcome:   domain.OutcomeSkipped,
			})
			continue
		}
		eligible = append(eligible, c)
	}
	result.Eligible = len(eligible)

	if len(eligible) == 0 {
		logger.Info("on-demand run skipped", "reason", SkipNoneEligible,
			"candidates", len(candidates), "filtered_out", result.FilteredOut)
		result.Skipped = true
		result.SkipReason = SkipNoneEligible
		return result, nil
	}

	capacity := settings.DailyLimit - sentToday
	toSend := len(eligible)
	if capacity < toSend {
		toSend = capacity
	}

	sentCount := 0
	for i := 0; i < toSend; i++ {
		c := eligible[i]
		cr := p.processContact(ctx, &c, settings, sentCount)
		result.Results = append(result.Results, cr)
		switch cr.Outcome {
		case domain.OutcomeSent:
			sentCount++
			result.Sent++
		case domain.OutcomeFailed:
			result.Failed++
		}
	}

	logger.Info("on-demand run complete",
		"candidates", len(candidates),
		"eligible", len(eligible),
		"sent", result.Sent,
		"failed", result.Failed,
	)
	return result, nil
}

// processContact sends to one eligible contact. The delay and break are
// computed for observability only; this path never sleeps.
func (p *OnDemandProcessor) processContact(ctx context.Context, c *domain.Contact, settings domain.CadenceSettings, sentSoFar int) ContactResult {
	delaySeconds := cadence.CalculateDelay(sentSoFar, settings)
	br := cadence.ShouldTakeBreak(sentSoFar, settings)

	cr := ContactResult{ContactID: c.ID, DelaySeconds: delaySeconds}
	var breakTaken *string
	if br.ShouldBreak {
		bt := string(br.Type)
		cr.BreakType = bt
		breakTaken = &bt
	}
	logger.Debug("on-demand pacing (not slept)",
		"contact_id", c.ID,
		"delay_seconds", delaySeconds,
		"break", cr.BreakType,
	)

	ch := domain.ChannelWhatsApp
	msg, err := p.builder.Build(ctx, c)
	if err != nil {
		return p.fail(ctx, c, cr, ch, "build message: "+err.Error(), &delaySeconds, breakTaken)
	}
	ch = msg.Channel
	sender, ok := p.senders[ch]
	if !ok {
		return p.fail(ctx, c, cr, ch, "no sender registered for channel "+string(ch), &delaySeconds, breakTaken)
	}

	sendResult, err := sender.Send(ctx, msg)
	if err != nil {
		return p.fail(ctx, c, cr, ch, err.Error(), &delaySeconds, breakTaken)
	}
	if !sendResult.Success {
		return p.fail(ctx, c, cr, ch, sendResult.Error, &delaySeconds, breakTaken)
	}

	if err := p.contacts.MarkStatus(ctx, c.ID, domain.ContactSent); err != nil {
		// Lost the pending race to another invocation; the send went out
		// either way, so still record it.
		logger.Warn("failed to mark contact sent", "contact_id", c.ID, "error", err.Error())
	}
	if err := p.gate.RecordContact(ctx, contactRecord(c, ch, domain.OutcomeSent, &delaySeconds, breakTaken, nil)); err != nil {
		logger.Error("failed to append history record", "contact_id", c.ID, "error", err.Error())
	}

	cr.Outcome = domain.OutcomeSent
	return cr
}

func (p *OnDemandProcessor) fail(ctx context.Context, c *domain.Contact, cr ContactResult, ch domain.ChannelType, errMsg string, delaySeconds *int, breakTaken *string) ContactResult {
	if err := p.contacts.MarkStatus(ctx, c.ID, domain.ContactFailed); err != nil {
		logger.Warn("failed to mark contact failed", "contact_id", c.ID, "error", err.Error())
	}
	if err := p.gate.RecordContact(ctx, contactRecord(c, ch, domain.OutcomeFailed, delaySeconds, breakTaken, &errMsg)); err != nil {
		logger.Error("failed to append history record", "contact_id", c.ID, "error", err.Error())
	}
	logger.Warn("on-demand send failed", "contact_id", c.ID, "error", errMsg)
	cr.Outcome = domain.OutcomeFailed
	cr.Error = errMsg
	return cr
}

func contactRecord(c *domain.Contact, ch domain.ChannelType, outcome domain.ContactOutcome, delaySeconds *int, breakTaken, errMsg *string) eligibility.RecordParams {
	return eligibility.RecordParams{
		ContactID:    c.ID,
		CampaignID:   c.CampaignID,
		SDRID:        c.AssignedSDRID,
		Channel:      ch,
		Phone:        c.Phone,
		Email:        c.Email,
		Outcome:      outcome,
		DelaySeconds: delaySeconds,
		BreakTaken:   breakTaken,
		ErrorMessage: errMsg,
	}
}
