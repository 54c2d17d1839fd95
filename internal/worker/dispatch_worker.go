package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leadline/outreach-engine/internal/cadence"
	"github.com/leadline/outreach-engine/internal/channel"
	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/eligibility"
	"github.com/leadline/outreach-engine/internal/pkg/distlock"
	"github.com/leadline/outreach-engine/internal/pkg/logger"
)

// ErrSessionLocked is returned by Start when another worker already holds
// the sender-session lock.
var ErrSessionLocked = fmt.Errorf("sender session is locked by another worker")

const (
	defaultPollInterval    = 30 * time.Second
	defaultFailureCooldown = 30 * time.Second
	heartbeatInterval      = 30 * time.Second
	sessionLockTTL         = 2 * time.Minute
)

// DispatchWorker drains the durable send queue for one sender session.
// It is single-threaded and cooperative: one item per delay+break cycle,
// never two outbound sends in flight. The messagesSentThisSession counter
// is process-local and resets on every restart, which is intentional — a
// restarted worker is a fresh "work session" as far as pacing goes.
type DispatchWorker struct {
	queue    QueueStore
	contacts ContactStore
	sessions SessionStore
	gate     EligibilityGate
	settings cadence.SettingsSource
	sender   channel.Sender
	lock     distlock.DistLock

	sessionID string
	workerID  string

	pollInterval    time.Duration
	failureCooldown time.Duration

	// Optional per-worker settings override (tier 1 of the resolution chain).
	override *domain.CadenceSettings

	messagesSentThisSession int

	// Stats
	totalSent   int64
	totalFailed int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	// Injectable for tests. sleep is the uninterruptible pacing sleep:
	// once a delay or break starts it runs to completion, matching the
	// no-mid-delay-cancellation contract.
	sleep func(d time.Duration)
	clock func() time.Time
}

// NewDispatchWorker creates a worker bound to one persisted session.
func NewDispatchWorker(
	queue QueueStore,
	contacts ContactStore,
	sessions SessionStore,
	gate EligibilityGate,
	settings cadence.SettingsSource,
	sender channel.Sender,
	lock distlock.DistLock,
	sessionID, workerID string,
) *DispatchWorker {
	return &DispatchWorker{
		queue:           queue,
		contacts:        contacts,
		sessions:        sessions,
		gate:            gate,
		settings:        settings,
		sender:          sender,
		lock:            lock,
		sessionID:       sessionID,
		workerID:        workerID,
		pollInterval:    defaultPollInterval,
		failureCooldown: defaultFailureCooldown,
		sleep:           time.Sleep,
		clock:           time.Now,
	}
}

// SetPollInterval overrides the idle poll interval.
func (w *DispatchWorker) SetPollInterval(d time.Duration) { w.pollInterval = d }

// SetFailureCooldown overrides the post-failure cooldown sleep.
func (w *DispatchWorker) SetFailureCooldown(d time.Duration) { w.failureCooldown = d }

// SetSettingsOverride installs an explicit settings override that wins over
// the stored active record and the defaults.
func (w *DispatchWorker) SetSettingsOverride(s *domain.CadenceSettings) { w.override = s }

// Start acquires the sender-session lock, attaches to the session row and
// launches the dispatch loop. Returns ErrSessionLocked if another worker
// owns the session.
func (w *DispatchWorker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	acquired, err := w.lock.Acquire(w.ctx)
	if err != nil {
		w.markStopped()
		return fmt.Errorf("acquire session lock: %w", err)
	}
	if !acquired {
		w.markStopped()
		return ErrSessionLocked
	}

	if err := w.sessions.Attach(w.ctx, w.sessionID, w.workerID); err != nil {
		w.lock.Release(w.ctx)
		w.markStopped()
		return fmt.Errorf("attach session: %w", err)
	}

	logger.Info("dispatch worker starting",
		"session_id", w.sessionID,
		"worker_id", w.workerID,
		"channel", string(w.sender.Channel()),
	)

	w.wg.Add(1)
	go w.heartbeatLoop()

	w.wg.Add(1)
	go w.run()
	return nil
}

// Stop halts the loop and releases the session lock. A pacing sleep already
// in progress runs to completion first.
func (w *DispatchWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	logger.Info("dispatch worker stopping", "session_id", w.sessionID)
	w.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.lock.Release(ctx); err != nil {
		logger.Warn("failed to release session lock", "session_id", w.sessionID, "error", err.Error())
	}
}

func (w *DispatchWorker) markStopped() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// Stats returns the worker's running totals.
func (w *DispatchWorker) Stats() map[string]int64 {
	return map[string]int64{
		"total_sent":   atomic.LoadInt64(&w.totalSent),
		"total_failed": atomic.LoadInt64(&w.totalFailed),
	}
}

func (w *DispatchWorker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		wait := w.processCycle(w.ctx)
		if wait > 0 {
			w.idleWait(wait)
		}
	}
}

// processCycle runs one pass of the dispatch loop and returns how long to
// idle before the next pass. Zero means proceed immediately. Each gate in
// the sequence restarts the loop rather than erroring so a transient
// store failure never kills the worker.
func (w *DispatchWorker) processCycle(ctx context.Context) time.Duration {
	now := w.clock()

	session, err := w.sessions.Get(ctx, w.sessionID)
	if err != nil {
		logger.Error("failed to load session", "session_id", w.sessionID, "error", err.Error())
		return w.pollInterval
	}
	if !session.IsDispatchable(now) {
		logger.Debug("session not dispatchable", "session_id", w.sessionID, "status", string(session.Status))
		return w.pollInterval
	}

	settings := cadence.ResolveSettings(ctx, w.override, w.settings)

	if cadence.ShouldSkipDay(now.Weekday()) {
		logger.Debug("weekend, skipping", "day", now.Weekday().String())
		return w.pollInterval
	}

	if !cadence.IsWithinWorkingHours(settings, now) {
		if until, ok := cadence.TimeUntilWorkingHours(settings, now); ok {
			logger.Debug("outside working hours",
				"start", settings.StartTime,
				"end", settings.EndTime,
				"resumes_in", until.Round(time.Minute).String(),
			)
		}
		return w.pollInterval
	}

	sent, err := w.gate.DailyMessageCount(ctx, session.SDRID, nil, now)
	if err != nil {
		logger.Warn("daily count lookup failed, proceeding", "error", err.Error())
		sent = 0
	}
	if sent >= settings.DailyLimit {
		logger.Info("daily limit reached", "sent_today", sent, "daily_limit", settings.DailyLimit)
		return w.pollInterval
	}

	// Peek before pacing so the delay counts toward the item we then claim.
	next, err := w.queue.NextPending(ctx)
	if err != nil {
		logger.Error("queue peek failed", "error", err.Error())
		return w.pollInterval
	}
	if next == nil {
		return w.pollInterval
	}

	delaySeconds := cadence.CalculateDelay(w.messagesSentThisSession, settings)
	logger.Debug("pacing delay", "seconds", delaySeconds, "session_count", w.messagesSentThisSession)
	w.sleep(time.Duration(delaySeconds) * time.Second)

	br := cadence.ShouldTakeBreak(w.messagesSentThisSession, settings)
	var breakTaken *string
	if br.ShouldBreak {
		bt := string(br.Type)
		breakTaken = &bt
		logger.Info("taking break",
			"type", bt,
			"duration_seconds", br.DurationSeconds,
			"session_count", w.messagesSentThisSession,
		)
		w.sleep(time.Duration(br.DurationSeconds) * time.Second)
	}

	item, err := w.queue.ClaimNextPending(ctx, w.workerID)
	if err != nil {
		logger.Error("queue claim failed", "error", err.Error())
		return w.pollInterval
	}
	if item == nil {
		// Someone drained the item we peeked at. Not an error.
		return 0
	}

	if w.sendItem(ctx, item, delaySeconds, breakTaken) {
		return 0
	}
	return w.failureCooldown
}

// sendItem performs the channel send for a claimed item and records the
// outcome. Returns true on success. A failed send does not bump the session
// counter: no message went out, so it should not advance break/delay pacing.
func (w *DispatchWorker) sendItem(ctx context.Context, item *domain.SendQueueItem, delaySeconds int, breakTaken *string) bool {
	msg := &domain.ChannelMessage{
		ID:          item.ID,
		ContactID:   item.ContactID,
		CampaignID:  item.CampaignID,
		Channel:     w.sender.Channel(),
		Destination: item.Destination,
		Body:        item.Body,
	}

	result, err := w.sender.Send(ctx, msg)
	if err != nil || !result.Success {
		errMsg := "send failed"
		if err != nil {
			errMsg = err.Error()
		} else if result.Error != "" {
			errMsg = result.Error
		}
		w.recordFailure(ctx, item, errMsg, delaySeconds, breakTaken)
		return false
	}

	w.recordSuccess(ctx, item, result, delaySeconds, breakTaken)
	return true
}

func (w *DispatchWorker) recordSuccess(ctx context.Context, item *domain.SendQueueItem, result *domain.SendResult, delaySeconds int, breakTaken *string) {
	if err := w.queue.MarkSent(ctx, item.ID, result.ProviderMessageID); err != nil {
		logger.Error("failed to mark queue item sent", "item_id", item.ID, "error", err.Error())
	}
	if err := w.contacts.MarkStatus(ctx, item.ContactID, domain.ContactSent); err != nil {
		logger.Warn("failed to mark contact sent", "contact_id", item.ContactID, "error", err.Error())
	}

	err := w.gate.RecordContact(ctx, eligibilityRecord(item, w.sender.Channel(), domain.OutcomeSent, &delaySeconds, breakTaken, nil))
	if err != nil {
		logger.Error("failed to append history record", "contact_id", item.ContactID, "error", err.Error())
	}

	w.messagesSentThisSession++
	atomic.AddInt64(&w.totalSent, 1)
	logger.Info("message sent",
		"item_id", item.ID,
		"contact_id", item.ContactID,
		"destination", item.Destination,
		"provider_message_id", result.ProviderMessageID,
		"session_count", w.messagesSentThisSession,
	)
}

func (w *DispatchWorker) recordFailure(ctx context.Context, item *domain.SendQueueItem, errMsg string, delaySeconds int, breakTaken *string) {
	if err := w.queue.MarkFailed(ctx, item.ID, errMsg); err != nil {
		logger.Error("failed to mark queue item failed", "item_id", item.ID, "error", err.Error())
	}
	if err := w.contacts.MarkStatus(ctx, item.ContactID, domain.ContactFailed); err != nil {
		logger.Warn("failed to mark contact failed", "contact_id", item.ContactID, "error", err.Error())
	}

	err := w.gate.RecordContact(ctx, eligibilityRecord(item, w.sender.Channel(), domain.OutcomeFailed, &delaySeconds, breakTaken, &errMsg))
	if err != nil {
		logger.Error("failed to append history record", "contact_id", item.ContactID, "error", err.Error())
	}

	atomic.AddInt64(&w.totalFailed, 1)
	logger.Warn("message send failed",
		"item_id", item.ID,
		"contact_id", item.ContactID,
		"destination", item.Destination,
		"error", errMsg,
	)
}

// idleWait sleeps up to d but wakes immediately on Stop. Only idle waits
// are interruptible; pacing sleeps run through w.sleep and are not.
func (w *DispatchWorker) idleWait(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.ctx.Done():
	case <-t.C:
	}
}

// heartbeatLoop refreshes the session row's liveness and durable totals,
// and extends the session lock TTL so long pacing sleeps don't let the
// lock lapse mid-session.
func (w *DispatchWorker) heartbeatLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	var reportedSent, reportedFailed int64
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			sent := atomic.LoadInt64(&w.totalSent)
			failed := atomic.LoadInt64(&w.totalFailed)
			err := w.sessions.Heartbeat(w.ctx, w.sessionID, w.workerID,
				int(sent-reportedSent), int(failed-reportedFailed))
			if err != nil {
				logger.Warn("session heartbeat failed", "session_id", w.sessionID, "error", err.Error())
			} else {
				reportedSent, reportedFailed = sent, failed
			}

			if ext, ok := w.lock.(interface {
				Extend(ctx context.Context, ttl time.Duration) error
			}); ok {
				if err := ext.Extend(w.ctx, sessionLockTTL); err != nil {
					logger.Warn("session lock extend failed", "session_id", w.sessionID, "error", err.Error())
				}
			}
		}
	}
}

func eligibilityRecord(item *domain.SendQueueItem, ch domain.ChannelType, outcome domain.ContactOutcome, delaySeconds *int, breakTaken, errMsg *string) eligibility.RecordParams {
	p := eligibility.RecordParams{
		ContactID:    item.ContactID,
		CampaignID:   item.CampaignID,
		SDRID:        item.SDRID,
		Channel:      ch,
		Outcome:      outcome,
		DelaySeconds: delaySeconds,
		BreakTaken:   breakTaken,
		ErrorMessage: errMsg,
	}
	if ch == domain.ChannelEmail {
		dest := item.Destination
		p.Email = &dest
	} else {
		p.Phone = item.Destination
	}
	return p
}
