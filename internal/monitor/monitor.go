package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"mail-autoresponder-go/internal/filter"
	"mail-autoresponder-go/internal/mailbox"
	"mail-autoresponder-go/internal/metrics"
	"mail-autoresponder-go/internal/models"
	"mail-autoresponder-go/internal/responder"
)

// State is the monitor lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

var (
	ErrAlreadyRunning = errors.New("monitor is already running")
	ErrNotRunning     = errors.New("monitor is not running")
)

// maxConsecutiveFailures is the threshold after which a distinguished
// alerting log entry is written. Polling continues regardless.
const maxConsecutiveFailures = 5

// Filter decides whether an email is eligible for an automatic reply.
type Filter interface {
	Evaluate(email models.EmailMessage) filter.Decision
}

// Responder is the reply pipeline consumed by the monitor.
type Responder interface {
	GenerateReply(email models.EmailMessage) *models.Reply
	SendReply(ctx context.Context, reply *models.Reply) responder.SendResult
	QueueForConfirmation(reply *models.Reply)
}

// Store persists activity logs.
type Store interface {
	SaveActivityLog(log *models.ActivityLog) error
}

// EmailMonitor polls the mailbox at a fixed interval and drives every unread
// email through filter, responder and read tracker. One instance owns its own
// scheduler state; multiple independent monitors can coexist.
type EmailMonitor struct {
	fetcher   mailbox.Fetcher
	reads     mailbox.ReadTracker
	filter    Filter
	responder Responder
	store     Store
	metrics   *metrics.Metrics

	mu       sync.Mutex
	state    State
	cron     *cron.Cron
	entryID  cron.EntryID
	interval int

	// inFlight guarantees at most one poll cycle at a time; overlapping timer
	// firings are skipped, not queued.
	inFlight atomic.Bool
	wg       sync.WaitGroup

	// consecutiveFailures is only touched from within a cycle, and cycles
	// never overlap.
	consecutiveFailures int
}

// New creates a monitor polling at the interval from the given settings.
func New(settings *models.Settings, fetcher mailbox.Fetcher, reads mailbox.ReadTracker, f Filter, r Responder, store Store, m *metrics.Metrics) *EmailMonitor {
	return &EmailMonitor{
		fetcher:   fetcher,
		reads:     reads,
		filter:    f,
		responder: r,
		store:     store,
		metrics:   m,
		state:     StateStopped,
		interval:  settings.CheckIntervalSeconds,
	}
}

// Start transitions to running, performs one immediate poll and arms the
// recurring timer. Starting a running monitor is an error.
func (m *EmailMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStopped {
		return ErrAlreadyRunning
	}

	c := cron.New()
	entryID, err := c.AddFunc(fmt.Sprintf("@every %ds", m.interval), m.runCycle)
	if err != nil {
		return fmt.Errorf("failed to schedule poll job: %w", err)
	}

	m.cron = c
	m.entryID = entryID
	m.state = StateRunning
	c.Start()

	go m.runCycle()

	logrus.Infof("Email monitor started with interval: %ds", m.interval)
	return nil
}

// Stop disarms the timer and blocks until any in-flight poll cycle — including
// the current email's full pipeline run — has completed. It does not abort
// in-flight network calls.
func (m *EmailMonitor) Stop() error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.state = StateStopping
	c := m.cron
	m.mu.Unlock()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	m.wg.Wait()

	m.mu.Lock()
	m.state = StateStopped
	m.cron = nil
	m.mu.Unlock()

	logrus.Info("Email monitor stopped")
	return nil
}

// RunOnce triggers a single poll cycle outside the regular schedule. The
// trigger is a no-op if a cycle is already in flight.
func (m *EmailMonitor) RunOnce() error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.mu.Unlock()

	logrus.Info("Manual poll cycle triggered")
	go m.runCycle()
	return nil
}

// State returns the current lifecycle state.
func (m *EmailMonitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsRunning reports whether the monitor is running.
func (m *EmailMonitor) IsRunning() bool {
	return m.State() == StateRunning
}

// NextRun returns the time of the next scheduled poll, zero when stopped.
func (m *EmailMonitor) NextRun() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning {
		return time.Time{}
	}
	return m.cron.Entry(m.entryID).Next
}

// LastRun returns the time of the last timer-driven poll, zero when stopped.
func (m *EmailMonitor) LastRun() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning {
		return time.Time{}
	}
	return m.cron.Entry(m.entryID).Prev
}

// SetInterval re-arms the recurring timer with a new interval. A cycle
// already in flight finishes on the old schedule.
func (m *EmailMonitor) SetInterval(seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("check interval must be greater than 0")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if seconds == m.interval {
		return nil
	}
	m.interval = seconds

	if m.state != StateRunning {
		return nil
	}

	m.cron.Remove(m.entryID)
	entryID, err := m.cron.AddFunc(fmt.Sprintf("@every %ds", seconds), m.runCycle)
	if err != nil {
		return fmt.Errorf("failed to reschedule poll job: %w", err)
	}
	m.entryID = entryID

	logrus.Infof("Email monitor interval changed to %ds", seconds)
	return nil
}

// OnSettingsUpdate applies the monitor-relevant settings fields.
func (m *EmailMonitor) OnSettingsUpdate(settings *models.Settings) {
	if err := m.SetInterval(settings.CheckIntervalSeconds); err != nil {
		logrus.Errorf("Failed to apply new check interval: %v", err)
	}
}

// runCycle executes one poll cycle unless one is already in flight.
func (m *EmailMonitor) runCycle() {
	m.wg.Add(1)
	defer m.wg.Done()

	if !m.inFlight.CompareAndSwap(false, true) {
		logrus.Debug("Poll cycle still in flight, skipping tick")
		return
	}
	defer m.inFlight.Store(false)

	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.checkInbox(context.Background())
}

// checkInbox fetches the unread messages as a unit and processes them in
// mailbox order. A fetch failure abandons the cycle; the next tick retries.
func (m *EmailMonitor) checkInbox(ctx context.Context) {
	start := time.Now()
	m.metrics.PollCycles.Inc()

	emails, err := m.fetcher.FetchUnread(ctx)
	if err != nil {
		m.consecutiveFailures++
		m.metrics.PollFailures.Inc()
		logrus.Errorf("Inbox check failed (attempt %d): %v", m.consecutiveFailures, err)
		m.logActivity(&models.ActivityLog{
			Type:    models.LogTypeError,
			Details: fmt.Sprintf("inbox check failed (attempt %d): %v", m.consecutiveFailures, err),
			Metadata: models.Metadata{
				"consecutive_failures": m.consecutiveFailures,
			},
		})
		if m.consecutiveFailures == maxConsecutiveFailures {
			logrus.Errorf("Reached %d consecutive inbox check failures, still retrying", maxConsecutiveFailures)
			m.logActivity(&models.ActivityLog{
				Type:    models.LogTypeError,
				Details: fmt.Sprintf("max consecutive failures reached (%d), monitoring continues", maxConsecutiveFailures),
			})
		}
		return
	}

	m.consecutiveFailures = 0
	logrus.Infof("Fetched %d unread emails", len(emails))

	for _, email := range emails {
		if err := m.processEmail(ctx, email); err != nil {
			logrus.Errorf("Failed to process email %s: %v", email.ID, err)
			m.logActivity(&models.ActivityLog{
				Type:    models.LogTypeError,
				EmailID: email.ID,
				Details: fmt.Sprintf("processing failed: %v", err),
			})
		}
	}

	m.metrics.ProcessingTime.Observe(time.Since(start).Seconds())
	logrus.Infof("Poll cycle completed in %v", time.Since(start))
}

// processEmail runs one email through the pipeline. Errors are returned for
// logging; a single email's failure never aborts the batch.
func (m *EmailMonitor) processEmail(ctx context.Context, email models.EmailMessage) error {
	decision := m.filter.Evaluate(email)

	if !decision.Approved {
		if err := m.reads.MarkSeen(ctx, email.ID); err != nil {
			return fmt.Errorf("failed to mark email as read: %w", err)
		}
		m.metrics.EmailsFiltered.Inc()
		m.logActivity(&models.ActivityLog{
			Type:    models.LogTypeEmailFiltered,
			EmailID: email.ID,
			Details: fmt.Sprintf("email filtered: %s", decision.Reason),
			Metadata: models.Metadata{
				"reason": decision.Reason,
			},
		})
		return nil
	}

	reply := m.responder.GenerateReply(email)

	if reply.Status == models.ReplyStatusPending {
		// The email stays unread until the pending decision resolves.
		m.responder.QueueForConfirmation(reply)
		m.logActivity(&models.ActivityLog{
			Type:    models.LogTypeEmailFiltered,
			EmailID: email.ID,
			ReplyID: &reply.ID,
			Details: fmt.Sprintf("reply queued for manual confirmation: %s", decision.Reason),
			Metadata: models.Metadata{
				"matched_keywords": decision.MatchedKeywords,
			},
		})
		return nil
	}

	result := m.responder.SendReply(ctx, reply)
	if err := m.reads.MarkSeen(ctx, email.ID); err != nil {
		return fmt.Errorf("failed to mark email as read: %w", err)
	}
	if !result.Success {
		logrus.Warnf("Reply for email %s failed to send: %s", email.ID, result.Error)
	}
	return nil
}

func (m *EmailMonitor) logActivity(entry *models.ActivityLog) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	if err := m.store.SaveActivityLog(entry); err != nil {
		logrus.Errorf("Failed to persist activity log: %v", err)
	}
}
