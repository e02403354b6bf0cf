package responder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mail-autoresponder-go/internal/mailbox"
	"mail-autoresponder-go/internal/metrics"
	"mail-autoresponder-go/internal/models"
	"mail-autoresponder-go/internal/sender"
)

// ErrReplyNotFound is returned when a confirmation references a reply id that
// is not in the pending queue (unknown, or already resolved).
var ErrReplyNotFound = errors.New("reply not found in pending queue")

// DefaultReplyTemplate is used when the configured template is blank, so a
// generated reply never has an empty body.
const DefaultReplyTemplate = "Hello {sender},\r\n\r\n" +
	"Thank you for your message regarding \"{subject}\". " +
	"We have received it and will get back to you as soon as possible.\r\n\r\n" +
	"This is an automated reply."

// Store persists replies and activity logs.
type Store interface {
	SaveReply(reply *models.Reply) error
	SaveActivityLog(log *models.ActivityLog) error
}

// SendResult reports the outcome of a send attempt. SendReply never returns
// an error; the caller inspects the result and continues the batch.
type SendResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AutoResponder generates replies from the configured template, owns the
// pending-confirmation queue and drives sends through the delivery transport.
type AutoResponder struct {
	from    string
	sender  sender.Sender
	reads   mailbox.ReadTracker
	store   Store
	metrics *metrics.Metrics

	// pendingMu is the single-writer guard for the pending queue: the status
	// check, read-marking and remove-on-resolve happen under one critical
	// section, so an approve racing a duplicate approve sends once and the
	// loser gets ErrReplyNotFound.
	pendingMu sync.Mutex
	pending   map[string]*models.Reply

	settingsMu         sync.RWMutex
	manualConfirmation bool
	template           string
}

// New creates an auto-responder with the current settings.
func New(settings *models.Settings, from string, s sender.Sender, reads mailbox.ReadTracker, store Store, m *metrics.Metrics) *AutoResponder {
	return &AutoResponder{
		from:               from,
		sender:             s,
		reads:              reads,
		store:              store,
		metrics:            m,
		pending:            make(map[string]*models.Reply),
		manualConfirmation: settings.ManualConfirmation,
		template:           settings.ReplyTemplate,
	}
}

// GenerateReply constructs a reply for the given email. Pure construction:
// nothing is sent or queued. The reply starts pending when manual
// confirmation is on, approved otherwise.
func (r *AutoResponder) GenerateReply(email models.EmailMessage) *models.Reply {
	r.settingsMu.RLock()
	manual := r.manualConfirmation
	template := r.template
	r.settingsMu.RUnlock()

	render := strings.NewReplacer(
		"{sender}", email.From,
		"{subject}", email.Subject,
		"{body}", email.Body,
	)

	if strings.TrimSpace(template) == "" {
		template = DefaultReplyTemplate
	}

	body := render.Replace(template)
	if strings.TrimSpace(body) == "" {
		// A template of bare placeholders renders empty against an email
		// with no subject or body; the delivery transport would reject it.
		body = render.Replace(DefaultReplyTemplate)
	}

	status := models.ReplyStatusApproved
	if manual {
		status = models.ReplyStatusPending
	}

	return &models.Reply{
		ID:              uuid.NewString(),
		OriginalEmailID: email.ID,
		ToAddress:       email.From,
		Subject:         "Re: " + email.Subject,
		Body:            body,
		Status:          status,
		GeneratedAt:     time.Now(),
	}
}

// SendReply sends a reply through the delivery transport and records the
// outcome. It never returns an error: a failed send yields a result with
// Success=false so the caller can continue its batch.
func (r *AutoResponder) SendReply(ctx context.Context, reply *models.Reply) SendResult {
	err := r.sender.Send(ctx, sender.OutboundMessage{
		From:    r.from,
		To:      reply.ToAddress,
		Subject: reply.Subject,
		Body:    reply.Body,
	})

	if err != nil {
		reply.Status = models.ReplyStatusFailed
		r.persistReply(reply)
		r.logActivity(&models.ActivityLog{
			Type:    models.LogTypeReplyFailed,
			EmailID: reply.OriginalEmailID,
			ReplyID: &reply.ID,
			Details: fmt.Sprintf("failed to send reply to %s: %v", reply.ToAddress, err),
			Metadata: models.Metadata{
				"recipient": reply.ToAddress,
				"error":     err.Error(),
			},
		})
		r.metrics.ReplyFailures.Inc()
		return SendResult{Success: false, Error: err.Error()}
	}

	now := time.Now()
	reply.Status = models.ReplyStatusSent
	reply.SentAt = &now
	r.persistReply(reply)
	r.logActivity(&models.ActivityLog{
		Type:    models.LogTypeReplySent,
		EmailID: reply.OriginalEmailID,
		ReplyID: &reply.ID,
		Details: fmt.Sprintf("auto-reply sent to %s", reply.ToAddress),
		Metadata: models.Metadata{
			"recipient": reply.ToAddress,
			"sent_at":   now.Format(time.RFC3339),
		},
	})
	r.metrics.RepliesSent.Inc()
	return SendResult{Success: true}
}

// QueueForConfirmation forces the reply into pending status and inserts it
// into the in-memory pending queue. The queue is the sole source of truth for
// "awaiting manual action"; it is not rebuilt from storage on restart.
func (r *AutoResponder) QueueForConfirmation(reply *models.Reply) {
	r.pendingMu.Lock()
	reply.Status = models.ReplyStatusPending
	r.pending[reply.ID] = reply
	count := len(r.pending)
	r.pendingMu.Unlock()

	r.persistReply(reply)
	r.metrics.RepliesQueued.Inc()
	r.metrics.PendingReplies.Set(float64(count))
	logrus.Infof("Reply %s queued for confirmation (email %s)", reply.ID, reply.OriginalEmailID)
}

// ProcessConfirmation resolves a pending reply. On approve the reply is sent;
// on reject it becomes terminal rejected. In both branches the original email
// is marked read exactly once before the entry leaves the pending queue.
func (r *AutoResponder) ProcessConfirmation(ctx context.Context, replyID string, approved bool, approvedBy string) (*models.Reply, error) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()

	reply, ok := r.pending[replyID]
	if !ok {
		return nil, ErrReplyNotFound
	}

	if err := r.reads.MarkSeen(ctx, reply.OriginalEmailID); err != nil {
		// The confirmation still resolves; an unread-but-answered email only
		// costs a duplicate evaluation next cycle.
		logrus.Errorf("Failed to mark email %s as read: %v", reply.OriginalEmailID, err)
		r.logActivity(&models.ActivityLog{
			Type:    models.LogTypeError,
			EmailID: reply.OriginalEmailID,
			ReplyID: &reply.ID,
			Details: fmt.Sprintf("failed to mark email as read: %v", err),
		})
	}

	if approved {
		reply.Status = models.ReplyStatusApproved
		reply.ApprovedBy = approvedBy
		r.persistReply(reply)
		r.SendReply(ctx, reply)
	} else {
		reply.Status = models.ReplyStatusRejected
		reply.ApprovedBy = approvedBy
		r.persistReply(reply)
		logrus.Infof("Reply %s rejected (email %s)", reply.ID, reply.OriginalEmailID)
	}

	delete(r.pending, replyID)
	r.metrics.PendingReplies.Set(float64(len(r.pending)))

	return reply, nil
}

// PendingReplies returns a read-only snapshot of the pending queue, oldest
// first.
func (r *AutoResponder) PendingReplies() []models.Reply {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()

	replies := make([]models.Reply, 0, len(r.pending))
	for _, reply := range r.pending {
		replies = append(replies, *reply)
	}
	sort.Slice(replies, func(i, j int) bool {
		return replies[i].GeneratedAt.Before(replies[j].GeneratedAt)
	})
	return replies
}

// PendingCount returns the number of replies awaiting confirmation.
func (r *AutoResponder) PendingCount() int {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	return len(r.pending)
}

// OnSettingsUpdate applies the responder-relevant settings fields.
func (r *AutoResponder) OnSettingsUpdate(settings *models.Settings) {
	r.settingsMu.Lock()
	defer r.settingsMu.Unlock()
	r.manualConfirmation = settings.ManualConfirmation
	r.template = settings.ReplyTemplate
}

func (r *AutoResponder) persistReply(reply *models.Reply) {
	if err := r.store.SaveReply(reply); err != nil {
		logrus.Errorf("Failed to persist reply %s: %v", reply.ID, err)
	}
}

func (r *AutoResponder) logActivity(entry *models.ActivityLog) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	if err := r.store.SaveActivityLog(entry); err != nil {
		logrus.Errorf("Failed to persist activity log: %v", err)
	}
}
