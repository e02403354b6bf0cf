package mailbox

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/sirupsen/logrus"

	"mail-autoresponder-go/internal/config"
	"mail-autoresponder-go/internal/models"
)

// Fetcher retrieves unread messages from the mailbox.
type Fetcher interface {
	FetchUnread(ctx context.Context) ([]models.EmailMessage, error)
	Close() error
}

// ReadTracker wraps the mailbox read-flag protocol.
type ReadTracker interface {
	MarkSeen(ctx context.Context, emailID string) error
	IsSeen(ctx context.Context, emailID string) (bool, error)
}

// IMAPMailbox implements Fetcher and ReadTracker over IMAP. Each operation
// opens its own connection and logs out when done, so a failed cycle never
// leaves a half-used session behind.
type IMAPMailbox struct {
	config *config.IMAPConfig
}

// NewIMAPMailbox creates an IMAP mailbox transport.
func NewIMAPMailbox(cfg *config.IMAPConfig) *IMAPMailbox {
	return &IMAPMailbox{config: cfg}
}

func (m *IMAPMailbox) dial(ctx context.Context) (*client.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := client.DialTLS(fmt.Sprintf("%s:%d", m.config.Host, m.config.Port), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(m.config.Username, m.config.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	return c, nil
}

// FetchUnread fetches every unread message in the configured folder. It fails
// as a unit on connection or protocol errors; no partial results are returned.
func (m *IMAPMailbox) FetchUnread(ctx context.Context) ([]models.EmailMessage, error) {
	c, err := m.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select(m.config.Folder, false); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", m.config.Folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search unread messages: %w", err)
	}

	if len(uids) == 0 {
		return []models.EmailMessage{}, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	// Peek keeps the fetch itself from setting \Seen; read-marking is the
	// pipeline's job after processing.
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var emails []models.EmailMessage

	for msg := range messages {
		email, err := m.parseMessage(msg, section)
		if err != nil {
			logrus.Warnf("Failed to parse IMAP message %d: %v", msg.Uid, err)
			continue
		}
		emails = append(emails, email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	if emails == nil {
		emails = []models.EmailMessage{}
	}
	return emails, nil
}

// parseMessage converts an IMAP message into the pipeline's email model.
func (m *IMAPMailbox) parseMessage(msg *imap.Message, section *imap.BodySectionName) (models.EmailMessage, error) {
	email := models.EmailMessage{
		ID:         strconv.FormatUint(uint64(msg.Uid), 10),
		ReceivedAt: time.Now(),
		IsRead:     false,
	}

	if msg.Envelope != nil {
		email.Subject = msg.Envelope.Subject
		if !msg.Envelope.Date.IsZero() {
			email.ReceivedAt = msg.Envelope.Date
		}
		if len(msg.Envelope.From) > 0 {
			email.From = msg.Envelope.From[0].Address()
		}
		if len(msg.Envelope.To) > 0 {
			email.To = msg.Envelope.To[0].Address()
		}
	}

	if email.From == "" {
		return email, fmt.Errorf("message has no sender address")
	}

	if err := m.parseBody(msg, section, &email); err != nil {
		// An unreadable body is not fatal; the filter still sees the subject.
		logrus.Warnf("Failed to parse body of message %s: %v", email.ID, err)
	}

	return email, nil
}

// parseBody extracts the plain-text body of a message.
func (m *IMAPMailbox) parseBody(msg *imap.Message, section *imap.BodySectionName, email *models.EmailMessage) error {
	r := msg.GetBody(section)
	if r == nil {
		return nil
	}

	entity, err := message.Read(r)
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read part: %w", err)
			}

			contentType := p.Header.Get("Content-Type")
			if !strings.Contains(contentType, "text/plain") {
				continue
			}

			content, err := io.ReadAll(p.Body)
			if err != nil {
				return fmt.Errorf("failed to read part body: %w", err)
			}
			email.Body = string(content)
			return nil
		}
		return nil
	}

	content, err := io.ReadAll(entity.Body)
	if err != nil {
		return fmt.Errorf("failed to read message body: %w", err)
	}
	email.Body = string(content)
	return nil
}

// MarkSeen sets the \Seen flag on a message. Marking an already-read message
// is a no-op success.
func (m *IMAPMailbox) MarkSeen(ctx context.Context, emailID string) error {
	uid, err := parseUID(emailID)
	if err != nil {
		return err
	}

	c, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Logout()

	if _, err := c.Select(m.config.Folder, false); err != nil {
		return fmt.Errorf("failed to select %s: %w", m.config.Folder, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("failed to mark message %s as read: %w", emailID, err)
	}

	return nil
}

// IsSeen reports whether the \Seen flag is set on a message. An identifier
// unknown to the server is an error, not a false.
func (m *IMAPMailbox) IsSeen(ctx context.Context, emailID string) (bool, error) {
	uid, err := parseUID(emailID)
	if err != nil {
		return false, err
	}

	c, err := m.dial(ctx)
	if err != nil {
		return false, err
	}
	defer c.Logout()

	if _, err := c.Select(m.config.Folder, true); err != nil {
		return false, fmt.Errorf("failed to select %s: %w", m.config.Folder, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqset, []imap.FetchItem{imap.FetchFlags, imap.FetchUid}, messages)
	}()

	seen := false
	found := false
	for msg := range messages {
		found = true
		for _, flag := range msg.Flags {
			if flag == imap.SeenFlag {
				seen = true
			}
		}
	}

	if err := <-done; err != nil {
		return false, fmt.Errorf("failed to fetch flags for message %s: %w", emailID, err)
	}
	if !found {
		return false, fmt.Errorf("message %s not found in %s", emailID, m.config.Folder)
	}

	return seen, nil
}

// Close is a no-op; connections are per operation.
func (m *IMAPMailbox) Close() error {
	return nil
}

func parseUID(emailID string) (uint32, error) {
	uid, err := strconv.ParseUint(emailID, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid email id %q: %w", emailID, err)
	}
	return uint32(uid), nil
}
