package sender

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/sirupsen/logrus"

	"mail-autoresponder-go/internal/config"
)

// GmailSender delivers messages through the Gmail API using an OAuth2
// refresh token.
type GmailSender struct {
	service   *gmail.Service
	userEmail string
}

// NewGmailSender creates a Gmail API delivery transport.
func NewGmailSender(cfg *config.GmailConfig) (*GmailSender, error) {
	ctx := context.Background()

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	tokenSource := oauth2Config.TokenSource(ctx, token)

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailSender{
		service:   service,
		userEmail: cfg.UserEmail,
	}, nil
}

// Send delivers a message, retrying on quota/rate errors with backoff.
func (g *GmailSender) Send(ctx context.Context, msg OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from := msg.From
	if from == "" {
		from = g.userEmail
	}

	raw := base64.URLEncoding.EncodeToString(buildMessage(from, msg).Bytes())
	message := &gmail.Message{Raw: raw}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := g.service.Users.Messages.Send(g.userEmail, message).Do()
		if err == nil {
			logrus.Infof("Sent reply to %s via Gmail API", msg.To)
			return nil
		}

		lastErr = err
		logrus.Warnf("Failed to send email (attempt %d/%d): %v", attempt, 3, err)

		if strings.Contains(err.Error(), "quota") || strings.Contains(err.Error(), "rate") {
			waitTime := time.Duration(attempt*attempt) * time.Second
			logrus.Infof("Rate limited, waiting %v before retry", waitTime)
			time.Sleep(waitTime)
		} else {
			break
		}
	}

	return fmt.Errorf("failed to send email: %w", lastErr)
}

// Close is a no-op; the Gmail API service needs no explicit shutdown.
func (g *GmailSender) Close() error {
	return nil
}
