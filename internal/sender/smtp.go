package sender

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"time"

	"github.com/sirupsen/logrus"

	"mail-autoresponder-go/internal/config"
)

// SMTPSender delivers messages over SMTP with a per-send connection.
type SMTPSender struct {
	config *config.SMTPConfig
	from   string
}

// NewSMTPSender creates an SMTP delivery transport.
func NewSMTPSender(cfg *config.SMTPConfig, from string) *SMTPSender {
	return &SMTPSender{config: cfg, from: from}
}

// Send builds a plain-text RFC822 message and hands it to the SMTP server.
func (s *SMTPSender) Send(ctx context.Context, msg OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if msg.To == "" {
		return fmt.Errorf("at least one recipient is required")
	}
	if msg.Subject == "" {
		return fmt.Errorf("email must have a subject")
	}
	if msg.Body == "" {
		return fmt.Errorf("email must have a body")
	}

	from := msg.From
	if from == "" {
		from = s.from
	}

	buffer := buildMessage(from, msg)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)

	if s.config.UseTLS {
		return s.sendWithTLS(addr, auth, from, msg.To, buffer)
	}

	// Standard SMTP (uses STARTTLS if the server supports it)
	if err := smtp.SendMail(addr, auth, from, []string{msg.To}, buffer.Bytes()); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	logrus.Infof("Sent reply to %s via SMTP", msg.To)
	return nil
}

// sendWithTLS dials an implicit-TLS SMTP endpoint.
func (s *SMTPSender) sendWithTLS(addr string, auth smtp.Auth, from, to string, buffer *bytes.Buffer) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.config.Host})
	if err != nil {
		return fmt.Errorf("failed to dial SMTP server: %w", err)
	}

	c, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer c.Close()

	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth failed: %w", err)
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(buffer.Bytes()); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return c.Quit()
}

func buildMessage(from string, msg OutboundMessage) *bytes.Buffer {
	buffer := bytes.NewBuffer(nil)
	fmt.Fprintf(buffer, "From: %s\r\n", from)
	fmt.Fprintf(buffer, "To: %s\r\n", msg.To)
	fmt.Fprintf(buffer, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(buffer, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buffer.WriteString("MIME-Version: 1.0\r\n")
	buffer.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buffer.WriteString("Content-Transfer-Encoding: 7bit\r\n")
	buffer.WriteString("\r\n")
	buffer.WriteString(msg.Body)
	return buffer
}

// Close is a no-op; connections are per send.
func (s *SMTPSender) Close() error {
	return nil
}
