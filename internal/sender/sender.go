package sender

import "context"

// OutboundMessage is a plain-text email handed to the delivery transport.
type OutboundMessage struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Sender delivers outbound messages.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
	Close() error
}
