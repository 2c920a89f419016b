// Package delivery is the out-of-band channel for one-time codes. The
// auth service hands a raw code to a Sender exactly once, after the
// hashed record has been stored; senders never see anything else.
package delivery

import "context"

// Message is one outbound code delivery.
type Message struct {
	To      string
	Subject string
	Code    string
}

// Sender delivers a one-time code to the user. A returned error is
// surfaced to the caller as a distinct, retryable delivery failure.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
