package email

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/gomail.v2"
)

// Message is one rendered email ready for the wire. MessageID, when set, is
// written as the Message-Id header so callers can hand a stable reference
// back to the admin.
type Message struct {
	To        string
	ToName    string
	Subject   string
	HTML      string
	MessageID string
}

// Transport delivers a single message. Implementations may fail or time out;
// callers own retry policy.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Sender delivers mail over SMTP.
type Sender struct {
	Host      string
	Port      int
	User      string
	Password  string
	FromName  string
	FromEmail string
}

// Send dials and sends one message. The dial-and-send runs in its own
// goroutine so the context deadline bounds a stuck SMTP conversation; a
// timed-out send counts as a failure and the connection is abandoned.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.FromEmail, s.FromName)
	m.SetAddressHeader("To", msg.To, msg.ToName)
	m.SetHeader("Subject", msg.Subject)
	if msg.MessageID != "" {
		m.SetHeader("Message-Id", msg.MessageID)
	}
	m.SetBody("text/html", msg.HTML)

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)

	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	}
}

// SendWithRetry retries a send with exponential backoff. Used by the
// synchronous ad-hoc path; the batch worker relies on the poll interval
// instead.
func (s *Sender) SendWithRetry(ctx context.Context, msg Message, maxElapsed time.Duration) error {
	operation := func() error {
		return s.Send(ctx, msg)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = maxElapsed

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
