package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/afyalink/afyalink/internal/models"
)

const (
	// DefaultSMTPTimeout bounds dialing and the SMTP conversation.
	DefaultSMTPTimeout = 10 * time.Second
	// DefaultEmailFrom is used when no sender address is configured.
	DefaultEmailFrom = "no-reply@afyalink.local"
)

// SMTPSender sends email via unauthenticated SMTP and emits a receipt per attempt.
type SMTPSender struct {
	addr     string
	host     string
	from     string
	timeout  time.Duration
	receipts chan models.Receipt
	mu       sync.RWMutex
	stopped  bool
}

// NewSMTPSender creates an SMTPSender for host:port.
func NewSMTPSender(host, port, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = DefaultEmailFrom
	}
	return &SMTPSender{
		addr:     net.JoinHostPort(host, port),
		host:     host,
		from:     from,
		timeout:  DefaultSMTPTimeout,
		receipts: make(chan models.Receipt, DefaultChannelBufferSize),
	}
}

// SendEmail delivers a plain-text message. The conversation is bounded by the
// earlier of ctx's deadline and DefaultSMTPTimeout.
func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	err := s.send(ctx, to, subject, body)
	s.emit(newReceipt(ctx, to, models.ChannelEmail, statusFor(err), err))
	if err != nil {
		slog.Error("SMTPSender.SendEmail: delivery failed", "to", to, "addr", s.addr, "error", err)
		return fmt.Errorf("email to %s failed: %w", to, err)
	}
	slog.Debug("SMTPSender.SendEmail: delivered", "to", to, "subject", subject)
	return nil
}

func (s *SMTPSender) send(ctx context.Context, to, subject, body string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if err := c.Mail(s.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(buildMessage(s.from, to, subject, body))); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// Receipts returns the channel of delivery attempt receipts.
func (s *SMTPSender) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Stop closes the receipt channel.
func (s *SMTPSender) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.receipts)
	}
	return nil
}

func (s *SMTPSender) emit(r models.Receipt) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return
	}
	select {
	case s.receipts <- r:
	case <-time.After(DefaultChannelTimeout):
	}
}

// buildMessage renders a minimal RFC 5322 message.
func buildMessage(from, to, subject, body string) string {
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}
