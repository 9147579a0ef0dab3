// Package email sends subscription confirmation emails via SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/bissquit/subscription-garden/internal/domain"
	"github.com/bissquit/subscription-garden/internal/subscriptions"
	"github.com/sony/gobreaker/v2"
)

// Config holds email sender configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string

	// BreakerFailures is the number of consecutive failures that opens the breaker.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
	// Timeout bounds one whole SMTP exchange, dial included. Sends run on the
	// request path, so it must stay well under the server write timeout.
	Timeout time.Duration
}

// ErrBreakerOpen is returned while the SMTP circuit breaker is open.
var ErrBreakerOpen = errors.New("email sender: smtp circuit breaker open")

// Sender implements subscriptions.Notifier via SMTP.
type Sender struct {
	config  Config
	auth    smtp.Auth
	breaker *gobreaker.CircuitBreaker[struct{}]
	send    func(ctx context.Context, msg subscriptions.Message) error
}

var _ subscriptions.Notifier = (*Sender)(nil)

// NewSender creates a new email sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.SMTPHost == "" {
			return nil, errors.New("email sender: SMTP host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("email sender: from address is required when enabled")
		}
	}

	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = 5
	}
	if config.BreakerTimeout == 0 {
		config.BreakerTimeout = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	var auth smtp.Auth
	if config.SMTPUser != "" && config.SMTPPassword != "" {
		auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	s := &Sender{
		config: config,
		auth:   auth,
	}
	s.send = s.sendSMTP
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "smtp",
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	slog.Info("email sender configured",
		"enabled", config.Enabled,
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
		"timeout", config.Timeout,
	)

	return s, nil
}

// SubscriptionCreated sends a subscription confirmation.
func (s *Sender) SubscriptionCreated(ctx context.Context, sub *domain.Subscription) error {
	return s.Send(ctx, subscriptions.RenderConfirmation(subscriptions.MessageSubscribed, sub))
}

// SubscriptionCancelled sends an unsubscribe confirmation.
func (s *Sender) SubscriptionCancelled(ctx context.Context, sub *domain.Subscription) error {
	return s.Send(ctx, subscriptions.RenderConfirmation(subscriptions.MessageUnsubscribed, sub))
}

// Send delivers a single message through the circuit breaker.
func (s *Sender) Send(ctx context.Context, msg subscriptions.Message) error {
	if !s.config.Enabled {
		slog.Debug("email sender disabled, skipping send", "kind", msg.Kind)
		return nil
	}

	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = ErrBreakerOpen
	}

	subscriptions.RecordConfirmation(msg.Kind, err)
	return err
}

// sendSMTP sends the message using STARTTLS when the server offers it.
func (s *Sender) sendSMTP(ctx context.Context, msg subscriptions.Message) error {
	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)
	tlsConfig := &tls.Config{
		ServerName: s.config.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}

	deadline := time.Now().Add(s.config.Timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set smtp deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(extractEmail(s.config.FromAddress)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(s.buildMessage(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// buildMessage constructs the email message with headers.
func (s *Sender) buildMessage(msg subscriptions.Message) []byte {
	var b strings.Builder

	// Headers in deterministic order
	fmt.Fprintf(&b, "From: %s\r\n", s.config.FromAddress)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	return []byte(b.String())
}

// extractEmail extracts the address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}
