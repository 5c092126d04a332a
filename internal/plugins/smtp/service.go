package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"strings"
	"time"
)

// Sender is the interface other plugins use to send email.
type Sender interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
	IsConfigured() bool
}

// Service is a Sender that can also describe its configuration to admins.
type Service interface {
	Sender
	Status() Status
}

// Send delivers m through s.
func Send(ctx context.Context, s Sender, m Mail) error {
	return s.SendMail(ctx, m.To, m.Subject, m.Body)
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	cfg Settings
	now func() time.Time
}

// NewSMTPSender creates a sender. It does not connect.
func NewSMTPSender(cfg Settings) *SMTPSender {
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Encryption == "" {
		cfg.Encryption = "starttls"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPSender{cfg: cfg, now: time.Now}
}

// IsConfigured returns true when a host and sender address are set.
func (s *SMTPSender) IsConfigured() bool {
	return s.cfg.Host != "" && s.cfg.From != ""
}

// Status returns the redacted settings.
func (s *SMTPSender) Status() Status {
	return Status{
		Configured:  s.IsConfigured(),
		Host:        s.cfg.Host,
		Port:        s.cfg.Port,
		From:        s.cfg.From,
		Encryption:  s.cfg.Encryption,
		HasPassword: s.cfg.Password != "",
	}
}

// SendMail sends a plain-text message. The returned error carries the
// transport's text so callers can audit it; it never contains the body.
func (s *SMTPSender) SendMail(ctx context.Context, to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("smtp is not configured")
	}
	for _, addr := range to {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", addr, err)
		}
	}

	msg, err := s.buildMessage(to, subject, body)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	switch strings.ToLower(s.cfg.Encryption) {
	case "ssl":
		return s.sendSSL(ctx, dialer, addr, to, msg)
	case "none":
		return s.sendPlain(ctx, dialer, addr, to, msg)
	default:
		return s.sendStartTLS(ctx, dialer, addr, to, msg)
	}
}

// buildMessage renders an RFC 5322 message. Header values come from our
// own templates, but CR/LF are rejected anyway so a crafted subject can
// never add headers.
func (s *SMTPSender) buildMessage(to []string, subject, body string) (string, error) {
	if strings.ContainsAny(subject, "\r\n") {
		return "", fmt.Errorf("subject contains a line break")
	}
	from := mail.Address{Name: s.cfg.FromName, Address: s.cfg.From}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from.String())
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", s.now().UTC().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String(), nil
}

// sendStartTLS sends email using STARTTLS (port 587 typical).
func (s *SMTPSender) sendStartTLS(ctx context.Context, dialer *net.Dialer, addr string, to []string, msg string) error {
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(s.tlsConfig()); err != nil {
		return fmt.Errorf("starting TLS: %w", err)
	}
	return s.authAndSend(client, to, msg)
}

// sendSSL sends email using implicit TLS (port 465 typical).
func (s *SMTPSender) sendSSL(ctx context.Context, dialer *net.Dialer, addr string, to []string, msg string) error {
	tlsDialer := &tls.Dialer{NetDialer: dialer, Config: s.tlsConfig()}
	conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s (SSL): %w", addr, err)
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	return s.authAndSend(client, to, msg)
}

// sendPlain sends email without encryption, for an internal relay.
func (s *SMTPSender) sendPlain(ctx context.Context, dialer *net.Dialer, addr string, to []string, msg string) error {
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	return s.authAndSend(client, to, msg)
}

func (s *SMTPSender) tlsConfig() *tls.Config {
	return &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
}

// authAndSend authenticates when a username is set, then runs MAIL FROM,
// RCPT TO and DATA.
func (s *SMTPSender) authAndSend(client *gosmtp.Client, to []string, msg string) error {
	if s.cfg.Username != "" {
		auth := gosmtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", recipient, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}

// LogSender is the development sender used when SMTP_HOST is empty. It
// logs the recipient and subject only; the body carries the code.
type LogSender struct{}

// NewLogSender creates a log-only sender.
func NewLogSender() *LogSender {
	return &LogSender{}
}

// IsConfigured always reports false so callers can warn that mail is not
// actually delivered.
func (s *LogSender) IsConfigured() bool { return false }

// Status implements Service.
func (s *LogSender) Status() Status { return Status{} }

// SendMail logs the message envelope.
func (s *LogSender) SendMail(ctx context.Context, to []string, subject, _ string) error {
	slog.InfoContext(ctx, "mail not sent: no SMTP host configured",
		slog.Any("to", to),
		slog.String("subject", subject),
	)
	return nil
}
