package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/fennelauth/authcore/internal/value"
)

// SMTPMailer sends 2FA codes over SMTP. Each call creates and closes its own connection, so
// SMTPMailer is safe for concurrent use without additional locking.
type SMTPMailer struct {
	host       string
	port       int
	username   string
	password   string
	from       mail.Address
	serverName string
}

// NewSMTPMailer creates an SMTP-backed Mailer. from is parsed as an RFC 5322 address; if it does
// not parse, it is used verbatim as the bare address.
func NewSMTPMailer(host string, port int, username, password, from, serverName string) *SMTPMailer {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		addr = &mail.Address{Address: from}
	}
	return &SMTPMailer{host: host, port: port, username: username, password: password, from: *addr, serverName: serverName}
}

// Ping verifies that the SMTP server is reachable and accepts authentication (if credentials
// are configured). Intended for startup health checks; failures should log a warning rather
// than prevent startup.
func (m *SMTPMailer) Ping(ctx context.Context) error {
	client, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Quit() }()

	if m.username != "" {
		auth := smtp.PlainAuth("", m.username, m.password, m.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}
	return nil
}

// Send2FACode emails the given 2FA code to the recipient.
func (m *SMTPMailer) Send2FACode(ctx context.Context, to value.Email, code value.TwoFACode) error {
	subject := fmt.Sprintf("Your %s verification code", m.serverName)
	body := twoFACodeBody(m.serverName, code.String())
	return m.send(ctx, to.String(), subject, body)
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	client, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Quit() }()

	if m.username != "" {
		auth := smtp.PlainAuth("", m.username, m.password, m.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}

	if err := client.Mail(m.from.Address); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}

	msg := buildMessage(m.from.String(), to, subject, body)
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return w.Close()
}

// dial opens a TCP connection to the SMTP server, performs the EHLO handshake, and upgrades to
// TLS if the server advertises STARTTLS support.
func (m *SMTPMailer) dial(ctx context.Context) (*smtp.Client, error) {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", m.addr())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", m.addr(), err)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}

	if err := client.Hello("localhost"); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("EHLO: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("STARTTLS: %w", err)
		}
	}

	return client, nil
}

func (m *SMTPMailer) addr() string {
	return fmt.Sprintf("%s:%d", m.host, m.port)
}

func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

func twoFACodeBody(serverName, code string) string {
	return fmt.Sprintf(
		"Your %s verification code is:\n\n%s\n\n"+
			"This code expires shortly. If you did not attempt to sign in, you can safely ignore this email.\n",
		serverName, code,
	)
}
