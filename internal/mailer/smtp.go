// smtp.go implements the SMTP Mailer. Supports implicit TLS (port 465) and
// STARTTLS (port 587); UseTLS=true always means an encrypted connection.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

// SMTPConfig holds the delivery channel settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

// SMTPMailer sends OTP codes over SMTP.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer creates an SMTPMailer from config.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// SendOtp implements Mailer.
func (m *SMTPMailer) SendOtp(_ context.Context, msg OtpMessage) error {
	subject := "Your Feedbase verification code"
	minutes := msg.ExpiresInSeconds / 60

	body := strings.Join([]string{
		fmt.Sprintf("Your one-time code is: %s", msg.Code),
		"",
		fmt.Sprintf("It expires in %d minutes and can be used once.", minutes),
		"If you did not request this code, you can ignore this message.",
		"",
		"- Feedbase",
	}, "\r\n")

	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		m.cfg.From, msg.Email, subject,
	)
	raw := []byte(headers + body + "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	if m.cfg.UseTLS {
		return sendMailTLS(addr, m.cfg.Host, auth, m.cfg.From, []string{msg.Email}, raw)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{msg.Email}, raw)
}

// sendMailTLS connects via implicit TLS (port 465 / SMTPS) and sends a message.
// For port 587 STARTTLS, smtp.SendMail handles the upgrade automatically; when
// the implicit-TLS dial fails we fall back to that path.
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		// Fall back to STARTTLS via the standard smtp.SendMail path (port 587 pattern)
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	hostname, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, hostname)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
