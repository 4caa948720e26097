// Package mailer sends transactional mail. It reports failure to the caller
// and never retries on its own; the task queue owns retry policy.
package mailer

import (
	"fmt"
	"net/smtp"
	"net/url"
	"strings"

	"resumeadvisor/internal/config"
)

// Sender is the narrow contract the worker programs against.
type Sender interface {
	SendVerification(email, token string) error
}

// SMTPMailer 通过 SMTP 提交验证邮件。
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer 构造 SMTPMailer。
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// VerificationLink builds the public link the recipient clicks.
func (m *SMTPMailer) VerificationLink(token string) string {
	return fmt.Sprintf("%s/api/auth/verify?token=%s",
		strings.TrimRight(m.cfg.BaseURL, "/"), url.QueryEscape(token))
}

// SendVerification dispatches a verification message to email.
func (m *SMTPMailer) SendVerification(email, token string) error {
	link := m.VerificationLink(token)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", email)
	msg.WriteString("Subject: Verify your Resume Advisor account\r\n")
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString("Welcome to Resume Advisor!\r\n\r\n")
	fmt.Fprintf(&msg, "Please confirm your email address by opening:\r\n\r\n%s\r\n\r\n", link)
	msg.WriteString("If you did not sign up, ignore this message.\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{email}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return nil
}
