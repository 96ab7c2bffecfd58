// Package notify delivers alert and digest emails over SMTP.
package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/RivalWatch/internal/config"
	"github.com/TobiSchelling/RivalWatch/internal/logging"
)

// Message is an email whose body is written in markdown.
type Message struct {
	Subject  string
	Markdown string
}

// Sender delivers messages. Implementations that are not configured
// report so through IsConfigured and Send returns ErrNotConfigured.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	IsConfigured() bool
}

// ErrNotConfigured is returned by Send when no SMTP server is set up.
var ErrNotConfigured = errors.New("email not configured")

var (
	md     = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy = bluemonday.UGCPolicy()
)

var pageTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 640px; margin: 0 auto;">
{{.Body}}
<p style="font-size: 12px; color: #666;">Sent by RivalWatch at {{.SentAt}}</p>
</body>
</html>`))

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends mail through an SMTP relay.
type Mailer struct {
	cfg    config.Email
	send   sendFunc
	now    func() time.Time
	logger *slog.Logger
}

// NewMailer creates a Mailer from email config.
func NewMailer(cfg config.Email, logger *slog.Logger) *Mailer {
	return &Mailer{
		cfg:    cfg,
		send:   smtp.SendMail,
		now:    time.Now,
		logger: logging.Or(logger),
	}
}

// IsConfigured reports whether SMTP host, sender and recipients are set.
func (m *Mailer) IsConfigured() bool {
	return m.cfg.IsConfigured()
}

// Send renders msg to sanitized HTML and delivers it to every recipient.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if !m.IsConfigured() {
		m.logger.Info("email not sent, email not configured", "subject", msg.Subject)
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	html, err := RenderHTML(msg, m.now())
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password(), m.cfg.SMTPHost)
	}
	addr := net.JoinHostPort(m.cfg.SMTPHost, strconv.Itoa(m.cfg.SMTPPort))
	raw := buildMIME(m.cfg.From, m.cfg.To, msg.Subject, html, m.now())

	if err := m.send(addr, auth, m.cfg.From, m.cfg.To, raw); err != nil {
		return fmt.Errorf("sending %q: %w", msg.Subject, err)
	}
	m.logger.Info("email sent", "subject", msg.Subject, "recipients", len(m.cfg.To))
	return nil
}

// RenderHTML converts the markdown body to HTML, strips anything unsafe,
// and wraps it in the email page layout.
func RenderHTML(msg Message, sentAt time.Time) (string, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(msg.Markdown), &body); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	safe := policy.SanitizeBytes(body.Bytes())

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, map[string]any{
		"Subject": msg.Subject,
		"Body":    template.HTML(safe), //nolint: gosec
		"SentAt":  sentAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return "", fmt.Errorf("rendering email: %w", err)
	}
	return page.String(), nil
}

func buildMIME(from string, to []string, subject, html string, date time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: RivalWatch <" + from + ">\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + mimeHeader(subject) + "\r\n")
	b.WriteString("Date: " + date.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}

func mimeHeader(s string) string {
	for _, r := range s {
		if r > 127 {
			return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(s)) + "?="
		}
	}
	return s
}
