// Package notify sends plain-text notification mail with a fixed HTML footer
// over an implicit-TLS SMTP session.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/sethvargo/go-envconfig"
)

var (
	// ErrNotConfigured is returned when sender or SMTP server are not set
	ErrNotConfigured = errors.New("mail notifications are not configured")
	// ErrSendFailed wraps SMTP delivery failures
	ErrSendFailed = errors.New("failed to send mail")
)

// Footer is appended to every message as its HTML part
const Footer = `<html>
  <body>
    <h4>
      This is automatically generated email via alpa-autoupdate tool.
      Don't reply to this email.
    </h4>
    If you want to know more about alpa project, please visit
    <a href="https://github.com/alpa-team">our GitHub organization</a>.
  </body>
</html>
`

// Config holds SMTP settings, read from the action inputs in the environment
type Config struct {
	Sender   string `env:"INPUT_EMAIL_NAME"`
	Host     string `env:"INPUT_SMTP_ADDRESS"`
	Password string `env:"INPUT_EMAIL_PASSWORD"`
	Port     int    `env:"INPUT_SMTP_PORT,default=465"`
}

// Enabled reports whether enough is configured to attempt delivery
func (c Config) Enabled() bool {
	return c.Sender != "" && c.Host != ""
}

// LoadConfig reads the SMTP settings from l, or from the process environment when l is nil
func LoadConfig(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if l == nil {
		l = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return Config{}, fmt.Errorf("failed to read mail settings: %w", err)
	}
	return cfg, nil
}

// SMTPNotifier delivers mail through one SMTP server
type SMTPNotifier struct {
	cfg  Config
	dial func(ctx context.Context, addr string) (net.Conn, error)
	now  func() time.Time
}

// NewSMTPNotifier creates a notifier that connects with implicit TLS
func NewSMTPNotifier(cfg Config) *SMTPNotifier {
	n := &SMTPNotifier{cfg: cfg, now: time.Now}
	n.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		d := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: 30 * time.Second},
			Config:    &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		}
		return d.DialContext(ctx, "tcp", addr)
	}
	return n
}

// Send delivers one message to a single recipient
func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	if !n.cfg.Enabled() {
		return ErrNotConfigured
	}

	msg, err := BuildMessage(n.cfg.Sender, to, subject, body, n.now())
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	conn, err := n.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrSendFailed, addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer c.Close()

	if n.cfg.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", n.cfg.Sender, n.cfg.Password, n.cfg.Host)); err != nil {
			return fmt.Errorf("%w: auth: %v", ErrSendFailed, err)
		}
	}
	if err := c.Mail(n.cfg.Sender); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("%w: recipient %s: %v", ErrSendFailed, to, err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return c.Quit()
}

// BuildMessage renders a multipart/mixed message with the plain body and the HTML footer
func BuildMessage(from, to, subject, body string, date time.Time) ([]byte, error) {
	var parts bytes.Buffer
	mw := multipart.NewWriter(&parts)

	for _, p := range []struct{ contentType, content string }{
		{"text/plain", body},
		{"text/html", Footer},
	} {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", p.contentType+`; charset="utf-8"`)
		header.Set("Content-Transfer-Encoding", "quoted-printable")
		pw, err := mw.CreatePart(header)
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(p.content)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", date.Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%q\r\n", mw.Boundary())
	msg.WriteString("\r\n")
	msg.Write(parts.Bytes())
	return msg.Bytes(), nil
}
