package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

const subject = "FinFlex Verification Code"

var bodyTemplate = template.Must(template.New("otp").Parse(`<div style="font-family: sans-serif; max-width: 400px; margin: auto; padding: 20px; border-radius: 20px; background: #0A0D14; border: 1px solid #1C222E; color: white;">
	<h2 style="color: #22D3EE; margin-bottom: 8px;">{{.Brand}}</h2>
	<p style="color: #94A3B8; font-size: 14px; margin-bottom: 24px;">Level Up Your Money</p>
	<p style="color: #CBD5E1; margin-bottom: 8px;">Here is your login code:</p>
	<h1 style="font-size: 40px; font-weight: 900; letter-spacing: 4px; margin: 0; color: white; display: inline-block;">{{.Code}}</h1>
	<div style="margin-top: 32px; border-top: 1px solid #1C222E; padding-top: 16px;">
		<p style="color: #64748B; font-size: 10px; text-transform: uppercase; letter-spacing: 1px;">This code will expire in {{.ExpiresIn}}.</p>
	</div>
</div>
`))

// SMTPConfig holds relay settings for SMTPNotifier.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	ExpiresIn time.Duration
	Timeout   time.Duration
}

// SMTPNotifier sends codes as HTML email through an authenticated STARTTLS relay.
type SMTPNotifier struct {
	cfg SMTPConfig
}

// NewSMTPNotifier returns a notifier for cfg.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPNotifier{cfg: cfg}
}

// Send delivers the code to email.
func (n *SMTPNotifier) Send(ctx context.Context, email, code string) error {
	msg, err := n.message(email, code)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if err := c.Auth(smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(n.cfg.Username); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(email); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return c.Quit()
}

func (n *SMTPNotifier) message(to, code string) ([]byte, error) {
	var body bytes.Buffer
	err := bodyTemplate.Execute(&body, struct {
		Brand     string
		Code      string
		ExpiresIn string
	}{
		Brand:     n.cfg.FromName,
		Code:      code,
		ExpiresIn: humanMinutes(n.cfg.ExpiresIn),
	})
	if err != nil {
		return nil, fmt.Errorf("render email: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", n.cfg.FromName), n.cfg.Username)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func humanMinutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
