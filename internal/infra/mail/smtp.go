package mail

import (
	"context"
	"fmt"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Wittle-South-LLC/olsnet/internal/core/port"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/config"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/logger"
)

const mimeBoundary = "olsnet-alt-boundary"

// SMTPMailer delivers messages over a plain SMTP relay. Messages with both a
// text and an HTML body are sent as multipart/alternative.
type SMTPMailer struct {
	addr    string
	from    string
	timeout time.Duration
	logger  *zap.Logger
}

func NewSMTPMailer(cfg config.SMTPSettings, log *zap.Logger) *SMTPMailer {
	return &SMTPMailer{
		addr:    net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		from:    cfg.From,
		timeout: cfg.Timeout,
		logger:  log,
	}
}

// Send relays one message. The context deadline, capped by the configured
// timeout, bounds the whole SMTP conversation.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, text, html string) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	body, err := buildMessage(m.from, to, subject, text, html)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(m.addr, nil, m.from, []string{to}, body)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("send mail: %w", ctx.Err())
	}

	m.logger.Info("mail sent",
		zap.String("to", logger.MaskEmail(to)),
		zap.String("subject", subject))

	return nil
}

func buildMessage(from, to, subject, text, html string) ([]byte, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	if html == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		if err := writeQuoted(&b, text); err != nil {
			return nil, err
		}
		return []byte(b.String()), nil
	}

	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mimeBoundary)

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	if err := writeQuoted(&b, text); err != nil {
		return nil, err
	}
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	if err := writeQuoted(&b, html); err != nil {
		return nil, err
	}
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", mimeBoundary)

	return []byte(b.String()), nil
}

func writeQuoted(b *strings.Builder, body string) error {
	w := quotedprintable.NewWriter(b)
	if _, err := w.Write([]byte(body)); err != nil {
		return err
	}
	return w.Close()
}

var _ port.Mailer = (*SMTPMailer)(nil)
