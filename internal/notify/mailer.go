package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
)

// Mailer delivers a message to the patron.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NoopMailer drops every message, it is used when no recipient is configured.
type NoopMailer struct{}

func (NoopMailer) Send(context.Context, Message) error {
	return nil
}

const defaultSendTimeout = time.Second * 30

type SmtpConfig struct {
	Server       string
	Port         int
	EmailAddress string
	Password     string
	To           string
}

// SmtpMailer sends plain text email through an SMTP server, using STARTTLS when
// the server offers it.
type SmtpMailer struct {
	config SmtpConfig
}

func NewSmtpMailer(config SmtpConfig) SmtpMailer {
	return SmtpMailer{config: config}
}

func (m SmtpMailer) addr() string {
	return fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
}

// Email builds the email for msg without sending it.
func (m SmtpMailer) Email(msg Message) *email.Email {
	mail := email.NewEmail()
	mail.From = m.config.EmailAddress
	mail.To = []string{m.config.To}
	mail.Subject = msg.Subject
	mail.Text = []byte(msg.Body)
	return mail
}

// Send delivers msg, the whole SMTP exchange is bounded by ctx. Without a
// deadline on ctx, defaultSendTimeout applies.
func (m SmtpMailer) Send(ctx context.Context, msg Message) error {
	err := ctx.Err()
	if err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultSendTimeout)
		defer cancel()
	}

	mail := m.Email(msg)
	raw, err := mail.Bytes()
	if err != nil {
		return fmt.Errorf("build email %q: %w", msg.Subject, err)
	}

	err = m.deliver(ctx, mail.To, raw)
	if err != nil {
		ctxErr := contextErr(ctx)
		if ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return fmt.Errorf("send email %q: %w", msg.Subject, err)
	}
	return nil
}

// contextErr is ctx.Err(), except that a passed deadline counts even if the
// connection's own deadline fired first.
func contextErr(ctx context.Context) error {
	err := ctx.Err()
	if err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return nil
}

func (m SmtpMailer) deliver(ctx context.Context, to []string, raw []byte) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", m.addr())
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	err = conn.SetDeadline(deadline)
	if err != nil {
		return err
	}
	// unblocks reads when ctx is canceled before the deadline
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	client, err := smtp.NewClient(conn, m.config.Server)
	if err != nil {
		return err
	}
	defer client.Close()

	err = client.Hello("localhost")
	if err != nil {
		return err
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		err = client.StartTLS(&tls.Config{ServerName: m.config.Server})
		if err != nil {
			return err
		}
	}
	// servers that do not offer AUTH get the mail unauthenticated
	if ok, _ := client.Extension("AUTH"); ok && m.config.Password != "" {
		err = client.Auth(smtp.PlainAuth("", m.config.EmailAddress, m.config.Password, m.config.Server))
		if err != nil {
			return err
		}
	}

	err = client.Mail(m.config.EmailAddress)
	if err != nil {
		return err
	}
	for _, rcpt := range to {
		err = client.Rcpt(rcpt)
		if err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	_, err = w.Write(raw)
	if err != nil {
		return err
	}
	err = w.Close()
	if err != nil {
		return err
	}
	return client.Quit()
}
