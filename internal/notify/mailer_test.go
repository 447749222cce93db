package notify

import (
	"context"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSmtpMailerEmail(t *testing.T) {
	mailer := NewSmtpMailer(SmtpConfig{
		Server:       "smtp.example.com",
		Port:         587,
		EmailAddress: "bot@example.com",
		Password:     "hunter2",
		To:           "patron@example.com",
	})

	mail := mailer.Email(Message{Subject: SubjectRenewed, Body: "line 1\nline 2"})
	require.Equal(t, "bot@example.com", mail.From)
	require.Equal(t, []string{"patron@example.com"}, mail.To)
	require.Equal(t, SubjectRenewed, mail.Subject)

	raw, err := mail.Bytes()
	require.NoError(t, err)
	require.True(t, strings.Contains(string(raw), "Subject: "+SubjectRenewed))
	require.True(t, strings.Contains(string(raw), "line 1"))
}

func TestSmtpMailerUnreachable(t *testing.T) {
	mailer := NewSmtpMailer(SmtpConfig{
		Server:       "127.0.0.1",
		Port:         1,
		EmailAddress: "bot@example.com",
		To:           "patron@example.com",
	})

	err := mailer.Send(context.Background(), Message{Subject: "s", Body: "b"})
	require.Error(t, err)
}

func TestSmtpMailerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSmtpMailer(SmtpConfig{}).Send(ctx, Message{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNoopMailer(t *testing.T) {
	require.NoError(t, NoopMailer{}.Send(context.Background(), FatalMessage()))
}

func listen(t *testing.T) (net.Listener, int) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		ln.Close()
	})
	return ln, ln.Addr().(*net.TCPAddr).Port
}

// serveSilent accepts one connection and never greets it.
func serveSilent(t *testing.T, ln net.Listener) {
	done := make(chan struct{})
	t.Cleanup(func() {
		close(done)
	})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		<-done
		conn.Close()
	}()
}

// serveSmtp speaks just enough SMTP to take one message, it advertises neither
// STARTTLS nor AUTH.
func serveSmtp(ln net.Listener, received chan<- string) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	tp := textproto.NewConn(conn)
	tp.PrintfLine("220 catalog-mail ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			tp.PrintfLine("500 empty command")
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "EHLO":
			tp.PrintfLine("250-catalog-mail")
			tp.PrintfLine("250 8BITMIME")
		case "MAIL", "RCPT":
			tp.PrintfLine("250 ok")
		case "DATA":
			tp.PrintfLine("354 go ahead")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			received <- string(data)
			tp.PrintfLine("250 queued")
		case "QUIT":
			tp.PrintfLine("221 bye")
			return
		default:
			tp.PrintfLine("502 not implemented")
		}
	}
}

func TestSmtpMailerSilentServer(t *testing.T) {
	ln, port := listen(t)
	serveSilent(t, ln)

	mailer := NewSmtpMailer(SmtpConfig{
		Server:       "127.0.0.1",
		Port:         port,
		EmailAddress: "bot@example.com",
		Password:     "hunter2",
		To:           "patron@example.com",
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*200)
	defer cancel()

	start := time.Now()
	err := mailer.Send(ctx, FatalMessage())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second*2)
}

func TestSmtpMailerCanceledWhileWaiting(t *testing.T) {
	ln, port := listen(t)
	serveSilent(t, ln)

	mailer := NewSmtpMailer(SmtpConfig{
		Server:       "127.0.0.1",
		Port:         port,
		EmailAddress: "bot@example.com",
		To:           "patron@example.com",
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(time.Millisecond*100, cancel)

	err := mailer.Send(ctx, FatalMessage())
	require.ErrorIs(t, err, context.Canceled)
}

func TestSmtpMailerDelivers(t *testing.T) {
	ln, port := listen(t)
	received := make(chan string, 1)
	go serveSmtp(ln, received)

	mailer := NewSmtpMailer(SmtpConfig{
		Server:       "127.0.0.1",
		Port:         port,
		EmailAddress: "bot@example.com",
		Password:     "hunter2",
		To:           "patron@example.com",
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	err := mailer.Send(ctx, Message{Subject: SubjectOverdue, Body: "Física Básica: 1: 2026-10-18"})
	require.NoError(t, err)

	select {
	case data := <-received:
		require.Contains(t, data, "Subject: "+SubjectOverdue)
		require.Contains(t, data, "patron@example.com")
	case <-time.After(time.Second * 5):
		t.Fatal("server did not receive the message")
	}
}
