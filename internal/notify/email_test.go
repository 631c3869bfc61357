package notify

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

func TestEmailChannel_Message(t *testing.T) {
	c := NewEmailChannel(EmailConfig{Host: "mail.campus.test", Port: 587, From: "portal@campus.test"})

	var got *mail.Msg
	c.send = func(_ context.Context, msg *mail.Msg) error {
		got = msg
		return nil
	}

	require.NoError(t, c.Send(context.Background(), &model.User{Email: "sam@campus.test"}, payload))
	require.NotNil(t, got)

	rcpts, err := got.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"sam@campus.test"}, rcpts)
	assert.Equal(t, []string{"Reservation approved"}, got.GetGenHeader(mail.HeaderSubject))

	var buf bytes.Buffer
	_, err = got.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), payload.Message)
	assert.Contains(t, buf.String(), payload.URL)
}

func TestEmailChannel_Errors(t *testing.T) {
	c := NewEmailChannel(EmailConfig{Host: "mail.campus.test", Port: 587, From: "portal@campus.test"})
	c.send = func(context.Context, *mail.Msg) error { return errors.New("421 busy") }

	assert.ErrorIs(t, c.Send(context.Background(), &model.User{}, payload), ErrNoAddress)

	err := c.Send(context.Background(), &model.User{Email: "sam@campus.test"}, payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sam@campus.test")

	bad := NewEmailChannel(EmailConfig{Host: "mail.campus.test", Port: 587, From: "not an address"})
	assert.Error(t, bad.Send(context.Background(), &model.User{Email: "sam@campus.test"}, payload))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Send(ctx, &model.User{Email: "sam@campus.test"}, payload), context.Canceled)
}

// silentServer принимает соединения и ничего не отвечает
func silentServer(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return ln.Addr().(*net.TCPAddr).Port
}

func TestEmailChannel_StalledServerHonoursDeadline(t *testing.T) {
	port := silentServer(t)
	c := NewEmailChannel(EmailConfig{Host: "127.0.0.1", Port: port, From: "portal@campus.test"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Send(ctx, &model.User{Email: "sam@campus.test"}, payload)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEmailChannel_StalledServerHonoursTimeout(t *testing.T) {
	port := silentServer(t)
	c := NewEmailChannel(EmailConfig{Host: "127.0.0.1", Port: port, From: "portal@campus.test", Timeout: 200 * time.Millisecond})

	start := time.Now()
	err := c.Send(context.Background(), &model.User{Email: "sam@campus.test"}, payload)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

// smtpServer - минимальный SMTP-сервер без STARTTLS и AUTH, отдаёт DATA в канал
func smtpServer(t *testing.T) (int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	data := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		reply := func(s string) { fmt.Fprintf(conn, "%s\r\n", s) }
		reply("220 mail.campus.test ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"):
				reply("250-mail.campus.test")
				reply("250 8BITMIME")
			case cmd == "DATA":
				reply("354 end with <CR><LF>.<CR><LF>")
				var b strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					b.WriteString(l)
				}
				data <- b.String()
				reply("250 queued")
			case cmd == "QUIT":
				reply("221 bye")
				return
			default:
				reply("250 OK")
			}
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, data
}

func TestEmailChannel_DeliversOverSMTP(t *testing.T) {
	port, data := smtpServer(t)
	c := NewEmailChannel(EmailConfig{Host: "127.0.0.1", Port: port, From: "portal@campus.test", Timeout: 5 * time.Second})

	require.NoError(t, c.Send(context.Background(), &model.User{Email: "sam@campus.test"}, payload))

	select {
	case msg := <-data:
		assert.Contains(t, msg, "Subject: Reservation approved")
		assert.Contains(t, msg, "sam@campus.test")
		assert.Contains(t, msg, payload.Message)
	case <-time.After(time.Second):
		t.Fatal("server received no message")
	}
}
