package mail

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testConfig = Config{
	Host:     "smtp.example.com",
	Port:     2525,
	Username: "user",
	Password: "pass",
	From:     "passage@example.com",
	BaseURL:  "https://auth.example.com/",
}

func TestVerificationMessage(t *testing.T) {
	msg, err := VerificationMessage(testConfig, "alice@example.com", "01ABC.s3cr3t")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", msg.To)
	require.Contains(t, msg.Body, "https://auth.example.com/verify?slug="+url.QueryEscape("01ABC.s3cr3t"))
}

func TestResetMessage(t *testing.T) {
	msg, err := ResetMessage(testConfig, "alice@example.com", "s3cr3t")
	require.NoError(t, err)
	require.Contains(t, msg.Body, "https://auth.example.com/reset?email=alice%40example.com&slug=s3cr3t")
}

func TestMessageBytes(t *testing.T) {
	msg := Message{From: "a@example.com", To: "b@example.com", Subject: "Hi", Body: "line one\nline two\n"}
	raw := string(msg.Bytes(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))

	require.True(t, strings.HasPrefix(raw, "From: a@example.com\r\nTo: b@example.com\r\nSubject: Hi\r\n"))
	require.Contains(t, raw, "\r\n\r\nline one\r\nline two\r\n")
}

func TestSMTPMailerSends(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  []byte
		gotAuth smtp.Auth
	)
	m := NewSMTPMailer(testConfig)
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, msg
		require.Equal(t, "passage@example.com", from)
		return nil
	}

	require.NoError(t, m.SendResetEmail(context.Background(), "alice@example.com", "s3cr3t"))
	require.Equal(t, "smtp.example.com:2525", gotAddr)
	require.NotNil(t, gotAuth)
	require.Equal(t, []string{"alice@example.com"}, gotTo)
	require.Contains(t, string(gotMsg), "Subject: Reset your password")
}

func TestSMTPMailerPropagatesFailure(t *testing.T) {
	sendErr := errors.New("454 TLS not available")
	m := NewSMTPMailer(Config{Host: "localhost"})
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return sendErr }

	err := m.SendVerificationEmail(context.Background(), "alice@example.com", "slug")
	require.ErrorIs(t, err, sendErr)
}

func TestSMTPMailerHonoursCancelledContext(t *testing.T) {
	m := NewSMTPMailer(testConfig)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send called after cancel")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.SendVerificationEmail(ctx, "alice@example.com", "slug"), context.Canceled)
}

func TestWriterMailer(t *testing.T) {
	var buf bytes.Buffer
	m := &WriterMailer{Config: testConfig, W: &buf}

	require.NoError(t, m.SendVerificationEmail(context.Background(), "alice@example.com", "01ABC.s3cr3t"))
	require.Contains(t, buf.String(), "To: alice@example.com")
	require.Contains(t, buf.String(), "/verify?slug=")
}
