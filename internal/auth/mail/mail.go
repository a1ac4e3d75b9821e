// Package mail delivers verification and password reset links.
package mail

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"
)

// Config describes the outbound mail server and the links embedded in
// messages.
type Config struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`

	// BaseURL is the public URL the links in messages point at.
	BaseURL string `koanf:"base_url"`
}

// Message is a rendered plain text email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

var (
	verificationTmpl = template.Must(template.New("verification").Parse(
		`Welcome!

Confirm your email address by opening the link below from the same network
you signed up from:

{{ .Link }}

If you did not create an account you can ignore this message.
`))

	resetTmpl = template.Must(template.New("reset").Parse(
		`Someone asked to reset the password for this address.

Open the link below to choose a new password:

{{ .Link }}

If this was not you, ignore this message and your password stays the same.
`))
)

// Bytes renders the message in RFC 5322 form.
func (m Message) Bytes(now time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return b.Bytes()
}

// VerificationMessage builds the mail carrying a verification slug.
func VerificationMessage(cfg Config, address, slug string) (Message, error) {
	link := strings.TrimRight(cfg.BaseURL, "/") + "/verify?" + url.Values{"slug": {slug}}.Encode()
	body, err := render(verificationTmpl, link)
	if err != nil {
		return Message{}, err
	}
	return Message{From: cfg.From, To: address, Subject: "Confirm your email address", Body: body}, nil
}

// ResetMessage builds the mail carrying a password reset slug.
func ResetMessage(cfg Config, address, slug string) (Message, error) {
	link := strings.TrimRight(cfg.BaseURL, "/") + "/reset?" + url.Values{"email": {address}, "slug": {slug}}.Encode()
	body, err := render(resetTmpl, link)
	if err != nil {
		return Message{}, err
	}
	return Message{From: cfg.From, To: address, Subject: "Reset your password", Body: body}, nil
}

func render(tmpl *template.Template, link string) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, struct{ Link string }{link}); err != nil {
		return "", err
	}
	return b.String(), nil
}
