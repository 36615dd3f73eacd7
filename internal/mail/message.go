// Package mail relays HTML email through the SMTP server configured in the
// smtp_settings table.
package mail

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	netmail "net/mail"
	"net/textproto"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/vindennt/outfred-gateway/internal/models"
)

const defaultFromName = "Outfred"

// ErrInvalidRecipient is returned for a "to" value that is not an RFC 5322
// address list.
var ErrInvalidRecipient = errors.New("invalid recipient address")

// Message is a composed email ready for the transport.
type Message struct {
	From      netmail.Address
	To        []*netmail.Address
	Subject   string
	HTML      string
	Text      string
	MessageID string
	Date      time.Time
}

var (
	textPolicy  = bluemonday.StrictPolicy()
	blockEnds   = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|h[1-6]|li|tr|table)>`)
	blankRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// ParseRecipients accepts a single address, a display-name address such as
// "Jane <jane@example.com>", or a comma-separated list of either.
func ParseRecipients(to string) ([]*netmail.Address, error) {
	list, err := netmail.ParseAddressList(to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	return list, nil
}

// Compose builds the message for settings. The sender is
// "<from_name or Outfred>" <from_email>.
func Compose(settings *models.SMTPSettings, to []*netmail.Address, subject, htmlBody string, now time.Time) *Message {
	name := settings.FromName
	if name == "" {
		name = defaultFromName
	}

	return &Message{
		From:      netmail.Address{Name: name, Address: settings.FromEmail},
		To:        to,
		Subject:   subject,
		HTML:      htmlBody,
		Text:      PlainText(htmlBody),
		MessageID: newMessageID(settings.FromEmail),
		Date:      now,
	}
}

// PlainText renders the text/plain alternative of an HTML body.
func PlainText(htmlBody string) string {
	s := blockEnds.ReplaceAllString(htmlBody, "$0\n")
	s = html.UnescapeString(textPolicy.Sanitize(s))

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(blankRuns.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(newlineRuns.ReplaceAllString(s, "\n\n"))
}

func newMessageID(from string) string {
	domain := "outfred.local"
	if _, d, ok := strings.Cut(from, "@"); ok && d != "" {
		domain = d
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// Recipients returns the bare addresses used as RCPT arguments.
func (m *Message) Recipients() []string {
	rcpts := make([]string, len(m.To))
	for i, a := range m.To {
		rcpts[i] = a.Address
	}
	return rcpts
}

func (m *Message) toHeader() string {
	formatted := make([]string, len(m.To))
	for i, a := range m.To {
		if a.Name == "" {
			formatted[i] = a.Address
			continue
		}
		formatted[i] = a.String()
	}
	return strings.Join(formatted, ", ")
}

// Bytes renders the message as multipart/alternative MIME.
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", m.From.String())
	fmt.Fprintf(&buf, "To: %s\r\n", m.toHeader())
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", m.Date.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", m.MessageID)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	parts := []struct{ contentType, body string }{
		{"text/plain; charset=utf-8", m.Text},
		{"text/html; charset=utf-8", m.HTML},
	}
	for _, p := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(p.body)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
