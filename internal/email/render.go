package email

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"
)

const crlf = "\r\n"

// EndOfData is the SMTP DATA terminator every rendered message ends with.
const EndOfData = crlf + "." + crlf

// dateLayout is the RFC 2822 date format used for Date headers.
const dateLayout = time.RFC1123Z

// header is a single rendered header field.
type header struct {
	key   string
	value string
}

// Render returns the complete message followed by CRLF and the DATA
// terminator. With a raw message stored, the raw text is returned, with its
// Date header replaced when ToggleCurrentDateRawMail enabled it. Otherwise the
// structured fields are assembled into a multipart message.
func (m *Message) Render() (string, error) {
	if m.rawMail != "" {
		return m.renderRaw()
	}
	return m.renderStructured()
}

// WriteTo renders the message and writes it to w.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	s, err := m.Render()
	if err != nil {
		return 0, err
	}
	n, err := io.WriteString(w, s)
	return int64(n), err
}

// StripEndOfData removes the trailing DATA terminator from a rendered message,
// leaving the bare RFC 5322 message.
func StripEndOfData(rendered string) string {
	return strings.TrimSuffix(rendered, "."+crlf)
}

func (m *Message) renderRaw() (string, error) {
	mail := m.rawMail

	if m.rawMailUseCurrentDate {
		updated, err := rewriteRawDate(mail, m.clock.Now().Format(dateLayout))
		if err != nil {
			return "", err
		}
		mail = updated
	}

	return mail + crlf + EndOfData, nil
}

func (m *Message) renderStructured() (string, error) {
	body, err := encodeCharset(m.body, m.charset)
	if err != nil {
		return "", err
	}

	// Read every attachment before assembling anything so that a failure
	// never leaves a half-built message behind.
	names := sortedKeys(m.attachments)
	files := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := m.readAttachment(name, m.attachments[name])
		if err != nil {
			return "", err
		}
		files = append(files, data)
	}

	var mixedBoundary string
	if len(names) > 0 {
		mixedBoundary = m.newBoundary()
	}
	altBoundary := m.newBoundary()

	var b strings.Builder
	for _, h := range m.headers(mixedBoundary) {
		b.WriteString(h.key + ": " + h.value + crlf)
	}

	if len(names) == 0 {
		m.writeAlternative(&b, altBoundary, body)
	} else {
		b.WriteString(crlf + crlf)
		b.WriteString("--" + mixedBoundary + crlf)
		m.writeAlternative(&b, altBoundary, body)
		for i, name := range names {
			writeAttachment(&b, mixedBoundary, name, files[i])
		}
		b.WriteString(crlf + crlf)
		b.WriteString("--" + mixedBoundary + "--" + crlf)
	}

	b.WriteString(crlf + EndOfData)
	return b.String(), nil
}

// headers builds the header fields in their fixed order. mixedBoundary is
// empty for messages without attachments.
func (m *Message) headers(mixedBoundary string) []header {
	fromName := m.fromName
	fromEmail := m.fromEmail
	if m.fakeFromEmail != "" {
		if m.fakeFromName != "" {
			fromName = m.fakeFromName
		}
		fromEmail = m.fakeFromEmail
	}

	hs := []header{
		{"Date", m.clock.Now().Format(dateLayout)},
		{"Return-Path", fromEmail},
		{"From", formatAddress(fromName, fromEmail)},
		{"To", formatAddressList(m.to)},
		{"Cc", formatAddressList(m.cc)},
		{"Bcc", formatAddressList(m.bcc)},
	}

	if m.replyToEmail != "" {
		hs = append(hs, header{"Reply-To", formatAddress(m.replyToName, m.replyToEmail)})
	}

	subject := ""
	if m.subject != "" {
		subject = encodedWord(m.subject)
	}

	hs = append(hs,
		header{"Subject", subject},
		header{"Message-ID", "<" + digest(m.tokens.Token()) + "@" + m.fromEmail + ">"},
		header{"X-Priority", "3"},
		header{"X-Mailer", m.mailer},
		header{"MIME-Version", "1.0"},
	)

	if mixedBoundary != "" {
		hs = append(hs, header{"Content-Type", `multipart/mixed; boundary="` + mixedBoundary + `"`})
	}

	return hs
}

// writeAlternative writes the multipart/alternative section holding the
// text/plain and text/html copies of the body, starting with its own
// Content-Type line.
func (m *Message) writeAlternative(b *strings.Builder, boundary string, body []byte) {
	encoded := encodeBase64Lines(body)

	b.WriteString(`Content-Type: multipart/alternative; boundary="` + boundary + `"` + crlf)
	b.WriteString(crlf)
	for _, mediaType := range []string{"text/plain", "text/html"} {
		b.WriteString("--" + boundary + crlf)
		b.WriteString("Content-Type: " + mediaType + `; charset="` + m.charset + `"` + crlf)
		b.WriteString("Content-Transfer-Encoding: base64" + crlf)
		b.WriteString(crlf)
		b.WriteString(encoded + crlf)
		b.WriteString(crlf)
	}
	b.WriteString("--" + boundary + "--" + crlf)
}

func writeAttachment(b *strings.Builder, boundary, name string, data []byte) {
	b.WriteString(crlf)
	b.WriteString("--" + boundary + crlf)
	b.WriteString(`Content-Type: application/octet-stream; name="` + name + `"` + crlf)
	b.WriteString("Content-Transfer-Encoding: base64" + crlf)
	b.WriteString(`Content-Disposition: attachment; filename="` + name + `"` + crlf)
	b.WriteString(crlf)
	b.WriteString(encodeBase64Lines(data) + crlf)
}

func (m *Message) readAttachment(name, path string) ([]byte, error) {
	if m.maxAttachmentSize > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return nil, &AttachmentReadError{Name: name, Path: path, Err: err}
		}
		if info.Size() > m.maxAttachmentSize {
			return nil, &AttachmentReadError{
				Name: name,
				Path: path,
				Err:  fmt.Errorf("%w: %d > %d bytes", ErrAttachmentTooLarge, info.Size(), m.maxAttachmentSize),
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &AttachmentReadError{Name: name, Path: path, Err: err}
	}
	return data, nil
}

func (m *Message) newBoundary() string {
	return digest(m.tokens.Token())
}

func sortedKeys(mp map[string]string) []string {
	return slices.Sorted(maps.Keys(mp))
}
