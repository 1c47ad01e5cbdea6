// Package email builds transmittable RFC 5322 / MIME messages.
//
// A Message is filled through fluent setters and rendered with Render, which
// returns the complete message followed by the SMTP DATA terminator. When a raw
// message is stored with SetRawMail it replaces structured rendering entirely.
package email

import (
	"maps"
	"time"
)

// DefaultCharset is the charset used for body parts unless SetCharset is called.
const DefaultCharset = "UTF-8"

// DefaultMailer is the X-Mailer header value unless WithMailer is used.
const DefaultMailer = "smtp-mailer-lite"

// Clock supplies the wall-clock time used for Date headers.
type Clock interface {
	Now() time.Time
}

// TokenSource supplies unique opaque tokens for Message-ID values and MIME
// boundaries. Tokens are hashed before use, so they only need to be unique.
type TokenSource interface {
	Token() string
}

// Message holds the fields of one email and renders them. A Message is not
// safe for concurrent mutation.
type Message struct {
	fromName      string
	fromEmail     string
	fakeFromName  string
	fakeFromEmail string
	replyToName   string
	replyToEmail  string

	to  map[string]string
	cc  map[string]string
	bcc map[string]string

	subject     string
	body        string
	attachments map[string]string
	charset     string

	rawMail               string
	rawMailUseCurrentDate bool

	mailer            string
	maxAttachmentSize int64
	clock             Clock
	tokens            TokenSource
}

// Option configures a Message at construction time.
type Option func(*Message)

// WithClock overrides the time source used for Date headers.
func WithClock(c Clock) Option {
	return func(m *Message) {
		m.clock = c
	}
}

// WithTokenSource overrides the source of Message-ID and boundary tokens.
func WithTokenSource(ts TokenSource) Option {
	return func(m *Message) {
		m.tokens = ts
	}
}

// WithMailer sets the X-Mailer header value.
func WithMailer(name string) Option {
	return func(m *Message) {
		m.mailer = name
	}
}

// WithMaxAttachmentSize rejects attachments larger than n bytes at render
// time. Zero or negative means no limit.
func WithMaxAttachmentSize(n int64) Option {
	return func(m *Message) {
		m.maxAttachmentSize = n
	}
}

// NewMessage returns an empty Message.
func NewMessage(opts ...Option) *Message {
	m := &Message{
		to:          make(map[string]string),
		cc:          make(map[string]string),
		bcc:         make(map[string]string),
		attachments: make(map[string]string),
		charset:     DefaultCharset,
		mailer:      DefaultMailer,
		clock:       systemClock{},
		tokens:      uuidTokens{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetFrom sets the sender identity.
func (m *Message) SetFrom(name, email string) *Message {
	m.fromName = name
	m.fromEmail = email
	return m
}

// SetFakeFrom sets a masked sender identity that replaces the real one in the
// Return-Path and From headers.
func (m *Message) SetFakeFrom(name, email string) *Message {
	m.fakeFromName = name
	m.fakeFromEmail = email
	return m
}

// SetReplyTo sets the Reply-To identity.
func (m *Message) SetReplyTo(name, email string) *Message {
	m.replyToName = name
	m.replyToEmail = email
	return m
}

// AddTo adds a recipient. Adding the same email again replaces its name.
func (m *Message) AddTo(name, email string) *Message {
	m.to[email] = name
	return m
}

// AddCc adds a carbon-copy recipient.
func (m *Message) AddCc(name, email string) *Message {
	m.cc[email] = name
	return m
}

// AddBcc adds a blind carbon-copy recipient.
func (m *Message) AddBcc(name, email string) *Message {
	m.bcc[email] = name
	return m
}

// AddAttachment attaches the file at path under the given name. The file is
// read when the message is rendered.
func (m *Message) AddAttachment(name, path string) *Message {
	m.attachments[name] = path
	return m
}

// SetRawMail stores a complete pre-formatted message. A non-empty raw message
// takes precedence over every structured field when rendering.
func (m *Message) SetRawMail(raw string) *Message {
	m.rawMail = raw
	return m
}

// SetSubject sets the subject.
func (m *Message) SetSubject(subject string) *Message {
	m.subject = subject
	return m
}

// SetBody sets the body used for both the text/plain and text/html parts.
func (m *Message) SetBody(body string) *Message {
	m.body = body
	return m
}

// SetCharset sets the charset of the body parts.
func (m *Message) SetCharset(charset string) *Message {
	m.charset = charset
	return m
}

// ToggleCurrentDateRawMail flips whether rendering a raw message rewrites its
// Date header to the current time, and returns the new state.
func (m *Message) ToggleCurrentDateRawMail() bool {
	m.rawMailUseCurrentDate = !m.rawMailUseCurrentDate
	return m.rawMailUseCurrentDate
}

func (m *Message) FromName() string      { return m.fromName }
func (m *Message) FakeFromName() string  { return m.fakeFromName }
func (m *Message) FakeFromEmail() string { return m.fakeFromEmail }
func (m *Message) ReplyToName() string   { return m.replyToName }
func (m *Message) ReplyToEmail() string  { return m.replyToEmail }
func (m *Message) Subject() string       { return m.subject }
func (m *Message) Body() string          { return m.body }
func (m *Message) Charset() string       { return m.charset }
func (m *Message) RawMail() string       { return m.rawMail }

// FromEmail returns the sender email. Without a structured value it is
// extracted from the From header of the raw message, if any.
func (m *Message) FromEmail() string {
	if m.fromEmail == "" && m.rawMail != "" {
		return rawFromEmail(m.rawMail)
	}
	return m.fromEmail
}

// To returns the recipients as email -> display name. Without structured
// recipients they are parsed from the To header of the raw message.
func (m *Message) To() map[string]string {
	return m.recipients(m.to, "to")
}

// Cc returns the carbon-copy recipients, falling back to the raw Cc header.
func (m *Message) Cc() map[string]string {
	return m.recipients(m.cc, "cc")
}

// Bcc returns the blind carbon-copy recipients, falling back to the raw Bcc
// header.
func (m *Message) Bcc() map[string]string {
	return m.recipients(m.bcc, "bcc")
}

// Attachments returns the attachments as name -> path.
func (m *Message) Attachments() map[string]string {
	return maps.Clone(m.attachments)
}

// RawAddresses parses the address list of the named header of the raw message.
func (m *Message) RawAddresses(header string) map[string]string {
	return parseRawAddresses(rawHeaderLine(m.rawMail, header))
}

// RawHeaderLine returns the first full header line of the raw message whose
// name matches header case-insensitively, or "" if there is none.
func (m *Message) RawHeaderLine(header string) string {
	return rawHeaderLine(m.rawMail, header)
}

func (m *Message) recipients(structured map[string]string, header string) map[string]string {
	if len(structured) == 0 && m.rawMail != "" {
		return m.RawAddresses(header)
	}
	return maps.Clone(structured)
}
