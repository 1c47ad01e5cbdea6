// Package smtp delivers rendered messages to an SMTP relay, with STARTTLS
// and AUTH PLAIN/LOGIN support.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"net/textproto"
	"slices"
	"strconv"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/smtp-mailer-lite/internal/email"
)

const (
	defaultPort      = 25
	defaultTimeout   = 30 * time.Second
	defaultLocalName = "localhost"
)

var (
	// ErrNoSender is returned when the message has no sender address.
	ErrNoSender = errors.New("smtp: message has no sender")
	// ErrNoRecipients is returned when the message has no To, Cc or Bcc.
	ErrNoRecipients = errors.New("smtp: message has no recipients")
)

// ReplyError is an SMTP reply that rejected a command.
type ReplyError struct {
	// Command is the step that was answered, e.g. "RCPT".
	Command string
	Code    int
	Message string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("smtp: %s rejected: %d %s", e.Command, e.Code, e.Message)
}

// Temporary reports whether the reply is a 4xx transient failure.
func (e *ReplyError) Temporary() bool {
	return e.Code >= 400 && e.Code < 500
}

// replyError labels err with the command it answered. Server replies become
// a *ReplyError; anything else, such as a broken connection, is wrapped.
func replyError(command string, err error) error {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		return &ReplyError{Command: command, Code: smtpErr.Code, Message: smtpErr.Message}
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return &ReplyError{Command: command, Code: protoErr.Code, Message: protoErr.Msg}
	}
	return fmt.Errorf("smtp: %s failed: %w", command, err)
}

// Config holds the configuration for an SMTP Client.
type Config struct {
	// Host and Port locate the relay. Port defaults to 25.
	Host string
	Port int

	// Username and Password configure SMTP AUTH.
	// If both are empty, no authentication is attempted.
	Username string
	Password string

	// StartTLS requires the server to offer STARTTLS and upgrades the
	// connection before authenticating.
	StartTLS bool

	// TLSConfig is used for STARTTLS. ServerName defaults to Host.
	TLSConfig *tls.Config

	// LocalName is sent with EHLO/HELO. Defaults to "localhost".
	LocalName string

	// Timeout bounds the dial and every single read or write.
	Timeout time.Duration
}

// Client delivers messages over SMTP. A new connection is opened for every
// message.
type Client struct {
	config Config
	auth   *Authenticator
	dialer *net.Dialer
}

// New creates a new SMTP Client with the given configuration.
func New(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.LocalName == "" {
		cfg.LocalName = defaultLocalName
	}

	return &Client{
		config: cfg,
		auth:   NewAuthenticator(cfg.Username, cfg.Password),
		dialer: &net.Dialer{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "smtp"
}

// Send renders msg and delivers it in a single SMTP transaction: MAIL FROM
// is the message's FromEmail, and every To, Cc and Bcc address is a RCPT TO.
// The rendered message minus its DATA terminator goes through the DATA
// writer, which dot-stuffs it and writes the terminator back.
func (c *Client) Send(ctx context.Context, msg *email.Message) error {
	rendered, err := msg.Render()
	if err != nil {
		return fmt.Errorf("smtp: failed to render message: %w", err)
	}

	from := msg.FromEmail()
	if from == "" {
		return ErrNoSender
	}
	rcpts := recipients(msg)
	if len(rcpts) == 0 {
		return ErrNoRecipients
	}

	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp: failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	// Unblock any pending read or write once ctx is done.
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	payload := email.StripEndOfData(rendered)
	usedTLS, err := c.deliver(&timeoutConn{Conn: conn, timeout: c.config.Timeout}, from, rcpts, payload)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp: %w", ctxErr)
		}
		return err
	}

	slog.Info("message sent via SMTP",
		"addr", addr,
		"from", from,
		"recipients", len(rcpts),
		"size", len(payload),
		"tls", usedTLS,
	)
	return nil
}

// deliver runs the conversation on an open connection and reports whether
// it was upgraded to TLS.
func (c *Client) deliver(conn net.Conn, from string, rcpts []string, payload string) (bool, error) {
	sc, err := gosmtp.NewClient(conn, c.config.Host)
	if err != nil {
		return false, replyError("greeting", err)
	}
	defer sc.Close()

	if err := sc.Hello(c.config.LocalName); err != nil {
		return false, replyError("EHLO", err)
	}

	usedTLS := false
	if c.config.StartTLS {
		if ok, _ := sc.Extension("STARTTLS"); !ok {
			return false, errors.New("smtp: server does not offer STARTTLS")
		}
		if err := sc.StartTLS(c.tlsConfig()); err != nil {
			return false, replyError("STARTTLS", err)
		}
		usedTLS = true
	}

	if c.auth.Enabled() {
		ok, mechs := sc.Extension("AUTH")
		if !ok {
			return usedTLS, errors.New("smtp: server does not offer AUTH")
		}
		saslClient, err := c.auth.SASLClient(mechs)
		if err != nil {
			return usedTLS, fmt.Errorf("smtp: %w", err)
		}
		if err := sc.Auth(saslClient); err != nil {
			return usedTLS, replyError("AUTH", err)
		}
	}

	if ok, param := sc.Extension("SIZE"); ok {
		limit, err := strconv.Atoi(strings.TrimSpace(param))
		if err == nil && limit > 0 && len(payload) > limit {
			return usedTLS, fmt.Errorf("smtp: message size %d exceeds server limit %d", len(payload), limit)
		}
	}

	if err := sc.Mail(from, &gosmtp.MailOptions{Size: len(payload)}); err != nil {
		return usedTLS, replyError("MAIL", err)
	}
	for _, rcpt := range rcpts {
		if err := sc.Rcpt(rcpt); err != nil {
			return usedTLS, replyError("RCPT", err)
		}
	}

	w, err := sc.Data()
	if err != nil {
		return usedTLS, replyError("DATA", err)
	}
	if _, err := io.WriteString(w, payload); err != nil {
		w.Close()
		return usedTLS, replyError("DATA", err)
	}
	if err := w.Close(); err != nil {
		return usedTLS, replyError("DATA", err)
	}

	// The message is accepted at this point; a failed QUIT is not an error.
	if err := sc.Quit(); err != nil {
		slog.Debug("QUIT failed", "error", err)
	}
	return usedTLS, nil
}

func (c *Client) tlsConfig() *tls.Config {
	if c.config.TLSConfig == nil {
		return &tls.Config{
			ServerName: c.config.Host,
			MinVersion: tls.VersionTLS12,
		}
	}
	if c.config.TLSConfig.ServerName != "" {
		return c.config.TLSConfig
	}
	cfg := c.config.TLSConfig.Clone()
	cfg.ServerName = c.config.Host
	return cfg
}

// recipients returns the To, Cc and Bcc addresses of msg, deduplicated and
// sorted.
func recipients(msg *email.Message) []string {
	all := make(map[string]struct{})
	for _, set := range []map[string]string{msg.To(), msg.Cc(), msg.Bcc()} {
		for addr := range set {
			all[addr] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(all))
}

// timeoutConn moves the deadline forward before every read and write.
type timeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *timeoutConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func (c *timeoutConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}
