package main

import (
	"errors"
	"flag"
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/shineum/smtp-mailer-lite/internal/config"
	"github.com/shineum/smtp-mailer-lite/internal/email"
)

// options holds the parsed command line.
type options struct {
	configPath  string
	provider    string
	from        string
	replyTo     string
	to          addressList
	cc          addressList
	bcc         addressList
	subject     string
	body        string
	bodyFile    string
	attachments attachmentList
	rawFile     string
	currentDate bool
	verbose     bool
}

// addressList collects repeatable address flags. Each value may hold a
// comma separated RFC 5322 address list.
type addressList []*mail.Address

func (a *addressList) String() string {
	parts := make([]string, 0, len(*a))
	for _, addr := range *a {
		parts = append(parts, addr.String())
	}
	return strings.Join(parts, ", ")
}

func (a *addressList) Set(value string) error {
	addrs, err := mail.ParseAddressList(value)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", value, err)
	}
	*a = append(*a, addrs...)
	return nil
}

type attachment struct {
	name string
	path string
}

// attachmentList collects repeatable name=path flags. A bare path uses its
// base name as the attachment name.
type attachmentList []attachment

func (a *attachmentList) String() string {
	parts := make([]string, 0, len(*a))
	for _, att := range *a {
		parts = append(parts, att.name+"="+att.path)
	}
	return strings.Join(parts, ",")
}

func (a *attachmentList) Set(value string) error {
	name, path, found := strings.Cut(value, "=")
	if !found {
		path = value
		name = path[strings.LastIndexAny(path, `/\`)+1:]
	}
	if name == "" || path == "" {
		return fmt.Errorf("invalid attachment %q, want name=path", value)
	}
	*a = append(*a, attachment{name: name, path: path})
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, error) {
	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "path to YAML configuration file (optional)")
	fs.StringVar(&o.provider, "provider", "", "delivery provider: smtp, ses, graph or stdout")
	fs.StringVar(&o.from, "from", "", "sender address, overrides message.from_email")
	fs.StringVar(&o.replyTo, "reply-to", "", "reply-to address, overrides message.reply_to_email")
	fs.Var(&o.to, "to", "recipient address (repeatable)")
	fs.Var(&o.cc, "cc", "carbon copy address (repeatable)")
	fs.Var(&o.bcc, "bcc", "blind carbon copy address (repeatable)")
	fs.StringVar(&o.subject, "subject", "", "message subject")
	fs.StringVar(&o.body, "body", "", "HTML body")
	fs.StringVar(&o.bodyFile, "body-file", "", "read the HTML body from a file")
	fs.Var(&o.attachments, "attach", "attachment as name=path (repeatable)")
	fs.StringVar(&o.rawFile, "raw", "", "send a prebuilt RFC 5322 message from a file")
	fs.BoolVar(&o.currentDate, "current-date", false, "rewrite the Date header of the -raw message to now")
	fs.BoolVar(&o.verbose, "verbose", false, "stdout provider also prints the raw payload")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if o.body != "" && o.bodyFile != "" {
		return nil, errors.New("-body and -body-file are mutually exclusive")
	}
	if o.currentDate && o.rawFile == "" {
		return nil, errors.New("-current-date requires -raw")
	}
	o.provider = strings.ToLower(o.provider)
	return o, nil
}

// buildMessage assembles a message from configuration defaults and the
// command line. With -raw the file is sent as is; address flags still set
// the envelope used by the providers.
func buildMessage(cfg *config.Config, o *options) (*email.Message, error) {
	var msgOpts []email.Option
	if cfg.Message.Mailer != "" {
		msgOpts = append(msgOpts, email.WithMailer(cfg.Message.Mailer))
	}
	maxSize, err := cfg.Message.MaxAttachmentBytes()
	if err != nil {
		return nil, err
	}
	if maxSize > 0 {
		msgOpts = append(msgOpts, email.WithMaxAttachmentSize(maxSize))
	}

	msg := email.NewMessage(msgOpts...)

	if cfg.Message.FromEmail != "" {
		msg.SetFrom(cfg.Message.FromName, cfg.Message.FromEmail)
	}
	if cfg.Message.FakeFromEmail != "" {
		msg.SetFakeFrom(cfg.Message.FakeFromName, cfg.Message.FakeFromEmail)
	}
	if cfg.Message.ReplyToEmail != "" {
		msg.SetReplyTo(cfg.Message.ReplyToName, cfg.Message.ReplyToEmail)
	}
	if cfg.Message.Charset != "" {
		msg.SetCharset(cfg.Message.Charset)
	}

	if o.from != "" {
		addr, err := mail.ParseAddress(o.from)
		if err != nil {
			return nil, fmt.Errorf("invalid -from address: %w", err)
		}
		msg.SetFrom(addr.Name, addr.Address)
	}
	if o.replyTo != "" {
		addr, err := mail.ParseAddress(o.replyTo)
		if err != nil {
			return nil, fmt.Errorf("invalid -reply-to address: %w", err)
		}
		msg.SetReplyTo(addr.Name, addr.Address)
	}
	for _, addr := range o.to {
		msg.AddTo(addr.Name, addr.Address)
	}
	for _, addr := range o.cc {
		msg.AddCc(addr.Name, addr.Address)
	}
	for _, addr := range o.bcc {
		msg.AddBcc(addr.Name, addr.Address)
	}

	if o.rawFile != "" {
		data, err := os.ReadFile(o.rawFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read raw message: %w", err)
		}
		msg.SetRawMail(string(data))
		if o.currentDate {
			msg.ToggleCurrentDateRawMail()
		}
		return msg, nil
	}

	body := o.body
	if o.bodyFile != "" {
		data, err := os.ReadFile(o.bodyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		body = string(data)
	}

	msg.SetSubject(o.subject).SetBody(body)
	for _, att := range o.attachments {
		msg.AddAttachment(att.name, att.path)
	}
	return msg, nil
}
