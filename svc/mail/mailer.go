package mail

import (
	"context"
	"regexp"

	gomail "github.com/wneessen/go-mail"
	"github.com/pkg/errors"

	"linepaste/cfg"
)

// emailPattern is deliberately loose: it only gates whether an address
// is worth handing to the SMTP server, nothing more.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func ValidAddress(email string) bool {
	return emailPattern.MatchString(email)
}

// Message is the full notification payload the core hands outward.
type Message struct {
	To       []string
	ReplyTo  string
	Subject  string
	HTMLBody string
}

// Sender delivers a notification. Failures are always soft: the caller
// logs them and moves on.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPMailer struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
	fromName  string
}

func NewSMTP(c *cfg.Cfg) *SMTPMailer {
	return &SMTPMailer{
		host:      c.SMTPHost,
		port:      c.SMTPPort,
		username:  c.SMTPUsername,
		password:  c.SMTPPassword.Value(),
		fromEmail: c.SMTPFromEmail,
		fromName:  c.SMTPFromName,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		// sending to nobody is a success
		return nil
	}
	message := gomail.NewMsg()
	if err := message.FromFormat(m.fromName, m.fromEmail); err != nil {
		return errors.Wrap(err, "set from address")
	}
	if err := message.To(msg.To...); err != nil {
		return errors.Wrap(err, "set recipients")
	}
	if msg.ReplyTo != "" && ValidAddress(msg.ReplyTo) {
		if err := message.ReplyTo(msg.ReplyTo); err != nil {
			return errors.Wrap(err, "set reply-to")
		}
	}
	message.Subject(msg.Subject)
	message.SetBodyString(gomail.TypeTextHTML, msg.HTMLBody)

	opts := []gomail.Option{
		gomail.WithPort(m.port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if m.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.username),
			gomail.WithPassword(m.password),
		)
	}
	client, err := gomail.NewClient(m.host, opts...)
	if err != nil {
		return errors.Wrap(err, "smtp client")
	}
	if err := client.DialAndSendWithContext(ctx, message); err != nil {
		return errors.Wrap(err, "send notification")
	}
	return nil
}
