// Package mailer delivers simulation, alert and debrief emails.
package mailer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
	"github.com/unclebandit/phishdrill-backend/internal/logger"
	"github.com/unclebandit/phishdrill-backend/internal/model"
)

type Message struct {
	To      string
	From    string
	Subject string
	Text    string
	HTML    string
}

// Transport sends one message. Failures are reported as *appErrors.TransportError.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Factory builds the transport for a campaign. It never fails; bad SMTP
// settings surface as per-message send errors.
type Factory func(c *model.Campaign) Transport

// NewFactory returns the default Factory, logging console sends to log.
func NewFactory(log logrus.FieldLogger) Factory {
	return func(c *model.Campaign) Transport {
		return ForCampaign(c, log)
	}
}

// ForCampaign selects the console transport unless real sending is enabled.
func ForCampaign(c *model.Campaign, log logrus.FieldLogger) Transport {
	if !c.EnableSending {
		return &ConsoleTransport{Log: log}
	}
	return NewSMTPTransport(c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPass)
}

// ConsoleTransport logs the message instead of delivering it.
type ConsoleTransport struct {
	Log logrus.FieldLogger
}

func (t *ConsoleTransport) Send(_ context.Context, msg Message) error {
	t.Log.WithFields(logrus.Fields{
		"to":      logger.RedactEmail(msg.To),
		"from":    msg.From,
		"subject": msg.Subject,
		"bytes":   len(msg.Text) + len(msg.HTML),
	}).Info("simulated email send (console transport)")
	return nil
}

// SMTPTransport delivers through an SMTP relay. Port 465 uses implicit TLS.
type SMTPTransport struct {
	dialer *gomail.Dialer
	// Sender overrides the dialer, for tests.
	Sender gomail.Sender
}

func NewSMTPTransport(host string, port int, user, pass string) *SMTPTransport {
	d := gomail.NewDialer(host, port, user, pass)
	d.SSL = port == 465
	return &SMTPTransport{dialer: d}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return appErrors.NewTransport(msg.To, err)
	}
	if t.Sender == nil && t.dialer.Host == "" {
		return appErrors.NewTransport(msg.To, fmt.Errorf("smtp host not configured"))
	}

	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	var err error
	if t.Sender != nil {
		err = gomail.Send(t.Sender, m)
	} else {
		err = t.dialer.DialAndSend(m)
	}
	if err != nil {
		return appErrors.NewTransport(msg.To, err)
	}
	return nil
}
