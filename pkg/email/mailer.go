package email

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoRecipient indicates a message without a To address
	ErrNoRecipient = errors.New("email recipient cannot be empty")

	// ErrNoSubject indicates a message without a subject
	ErrNoSubject = errors.New("email subject cannot be empty")
)

// Attachment is a file sent along with a message
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is a single outgoing e-mail
type Message struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Validate checks the fields every provider requires
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	if strings.TrimSpace(m.Subject) == "" {
		return ErrNoSubject
	}
	return nil
}

// Mailer sends e-mail
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them.
// Used in development and when no provider key is configured.
type LogMailer struct {
	logger *logrus.Logger
}

// NewLogMailer creates a new LogMailer
func NewLogMailer(logger *logrus.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the message
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}

	m.logger.WithFields(logrus.Fields{
		"to":          msg.To,
		"subject":     msg.Subject,
		"attachments": names,
	}).Info("Email (log mode, not sent)")
	return nil
}
