package mail

import (
	"context"
	"log/slog"
)

// Template names expected to exist on the provider side.
const (
	TemplateNewApplication  = "new-application-received"
	TemplatePasswordChanged = "your-password-has-been-changed"
	TemplatePasswordReset   = "reset-your-password"
)

// Address is one recipient.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Attachment is a file carried on a message, base64-encoded.
type Attachment struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Message is a templated transactional email.
type Message struct {
	Template    string
	To          []Address
	Vars        map[string]string
	Attachments []Attachment
	Tags        []string
}

// Mailer dispatches transactional email through an external provider.
type Mailer interface {
	SendTemplate(ctx context.Context, msg Message) error
}

// LogMailer logs messages instead of sending them; used when no provider
// key is configured (local development).
type LogMailer struct{}

// SendTemplate logs the message and reports success.
func (LogMailer) SendTemplate(_ context.Context, msg Message) error {
	to := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, a.Email)
	}
	slog.Info("mail suppressed (no provider configured)",
		"template", msg.Template,
		"to", to,
		"attachments", len(msg.Attachments),
	)
	return nil
}
