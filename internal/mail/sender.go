// Package mail renders and delivers the two notification emails: the
// budget alert and the monthly report. Delivery failures are reported to
// the caller but never roll back the database state that triggered them.
package mail

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// Sender delivers one rendered email.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// ResendSender delivers email through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender creates a sender. from is the RFC 5322 From header,
// e.g. "Welth <noreply@welth.app>".
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

var _ Sender = (*ResendSender)(nil)

// Send implements Sender.
func (s *ResendSender) Send(ctx context.Context, to, subject, html string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	}
	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}
