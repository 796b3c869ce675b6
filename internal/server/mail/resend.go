package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
)

var ErrNotConfigured = errors.New("email sender not configured")

// newResendClient is a seam for tests.
var newResendClient = resend.NewClient

// emailSender is the part of the resend client we use.
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type ResendMailer struct {
	emails emailSender
	from   string
	links  Links
}

func NewResendMailer(apiKey, from string, links Links) (*ResendMailer, error) {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(from) == "" {
		return nil, ErrNotConfigured
	}
	return &ResendMailer{emails: newResendClient(apiKey).Emails, from: from, links: links}, nil
}

func (m *ResendMailer) SendVerification(ctx context.Context, to, token string) error {
	return m.send(ctx, to, verificationMessage(m.links.Verification(token)))
}

func (m *ResendMailer) SendPasswordReset(ctx context.Context, to, token string) error {
	return m.send(ctx, to, resetMessage(m.links.PasswordReset(token)))
}

func (m *ResendMailer) SendTwoFactorCode(ctx context.Context, to, code string) error {
	return m.send(ctx, to, twoFactorMessage(code))
}

func (m *ResendMailer) send(ctx context.Context, to string, msg message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}
