// Package mail delivers the transactional messages of the account flows:
// verification links, password reset links and two-factor codes.
package mail

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

type Mailer interface {
	SendVerification(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
	SendTwoFactorCode(ctx context.Context, to, code string) error
}

// Links builds the URLs embedded in messages. Verification links hit the
// API, which redirects to the client; reset links open the client form.
type Links struct {
	PublicBaseURL string
	ClientBaseURL string
}

func (l Links) Verification(token string) string {
	return join(l.PublicBaseURL, "/verify-email", token)
}

func (l Links) PasswordReset(token string) string {
	return join(l.ClientBaseURL, "/reset-password", token)
}

func join(base, path, token string) string {
	return fmt.Sprintf("%s%s?token=%s", strings.TrimRight(base, "/"), path, url.QueryEscape(token))
}

type message struct {
	Subject string
	HTML    string
	Text    string
}

func verificationMessage(link string) message {
	return message{
		Subject: "Verify your email",
		HTML:    fmt.Sprintf(`<p>Welcome! Confirm your address to start booking:</p><p><a href="%s">Verify email</a></p><p>The link is valid for 24 hours.</p>`, link),
		Text:    fmt.Sprintf("Confirm your address: %s\nThe link is valid for 24 hours.", link),
	}
}

func resetMessage(link string) message {
	return message{
		Subject: "Reset your password",
		HTML:    fmt.Sprintf(`<p>Someone asked to reset your password.</p><p><a href="%s">Choose a new password</a></p><p>The link is valid for 1 hour. Ignore this mail if it was not you.</p>`, link),
		Text:    fmt.Sprintf("Choose a new password: %s\nThe link is valid for 1 hour.", link),
	}
}

func twoFactorMessage(code string) message {
	return message{
		Subject: "Your sign-in code",
		HTML:    fmt.Sprintf(`<p>Your code is <b>%s</b>.</p><p>It expires in 5 minutes.</p>`, code),
		Text:    fmt.Sprintf("Your code is %s. It expires in 5 minutes.", code),
	}
}
