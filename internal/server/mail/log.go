package mail

import (
	"context"

	"github.com/dmitrijs2005/pilgrim/internal/logging"
)

// LogMailer writes messages to the log instead of sending them. It is the
// fallback when no mail provider is configured, so links and codes are
// logged in clear text; never use it in production.
type LogMailer struct {
	log   logging.Logger
	links Links
}

func NewLogMailer(log logging.Logger, links Links) *LogMailer {
	return &LogMailer{log: log.With("component", "mail"), links: links}
}

func (m *LogMailer) SendVerification(ctx context.Context, to, token string) error {
	m.log.Info(ctx, "verification mail", "to", to, "link", m.links.Verification(token))
	return nil
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, to, token string) error {
	m.log.Info(ctx, "password reset mail", "to", to, "link", m.links.PasswordReset(token))
	return nil
}

func (m *LogMailer) SendTwoFactorCode(ctx context.Context, to, code string) error {
	m.log.Info(ctx, "two-factor mail", "to", to, "code", code)
	return nil
}
