package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"github.com/dmitrijs2005/pilgrim/internal/logging"
	"github.com/dmitrijs2005/pilgrim/internal/server/mail"
	"github.com/dmitrijs2005/pilgrim/internal/server/models"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/users"
	"github.com/dmitrijs2005/pilgrim/internal/server/tokens"
)

// TwoFactorService mails and checks six-digit codes. A code stays valid for
// repeated checks until it expires or is reset.
type TwoFactorService struct {
	issuer *tokens.Issuer
	mailer mail.Mailer
	log    logging.Logger
}

func NewTwoFactorService(u users.Repository, mailer mail.Mailer, log logging.Logger) *TwoFactorService {
	return &TwoFactorService{
		issuer: tokens.NewIssuer(u, tokens.TwoFactorFlavor()),
		mailer: mailer,
		log:    log.With("component", "2fa"),
	}
}

// Send issues a new code for user, replacing any previous one, and mails it.
func (s *TwoFactorService) Send(ctx context.Context, user *models.User) error {
	if user.ID == models.VirtualAdminID {
		return common.NewValidationError("Two-factor codes are not available for this account")
	}

	code, err := s.issuer.Issue(ctx, user.ID)
	if err != nil {
		return err
	}
	return s.mailer.SendTwoFactorCode(ctx, user.Email, code)
}

// Verify reports whether code is user's live code. The code is not consumed.
func (s *TwoFactorService) Verify(ctx context.Context, user *models.User, code string) (bool, error) {
	if user.ID == models.VirtualAdminID {
		return false, nil
	}

	_, err := s.issuer.ValidateFor(ctx, user.ID, code)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrInvalidToken):
		s.log.Warn(ctx, "two-factor code rejected", "user_id", user.ID)
		return false, nil
	default:
		return false, err
	}
}

// Reset clears user's code.
func (s *TwoFactorService) Reset(ctx context.Context, user *models.User) error {
	if user.ID == models.VirtualAdminID {
		return nil
	}
	return s.issuer.Reset(ctx, user.ID)
}
