// Package services contains the account flows of the server: registration,
// both login strategies, email verification, password reset, sessions,
// profile edits, avatar uploads and two-factor codes.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"github.com/dmitrijs2005/pilgrim/internal/cryptox"
	"github.com/dmitrijs2005/pilgrim/internal/logging"
	"github.com/dmitrijs2005/pilgrim/internal/server/mail"
	"github.com/dmitrijs2005/pilgrim/internal/server/models"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/users"
	"github.com/dmitrijs2005/pilgrim/internal/server/tokens"
)

// VerificationOutcome is what the verify-email redirect reports to the client.
type VerificationOutcome string

const (
	VerificationSuccess         VerificationOutcome = "success"
	VerificationFailed          VerificationOutcome = "failed"
	VerificationAlreadyVerified VerificationOutcome = "already-verified"
)

// AdminCredential is the virtual administrator's login. PasswordHash is a
// cryptox encoded hash; when empty, admin login is disabled.
type AdminCredential struct {
	Username     string
	PasswordHash string
}

type RegisterInput struct {
	Username string
	Password string
	Email    string
	Role     models.Role
	FullName string
	Phone    string
}

type AuthOptions struct {
	Admin AdminCredential
	// AutoVerify creates users already verified and skips the mail. The
	// verification token is still issued.
	AutoVerify bool
	// AllowAdminRegistration lets Register create admin-role accounts. They
	// are verified at creation and get no token or mail.
	AllowAdminRegistration bool
	// AtomicPasswordReset clears the reset token and writes the new hash
	// inside one transaction instead of two independent writes.
	AtomicPasswordReset bool
}

// passwordHasher is the part of cryptox.Hasher the flows use.
type passwordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encoded string) (bool, error)
}

type AuthService struct {
	repos        repomanager.RepositoryManager
	hasher       passwordHasher
	dummyHash    string
	verification *tokens.Issuer
	reset        *tokens.Issuer
	resolver     *SessionResolver
	mailer       mail.Mailer
	log          logging.Logger
	opts         AuthOptions
}

func NewAuthService(repos repomanager.RepositoryManager, hasher *cryptox.Hasher, resolver *SessionResolver,
	mailer mail.Mailer, log logging.Logger, opts AuthOptions) *AuthService {
	// verified against on unknown usernames so the miss costs as much as a hit
	dummy, err := hasher.Hash("pilgrim unknown user")
	if err != nil {
		log.Error(context.Background(), "dummy hash failed", "error", err)
	}
	return &AuthService{
		dummyHash:    dummy,
		repos:        repos,
		hasher:       hasher,
		verification: tokens.NewIssuer(repos.Users(), tokens.VerificationFlavor()),
		reset:        tokens.NewIssuer(repos.Users(), tokens.PasswordResetFlavor()),
		resolver:     resolver,
		mailer:       mailer,
		log:          log.With("component", "auth"),
		opts:         opts,
	}
}

// Register creates an account. Admin accounts are only accepted with
// AllowAdminRegistration; they are verified at creation and skip the token.
// Other users get a verification token; unless auto-verify is on they start
// unverified and are mailed the link. Mail failures are logged, not returned.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if in.Role == "" {
		in.Role = models.RolePilgrim
	}
	if !in.Role.Valid() || (in.Role == models.RoleAdmin && !s.opts.AllowAdminRegistration) {
		return nil, common.NewValidationError("Invalid role")
	}

	repo := s.repos.Users()

	if err := s.ensureFree(ctx, repo.GetByUsername, in.Username, "Username already exists"); err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, repo.GetByEmail, in.Email, "Email already registered"); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := repo.Create(ctx, &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		FullName:     in.FullName,
		Phone:        in.Phone,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			// lost a race with a concurrent registration
			return nil, &common.ValidationError{Kind: common.ErrorAlreadyExists, Message: "Username or email already exists"}
		}
		return nil, err
	}

	if u.Role == models.RoleAdmin {
		s.log.Info(ctx, "admin registered", "user_id", u.ID)
		return u, nil
	}

	if s.opts.AutoVerify {
		if _, err := repo.Update(ctx, u.ID, models.UserPatch{Verified: models.Ptr(true)}); err != nil {
			return nil, err
		}
	}

	token, err := s.verification.Issue(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if !s.opts.AutoVerify {
		if err := s.mailer.SendVerification(ctx, u.Email, token); err != nil {
			s.log.Error(ctx, "verification mail failed", "user_id", u.ID, "error", err)
		}
	}

	s.log.Info(ctx, "user registered", "user_id", u.ID, "role", u.Role)
	return repo.Get(ctx, u.ID)
}

func (s *AuthService) ensureFree(ctx context.Context, get func(context.Context, string) (*models.User, error), value, msg string) error {
	_, err := get(ctx, value)
	switch {
	case err == nil:
		return &common.ValidationError{Kind: common.ErrorAlreadyExists, Message: msg}
	case errors.Is(err, common.ErrorNotFound):
		return nil
	default:
		return err
	}
}

// Login checks a regular user's password. Unknown user, wrong password and
// unverified non-admin all yield common.ErrorUnauthorized.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, error) {
	u, err := s.repos.Users().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = s.hasher.Verify(password, s.dummyHash)
			s.log.Warn(ctx, "login rejected", "reason", "unknown user")
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}

	ok, err := s.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		s.log.Error(ctx, "stored password hash is malformed", "user_id", u.ID, "error", err)
		return nil, fmt.Errorf("user %d: %w", u.ID, err)
	}
	if !ok {
		s.log.Warn(ctx, "login rejected", "reason", "bad password", "user_id", u.ID)
		return nil, common.ErrorUnauthorized
	}

	if !u.Verified && u.Role != models.RoleAdmin {
		s.log.Warn(ctx, "login rejected", "reason", "unverified", "user_id", u.ID)
		return nil, common.ErrorUnauthorized
	}
	return u, nil
}

// AdminLogin checks the configured administrator credential and returns the
// virtual administrator. The user repository is not touched.
func (s *AuthService) AdminLogin(ctx context.Context, username, password string) (*models.User, error) {
	cred := s.opts.Admin
	if cred.PasswordHash == "" {
		s.log.Warn(ctx, "admin login rejected", "reason", "disabled")
		return nil, common.ErrorUnauthorized
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(cred.Username)) == 1

	// verify even on a wrong username so both paths cost the same
	passOK, err := s.hasher.Verify(password, cred.PasswordHash)
	if err != nil {
		s.log.Error(ctx, "configured admin password hash is malformed", "error", err)
		return nil, fmt.Errorf("admin credential: %w", err)
	}

	if !userOK || !passOK {
		s.log.Warn(ctx, "admin login rejected", "reason", "bad credentials")
		return nil, common.ErrorUnauthorized
	}
	return s.resolver.AdminUser(), nil
}

// VerifyEmail consumes a verification token and marks its owner verified in
// the same write.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (VerificationOutcome, error) {
	u, err := s.verification.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			s.log.Warn(ctx, "verification rejected", "reason", "invalid or expired token")
			return VerificationFailed, nil
		}
		return VerificationFailed, err
	}

	if u.Verified {
		if _, err := s.verification.Consume(ctx, u.ID, models.UserPatch{}); err != nil {
			return VerificationFailed, err
		}
		return VerificationAlreadyVerified, nil
	}

	if _, err := s.verification.Consume(ctx, u.ID, models.UserPatch{Verified: models.Ptr(true)}); err != nil {
		return VerificationFailed, err
	}
	s.log.Info(ctx, "email verified", "user_id", u.ID)
	return VerificationSuccess, nil
}

// ResendVerification mails a fresh verification link to an unverified
// account. Unknown and already verified addresses are silently ignored.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	u, err := s.repos.Users().GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}
	if u.Verified {
		return nil
	}

	token, err := s.verification.Issue(ctx, u.ID)
	if err != nil {
		return err
	}
	if err := s.mailer.SendVerification(ctx, u.Email, token); err != nil {
		s.log.Error(ctx, "verification mail failed", "user_id", u.ID, "error", err)
	}
	return nil
}

// ForgotPassword issues and mails a reset token when email belongs to an
// account. The caller answers identically either way.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.repos.Users().GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Debug(ctx, "password reset for unknown address")
			return nil
		}
		return err
	}

	token, err := s.reset.Issue(ctx, u.ID)
	if err != nil {
		return err
	}
	if err := s.mailer.SendPasswordReset(ctx, u.Email, token); err != nil {
		s.log.Error(ctx, "password reset mail failed", "user_id", u.ID, "error", err)
	}
	return nil
}

// ResetPassword replaces the password of the reset token's owner. Unknown
// and expired tokens yield common.ErrInvalidToken.
//
// By default the token is cleared and the new hash written as two separate
// writes; a failure in between leaves the token spent and the old password
// in place. AtomicPasswordReset closes that window on backends with
// transactions.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	u, err := s.reset.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			s.log.Warn(ctx, "password reset rejected", "reason", "invalid or expired token")
		}
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if s.opts.AtomicPasswordReset {
		err = s.repos.WithinTx(ctx, func(ctx context.Context, repo users.Repository) error {
			return s.resetWrites(ctx, s.reset.WithRepository(repo), repo, token, hash)
		})
	} else {
		err = s.resetWrites(ctx, s.reset, s.repos.Users(), token, hash)
	}
	if err != nil {
		return err
	}

	s.log.Info(ctx, "password reset", "user_id", u.ID)
	return nil
}

func (s *AuthService) resetWrites(ctx context.Context, issuer *tokens.Issuer, repo users.Repository, token, hash string) error {
	// re-check: the token may have been spent since the first validation
	u, err := issuer.Validate(ctx, token)
	if err != nil {
		return err
	}
	if _, err := issuer.Consume(ctx, u.ID, models.UserPatch{}); err != nil {
		return err
	}
	_, err = repo.Update(ctx, u.ID, models.UserPatch{PasswordHash: &hash})
	return err
}
