// Package tokens implements the expiring per-user tokens: email
// verification, password reset and two-factor codes. All three live as
// token/expiry column pairs on the user record, so issuing a new token of a
// kind overwrites whatever was there.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"github.com/dmitrijs2005/pilgrim/internal/server/models"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/users"
)

type Kind int

const (
	Verification Kind = iota
	PasswordReset
	TwoFactor
)

func (k Kind) String() string {
	switch k {
	case Verification:
		return "verification"
	case PasswordReset:
		return "password_reset"
	case TwoFactor:
		return "two_factor"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Flavor describes how tokens of one kind look and how long they live.
type Flavor struct {
	Kind     Kind
	TTL      time.Duration
	Generate func() (string, error)
	// SingleUse makes the service layer consume the token after a
	// successful validation.
	SingleUse bool
}

func VerificationFlavor() Flavor {
	return Flavor{Kind: Verification, TTL: 24 * time.Hour, Generate: hexToken, SingleUse: true}
}

func PasswordResetFlavor() Flavor {
	return Flavor{Kind: PasswordReset, TTL: time.Hour, Generate: hexToken, SingleUse: true}
}

// TwoFactorFlavor codes stay valid for repeated checks until they expire or
// are reset.
func TwoFactorFlavor() Flavor {
	return Flavor{Kind: TwoFactor, TTL: 5 * time.Minute, Generate: sixDigits, SingleUse: false}
}

func hexToken() (string, error) {
	return common.MakeRandHexString(32)
}

func sixDigits() (string, error) {
	return common.MakeRandDigits(6)
}

// Issuer issues and checks tokens of a single flavor against a user
// repository.
type Issuer struct {
	repo   users.Repository
	flavor Flavor

	// Now is the clock. Tests replace it.
	Now func() time.Time
}

func NewIssuer(repo users.Repository, flavor Flavor) *Issuer {
	return &Issuer{repo: repo, flavor: flavor, Now: time.Now}
}

func (i *Issuer) Flavor() Flavor {
	return i.flavor
}

// WithRepository returns a copy of the issuer bound to repo, typically a
// transaction-scoped repository.
func (i *Issuer) WithRepository(repo users.Repository) *Issuer {
	c := *i
	c.repo = repo
	return &c
}

// Issue stores a fresh token for userID, replacing any previous one of the
// same kind, and returns it.
func (i *Issuer) Issue(ctx context.Context, userID int64) (string, error) {
	tok, err := i.flavor.Generate()
	if err != nil {
		return "", fmt.Errorf("token generation: %w", err)
	}

	state := models.TokenState{Token: tok, ExpiresAt: i.Now().Add(i.flavor.TTL)}
	if _, err := i.repo.Update(ctx, userID, i.patch(state)); err != nil {
		return "", err
	}
	return tok, nil
}

// Validate returns the user holding token. Unknown and expired tokens both
// yield common.ErrInvalidToken.
func (i *Issuer) Validate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrInvalidToken
	}

	u, err := i.lookup(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}

	if !i.state(u).LiveAt(i.Now()) {
		return nil, common.ErrInvalidToken
	}
	return u, nil
}

// ValidateFor checks token against userID's own stored token. Two-factor
// codes are short, so they are checked per user rather than looked up.
func (i *Issuer) ValidateFor(ctx context.Context, userID int64, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrInvalidToken
	}

	u, err := i.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}

	st := i.state(u)
	if st.Token != token || !st.LiveAt(i.Now()) {
		return nil, common.ErrInvalidToken
	}
	return u, nil
}

// Consume clears the token pair of userID. Fields set in extra are written
// in the same update.
func (i *Issuer) Consume(ctx context.Context, userID int64, extra models.UserPatch) (*models.User, error) {
	return i.repo.Update(ctx, userID, extra.Merge(i.patch(models.TokenState{})))
}

// Reset clears the token pair of userID without validating anything.
func (i *Issuer) Reset(ctx context.Context, userID int64) error {
	_, err := i.repo.Update(ctx, userID, i.patch(models.TokenState{}))
	return err
}

func (i *Issuer) lookup(ctx context.Context, token string) (*models.User, error) {
	switch i.flavor.Kind {
	case Verification:
		return i.repo.GetByVerificationToken(ctx, token)
	case PasswordReset:
		return i.repo.GetByResetToken(ctx, token)
	case TwoFactor:
		return i.repo.GetByTwoFactorCode(ctx, token)
	}
	return nil, fmt.Errorf("unknown token kind %s", i.flavor.Kind)
}

func (i *Issuer) state(u *models.User) models.TokenState {
	switch i.flavor.Kind {
	case Verification:
		return u.Verification
	case PasswordReset:
		return u.Reset
	default:
		return u.TwoFactor
	}
}

func (i *Issuer) patch(st models.TokenState) models.UserPatch {
	switch i.flavor.Kind {
	case Verification:
		return models.UserPatch{Verification: &st}
	case PasswordReset:
		return models.UserPatch{Reset: &st}
	default:
		return models.UserPatch{TwoFactor: &st}
	}
}
