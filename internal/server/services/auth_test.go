package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"github.com/dmitrijs2005/pilgrim/internal/cryptox"
	"github.com/dmitrijs2005/pilgrim/internal/server/models"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func register(t *testing.T, f *fixture, username string) *models.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), RegisterInput{
		Username: username,
		Password: "correct horse",
		Email:    username + "@example.com",
		Role:     models.RolePilgrim,
	})
	require.NoError(t, err)
	return u
}

// Scenario A: a fresh non-admin account is unverified and cannot log in.
func TestScenarioA_UnverifiedCannotLogin(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()

	u := register(t, f, "anna")
	assert.False(t, u.Verified)
	assert.False(t, u.Verification.IsZero(), "verification token issued")
	assert.Equal(t, "anna@example.com", f.mailer.last(t, "verification").to)

	_, err := f.auth.Login(ctx, "anna", "correct horse")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

// Scenario B: verifying before expiry flips verified, clears the token and
// unlocks login.
func TestScenarioB_VerifyThenLogin(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()

	u := register(t, f, "boris")
	token := f.mailer.last(t, "verification").token

	outcome, err := f.auth.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, VerificationSuccess, outcome)

	stored, err := f.repos.Users().Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	assert.True(t, stored.Verification.IsZero())

	logged, err := f.auth.Login(ctx, "boris", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)

	// single use
	outcome, err = f.auth.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, VerificationFailed, outcome)
}

// Scenario C: a reset token used after its hour is rejected and the
// password stays as it was.
func TestScenarioC_ExpiredResetLeavesPassword(t *testing.T) {
	f := newFixture(t, AuthOptions{AutoVerify: true})
	ctx := context.Background()

	u := register(t, f, "clara")
	before, err := f.repos.Users().Get(ctx, u.ID)
	require.NoError(t, err)

	issued := time.Now()
	f.auth.reset.Now = func() time.Time { return issued }
	require.NoError(t, f.auth.ForgotPassword(ctx, "clara@example.com"))
	token := f.mailer.last(t, "reset").token

	f.auth.reset.Now = func() time.Time { return issued.Add(time.Hour + time.Second) }
	err = f.auth.ResetPassword(ctx, token, "new password 123")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	after, err := f.repos.Users().Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)

	_, err = f.auth.Login(ctx, "clara", "correct horse")
	assert.NoError(t, err)
}

// Scenario D: an admin-role user is verified at creation and logs in
// without any verification step.
func TestScenarioD_AdminRoleUserIsVerified(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()

	hash, err := f.hasher.Hash("admin pass")
	require.NoError(t, err)
	u, err := f.repos.Users().Create(ctx, &models.User{
		Username: "root", Email: "root@example.com", PasswordHash: hash, Role: models.RoleAdmin,
	})
	require.NoError(t, err)
	assert.True(t, u.Verified)
	assert.True(t, u.Verification.IsZero())

	logged, err := f.auth.Login(ctx, "root", "admin pass")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, logged.Role)
	assert.Zero(t, f.mailer.count())
}

// Scenario D through registration: with admin registration allowed the
// account is verified at creation and no token or mail goes out.
func TestScenarioD_RegisterAdmin(t *testing.T) {
	f := newFixture(t, AuthOptions{AllowAdminRegistration: true})
	ctx := context.Background()

	u, err := f.auth.Register(ctx, RegisterInput{
		Username: "abbot", Password: "admin pass", Email: "abbot@example.com", Role: models.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.True(t, u.Verified)
	assert.True(t, u.Verification.IsZero())
	assert.Zero(t, f.mailer.count())

	logged, err := f.auth.Login(ctx, "abbot", "admin pass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)
}

func TestRegister_Rejections(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()
	register(t, f, "dora")

	tests := []struct {
		name string
		in   RegisterInput
		kind error
		msg  string
	}{
		{"duplicate username", RegisterInput{Username: "dora", Password: "pw123456", Email: "other@example.com"}, common.ErrorAlreadyExists, "Username already exists"},
		{"duplicate email", RegisterInput{Username: "dora2", Password: "pw123456", Email: "dora@example.com"}, common.ErrorAlreadyExists, "Email already registered"},
		{"admin role", RegisterInput{Username: "evil", Password: "pw123456", Email: "evil@example.com", Role: models.RoleAdmin}, common.ErrorValidation, "Invalid role"},
		{"unknown role", RegisterInput{Username: "x", Password: "pw123456", Email: "x@example.com", Role: "pope"}, common.ErrorValidation, "Invalid role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Register(ctx, tt.in)
			require.ErrorIs(t, err, tt.kind)
			var ve *common.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.msg, ve.Message)
		})
	}
}

func TestRegister_DefaultRoleAndProfile(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	u, err := f.auth.Register(context.Background(), RegisterInput{
		Username: "eli", Password: "pw123456", Email: "eli@example.com", FullName: "Eli Stone", Phone: "+100",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RolePilgrim, u.Role)
	assert.Equal(t, "Eli Stone", u.FullName)
	assert.Equal(t, "+100", u.Phone)
	assert.NotEqual(t, "pw123456", u.PasswordHash)
}

func TestRegister_AutoVerify(t *testing.T) {
	f := newFixture(t, AuthOptions{AutoVerify: true})
	u := register(t, f, "fay")
	assert.True(t, u.Verified)
	assert.False(t, u.Verification.IsZero(), "token is issued even when auto-verified")
	assert.Zero(t, f.mailer.count())

	_, err := f.auth.Login(context.Background(), "fay", "correct horse")
	assert.NoError(t, err)

	outcome, err := f.auth.VerifyEmail(context.Background(), u.Verification.Token)
	require.NoError(t, err)
	assert.Equal(t, VerificationAlreadyVerified, outcome)
}

func TestRegister_MailFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	f.mailer.err = errors.New("smtp down")
	u := register(t, f, "gus")
	assert.False(t, u.Verified)
}

func TestLogin_GenericFailures(t *testing.T) {
	f := newFixture(t, AuthOptions{AutoVerify: true})
	ctx := context.Background()
	register(t, f, "hana")

	_, err := f.auth.Login(ctx, "hana", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = f.auth.Login(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

type countingHasher struct {
	passwordHasher
	verifies int
}

func (h *countingHasher) Verify(plaintext, encoded string) (bool, error) {
	h.verifies++
	return h.passwordHasher.Verify(plaintext, encoded)
}

func TestLogin_UnknownUserStillHashes(t *testing.T) {
	f := newFixture(t, AuthOptions{AutoVerify: true})
	ctx := context.Background()
	register(t, f, "hugo")

	ch := &countingHasher{passwordHasher: f.auth.hasher}
	f.auth.hasher = ch

	_, err := f.auth.Login(ctx, "nobody", "whatever")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Equal(t, 1, ch.verifies)

	_, err = f.auth.Login(ctx, "hugo", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Equal(t, 2, ch.verifies)

	ok, err := f.hasher.Verify("whatever", f.auth.dummyHash)
	require.NoError(t, err, "dummy hash is well formed")
	assert.False(t, ok)
}

func TestLogin_MalformedStoredHash(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()
	_, err := f.repos.Users().Create(ctx, &models.User{
		Username: "ivan", Email: "ivan@example.com", PasswordHash: "not-a-hash", Role: models.RoleAdmin,
	})
	require.NoError(t, err)

	_, err = f.auth.Login(ctx, "ivan", "anything")
	assert.ErrorIs(t, err, cryptox.ErrMalformedHash)
	assert.NotErrorIs(t, err, common.ErrorUnauthorized)
}

func TestAdminLogin(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	f.auth.opts.Admin = f.adminCredential(t, "admin", "s3cret!")
	ctx := context.Background()

	u, err := f.auth.AdminLogin(ctx, "admin", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, models.VirtualAdminID, u.ID)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.True(t, u.Verified)

	_, err = f.auth.AdminLogin(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = f.auth.AdminLogin(ctx, "Admin", "s3cret!")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.repos.Users().Get(ctx, models.VirtualAdminID)
	assert.ErrorIs(t, err, common.ErrorNotFound, "virtual admin is never stored")
}

func TestAdminLogin_Disabled(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	_, err := f.auth.AdminLogin(context.Background(), "admin", "")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestAdminLogin_MalformedConfiguredHash(t *testing.T) {
	f := newFixture(t, AuthOptions{Admin: AdminCredential{Username: "admin", PasswordHash: "plaintext"}})
	_, err := f.auth.AdminLogin(context.Background(), "admin", "plaintext")
	assert.ErrorIs(t, err, cryptox.ErrMalformedHash)
}

func TestVerifyEmail_AlreadyVerified(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()
	u := register(t, f, "jack")

	// verified through some other path while a token is still outstanding
	_, err := f.repos.Users().Update(ctx, u.ID, models.UserPatch{Verified: models.Ptr(true)})
	require.NoError(t, err)

	outcome, err := f.auth.VerifyEmail(ctx, f.mailer.last(t, "verification").token)
	require.NoError(t, err)
	assert.Equal(t, VerificationAlreadyVerified, outcome)

	stored, err := f.repos.Users().Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verification.IsZero())
}

func TestVerifyEmail_Expired(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()
	register(t, f, "kate")
	token := f.mailer.last(t, "verification").token

	f.auth.verification.Now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	outcome, err := f.auth.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, VerificationFailed, outcome)
}

func TestResendVerification(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()
	register(t, f, "leo")
	first := f.mailer.last(t, "verification").token

	require.NoError(t, f.auth.ResendVerification(ctx, "leo@example.com"))
	second := f.mailer.last(t, "verification").token
	require.NotEqual(t, first, second)

	outcome, err := f.auth.VerifyEmail(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, VerificationFailed, outcome, "re-issue invalidates the old link")

	outcome, err = f.auth.VerifyEmail(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, VerificationSuccess, outcome)

	n := f.mailer.count()
	require.NoError(t, f.auth.ResendVerification(ctx, "leo@example.com"))
	require.NoError(t, f.auth.ResendVerification(ctx, "ghost@example.com"))
	assert.Equal(t, n, f.mailer.count(), "verified and unknown addresses get nothing")
}

func TestForgotPassword_UnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	require.NoError(t, f.auth.ForgotPassword(context.Background(), "nobody@example.com"))
	assert.Zero(t, f.mailer.count())
}

func TestResetPassword(t *testing.T) {
	for _, atomic := range []bool{false, true} {
		name := "two writes"
		if atomic {
			name = "transaction"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, AuthOptions{AutoVerify: true, AtomicPasswordReset: atomic})
			ctx := context.Background()
			u := register(t, f, "mia")

			require.NoError(t, f.auth.ForgotPassword(ctx, " mia@example.com "))
			token := f.mailer.last(t, "reset").token

			require.NoError(t, f.auth.ResetPassword(ctx, token, "brand new pass"))

			_, err := f.auth.Login(ctx, "mia", "brand new pass")
			require.NoError(t, err)
			_, err = f.auth.Login(ctx, "mia", "correct horse")
			assert.ErrorIs(t, err, common.ErrorUnauthorized)

			stored, err := f.repos.Users().Get(ctx, u.ID)
			require.NoError(t, err)
			assert.True(t, stored.Reset.IsZero())

			// single use
			err = f.auth.ResetPassword(ctx, token, "third pass")
			assert.ErrorIs(t, err, common.ErrInvalidToken)
		})
	}
}

type failingUpdateRepo struct {
	users.Repository
	failOnPassword bool
}

func (r *failingUpdateRepo) Update(ctx context.Context, id int64, p models.UserPatch) (*models.User, error) {
	if r.failOnPassword && p.PasswordHash != nil {
		return nil, errors.New("db error: connection reset")
	}
	return r.Repository.Update(ctx, id, p)
}

// Without a transaction a failure between the two writes spends the token
// and keeps the old password.
func TestResetPassword_PartialFailureWindow(t *testing.T) {
	f := newFixture(t, AuthOptions{AutoVerify: true})
	ctx := context.Background()
	u := register(t, f, "nia")
	before, err := f.repos.Users().Get(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, f.auth.ForgotPassword(ctx, "nia@example.com"))
	token := f.mailer.last(t, "reset").token

	err = f.auth.resetWrites(ctx, f.auth.reset, &failingUpdateRepo{Repository: f.repos.Users(), failOnPassword: true}, token, "new-hash")
	require.Error(t, err)

	after, err := f.repos.Users().Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, after.Reset.IsZero(), "token already spent")
	assert.Equal(t, before.PasswordHash, after.PasswordHash)
}
