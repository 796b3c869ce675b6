package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"github.com/dmitrijs2005/pilgrim/internal/server/auth"
	"github.com/dmitrijs2005/pilgrim/internal/server/models"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// untouchableRepo fails the test on any call.
type untouchableRepo struct {
	users.Repository
	t *testing.T
}

func (r untouchableRepo) Get(ctx context.Context, id int64) (*models.User, error) {
	r.t.Fatalf("user repository must not be consulted, got Get(%d)", id)
	return nil, nil
}

func TestSessionResolver_RoundTrip(t *testing.T) {
	f := newFixture(t, AuthOptions{AutoVerify: true})
	ctx := context.Background()
	u := register(t, f, "olga")

	cookie, err := f.resolver.Serialize(ctx, u)
	require.NoError(t, err)

	got, err := f.resolver.Deserialize(ctx, cookie)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "olga", got.Username)
}

func TestSessionResolver_CookieCarriesOnlySessionID(t *testing.T) {
	f := newFixture(t, AuthOptions{AutoVerify: true})
	ctx := context.Background()
	u := register(t, f, "pia")

	cookie, err := f.resolver.Serialize(ctx, u)
	require.NoError(t, err)

	sid, err := auth.GetSessionIDFromToken(cookie, []byte("test-secret"))
	require.NoError(t, err)
	s, err := f.repos.Sessions().Find(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, u.ID, s.UserID)
}

func TestSessionResolver_Rejections(t *testing.T) {
	f := newFixture(t, AuthOptions{AutoVerify: true})
	ctx := context.Background()
	u := register(t, f, "quinn")

	cookie, err := f.resolver.Serialize(ctx, u)
	require.NoError(t, err)

	t.Run("empty cookie", func(t *testing.T) {
		_, err := f.resolver.Deserialize(ctx, "")
		assert.ErrorIs(t, err, common.ErrorUnauthorized)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := f.resolver.Deserialize(ctx, "not-a-jwt")
		assert.ErrorIs(t, err, common.ErrorUnauthorized)
	})
	t.Run("foreign signature", func(t *testing.T) {
		other, err := auth.GenerateToken("whatever", []byte("other-secret"), time.Hour)
		require.NoError(t, err)
		_, err = f.resolver.Deserialize(ctx, other)
		assert.ErrorIs(t, err, common.ErrorUnauthorized)
	})
	t.Run("signed but unknown session", func(t *testing.T) {
		forged, err := auth.GenerateToken("no-such-session", []byte("test-secret"), time.Hour)
		require.NoError(t, err)
		_, err = f.resolver.Deserialize(ctx, forged)
		assert.ErrorIs(t, err, common.ErrorUnauthorized)
	})
	t.Run("after invalidate", func(t *testing.T) {
		require.NoError(t, f.resolver.Invalidate(ctx, cookie))
		_, err := f.resolver.Deserialize(ctx, cookie)
		assert.ErrorIs(t, err, common.ErrorUnauthorized)
		assert.NoError(t, f.resolver.Invalidate(ctx, cookie), "idempotent")
		assert.NoError(t, f.resolver.Invalidate(ctx, "garbage"))
	})
}

func TestSessionResolver_ExpiredSession(t *testing.T) {
	f := newFixture(t, AuthOptions{AutoVerify: true})
	ctx := context.Background()
	u := register(t, f, "rita")

	f.resolver.Now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	cookie, err := f.resolver.Serialize(ctx, u)
	require.NoError(t, err)

	_, err = f.resolver.Deserialize(ctx, cookie)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

// A user that is unverified at request time has no session, even with a
// valid cookie.
func TestSessionResolver_RechecksVerification(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()
	u := register(t, f, "sam")

	cookie, err := f.resolver.Serialize(ctx, u)
	require.NoError(t, err)

	_, err = f.resolver.Deserialize(ctx, cookie)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.auth.VerifyEmail(ctx, f.mailer.last(t, "verification").token)
	require.NoError(t, err)

	got, err := f.resolver.Deserialize(ctx, cookie)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestSessionResolver_VirtualAdminSkipsStorage(t *testing.T) {
	mem := sessions.NewMemoryRepository()
	r := NewSessionResolver(untouchableRepo{t: t}, mem, []byte("k"), time.Hour, "boss")
	ctx := context.Background()

	cookie, err := r.Serialize(ctx, &models.User{ID: models.VirtualAdminID})
	require.NoError(t, err)

	got, err := r.Deserialize(ctx, cookie)
	require.NoError(t, err)
	assert.Equal(t, models.VirtualAdminID, got.ID)
	assert.Equal(t, models.RoleAdmin, got.Role)
	assert.True(t, got.Verified)
	assert.Equal(t, "boss", got.Username)
}

func TestSessionResolver_AdminProfileOverride(t *testing.T) {
	r := NewSessionResolver(nil, sessions.NewMemoryRepository(), []byte("k"), time.Hour, "admin")

	updated := r.UpdateAdminProfile(models.UserPatch{
		FullName: models.Ptr("Abbot Hilarion"),
		Role:     models.Ptr(models.RolePilgrim),
		Verified: models.Ptr(false),
	})
	assert.Equal(t, "Abbot Hilarion", updated.FullName)
	assert.Equal(t, models.RoleAdmin, updated.Role)
	assert.True(t, updated.Verified)

	r.UpdateAdminProfile(models.UserPatch{Bio: models.Ptr("keeper of keys")})
	got := r.AdminUser()
	assert.Equal(t, "Abbot Hilarion", got.FullName)
	assert.Equal(t, "keeper of keys", got.Bio)

	// returned values are copies
	got.FullName = "mutated"
	assert.Equal(t, "Abbot Hilarion", r.AdminUser().FullName)

	// a new resolver (a restart) starts from the template again
	fresh := NewSessionResolver(nil, sessions.NewMemoryRepository(), []byte("k"), time.Hour, "admin")
	assert.Equal(t, "Administrator", fresh.AdminUser().FullName)
}

func TestSessionResolver_AdminOverrideConcurrent(t *testing.T) {
	r := NewSessionResolver(nil, sessions.NewMemoryRepository(), []byte("k"), time.Hour, "admin")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				r.UpdateAdminProfile(models.UserPatch{Phone: models.Ptr("+1")})
			} else {
				_ = r.AdminUser()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, "+1", r.AdminUser().Phone)
}
