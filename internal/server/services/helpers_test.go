package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/cryptox"
	"github.com/dmitrijs2005/pilgrim/internal/logging"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

var testHasherParams = cryptox.HasherParams{Time: 1, MemoryKB: 1024, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type sentMail struct {
	kind  string
	to    string
	token string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) record(kind, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: kind, to: to, token: token})
	return m.err
}

func (m *recordingMailer) SendVerification(_ context.Context, to, token string) error {
	return m.record("verification", to, token)
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, to, token string) error {
	return m.record("reset", to, token)
}

func (m *recordingMailer) SendTwoFactorCode(_ context.Context, to, code string) error {
	return m.record("2fa", to, code)
}

func (m *recordingMailer) last(t *testing.T, kind string) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s mail sent", kind)
	return sentMail{}
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fixture struct {
	repos    *repomanager.InMemoryRepositoryManager
	hasher   *cryptox.Hasher
	resolver *SessionResolver
	mailer   *recordingMailer
	auth     *AuthService
}

func newFixture(t *testing.T, opts AuthOptions) *fixture {
	t.Helper()
	h, err := cryptox.NewHasher(testHasherParams)
	require.NoError(t, err)

	repos := repomanager.NewInMemoryRepositoryManager()
	resolver := NewSessionResolver(repos.Users(), repos.Sessions(), []byte("test-secret"), time.Hour, "admin")
	mailer := &recordingMailer{}

	return &fixture{
		repos:    repos,
		hasher:   h,
		resolver: resolver,
		mailer:   mailer,
		auth:     NewAuthService(repos, h, resolver, mailer, logging.Nop{}, opts),
	}
}

// adminCredential hashes password with the fixture's hasher.
func (f *fixture) adminCredential(t *testing.T, username, password string) AdminCredential {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	return AdminCredential{Username: username, PasswordHash: hash}
}
