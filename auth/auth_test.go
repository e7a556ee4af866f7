package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/dicerace/storage"
	"golang.org/x/crypto/bcrypt"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]storage.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]storage.User)}
}

func (m *memUsers) CreateUser(_ context.Context, u storage.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Username]; ok {
		return storage.ErrDuplicateUsername
	}
	m.users[u.Username] = u
	return nil
}

func (m *memUsers) GetUser(_ context.Context, username string) (storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return storage.User{}, storage.ErrUserNotFound
	}
	return u, nil
}

func newTestService(users UserStore) *Service {
	return NewService(users, NewTokens("test-secret", time.Hour), WithBcryptCost(bcrypt.MinCost))
}

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens("secret", 30*time.Minute)
	now := time.Now()

	tok, expires, err := tokens.Generate("alice", now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(30*time.Minute), expires, time.Second)

	username, err := tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestTokens_Rejections(t *testing.T) {
	tokens := NewTokens("secret", time.Minute)

	expired, _, err := tokens.Generate("alice", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = tokens.Verify(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	foreign, _, err := NewTokens("other", time.Minute).Generate("alice", time.Now())
	require.NoError(t, err)
	_, err = tokens.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, claims{Username: "alice"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
	assert.False(t, CheckPassword("garbage", "hunter22"))
}

func TestValidateRegistration(t *testing.T) {
	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr bool
	}{
		{"valid", RegisterRequest{Username: "alice", Password: "pass", ConfirmPassword: "pass"}, false},
		{"valid with email", RegisterRequest{Username: "alice", Password: "pass", ConfirmPassword: "pass", Email: "a@b.c"}, false},
		{"missing username", RegisterRequest{Password: "pass", ConfirmPassword: "pass"}, true},
		{"missing confirm", RegisterRequest{Username: "alice", Password: "pass"}, true},
		{"mismatch", RegisterRequest{Username: "alice", Password: "pass", ConfirmPassword: "pasS"}, true},
		{"short username", RegisterRequest{Username: "abc", Password: "pass", ConfirmPassword: "pass"}, true},
		{"long username", RegisterRequest{Username: strings.Repeat("a", 33), Password: "pass", ConfirmPassword: "pass"}, true},
		{"separator in username", RegisterRequest{Username: "al:ce", Password: "pass", ConfirmPassword: "pass"}, true},
		{"comma in username", RegisterRequest{Username: "al,ce", Password: "pass", ConfirmPassword: "pass"}, true},
		{"short password", RegisterRequest{Username: "alice", Password: "abc", ConfirmPassword: "abc"}, true},
		{"bad email", RegisterRequest{Username: "alice", Password: "pass", ConfirmPassword: "pass", Email: "nope"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegistration(tt.req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_RegisterAndLogin(t *testing.T) {
	users := newMemUsers()
	svc := newTestService(users)
	ctx := context.Background()

	req := RegisterRequest{Username: "alice", Password: "secret", ConfirmPassword: "secret", Email: " alice@example.com "}
	require.NoError(t, svc.Register(ctx, req))

	stored, err := users.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", stored.PasswordHash)
	assert.Equal(t, "alice@example.com", stored.Email)

	assert.ErrorIs(t, svc.Register(ctx, req), storage.ErrDuplicateUsername)

	tok, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Value)
	assert.True(t, tok.ExpiresAt.After(time.Now()))

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "ghost", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_Identify(t *testing.T) {
	svc := newTestService(newMemUsers())
	tok, _, err := svc.Tokens().Generate("alice", time.Now())
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/ws/r1", nil)
	r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: tok})
	id, err := svc.Identify(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	r = httptest.NewRequest(http.MethodGet, "/ws/r1", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	id, err = svc.Identify(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	r = httptest.NewRequest(http.MethodGet, "/ws/r1", nil)
	_, err = svc.Identify(r)
	assert.ErrorIs(t, err, ErrNoToken)

	r = httptest.NewRequest(http.MethodGet, "/ws/r1", nil)
	r.Header.Set("Authorization", "Bearer junk")
	_, err = svc.Identify(r)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_WithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(ctx, t.TempDir()+"/auth.db")
	require.NoError(t, err)
	defer store.Close()

	svc := newTestService(store)
	require.NoError(t, svc.Register(ctx, RegisterRequest{Username: "bob_1", Password: "pw12", ConfirmPassword: "pw12"}))

	_, err = svc.Login(ctx, "bob_1", "pw12")
	assert.NoError(t, err)
}
