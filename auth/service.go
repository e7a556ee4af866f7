package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wricardo/dicerace/storage"
	"golang.org/x/crypto/bcrypt"
)

const (
	// AccessTokenCookie carries the signed token.
	AccessTokenCookie = "access_token"
	// ExpirationCookie is readable by scripts so a page can tell when to log in again.
	ExpirationCookie = "token_expiration"

	MinUsernameLength = 4
	MaxUsernameLength = 32
	MinPasswordLength = 4
)

// UserStore is the account storage the service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user storage.User) error
	GetUser(ctx context.Context, username string) (storage.User, error)
}

// RegisterRequest is a sign-up form.
type RegisterRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Email           string `json:"email,omitempty"`
}

// Token is an issued access token.
type Token struct {
	Value     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service registers players, logs them in and resolves request identities.
type Service struct {
	users  UserStore
	tokens *Tokens
	cost   int
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost overrides the bcrypt work factor.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now when issuing tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an auth service over users, signing with tokens.
func NewService(users UserStore, tokens *Tokens, opts ...Option) *Service {
	s := &Service{
		users:  users,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens returns the token manager.
func (s *Service) Tokens() *Tokens { return s.tokens }

// Register validates the form and creates the account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) error {
	if err := ValidateRegistration(req); err != nil {
		return err
	}

	hash, err := HashPassword(req.Password, s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.users.CreateUser(ctx, storage.User{
		Username:     req.Username,
		PasswordHash: hash,
		Email:        strings.TrimSpace(req.Email),
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("identity", req.Username).Msg("user registered")
	return nil
}

// Login checks the password and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (Token, error) {
	if username == "" || password == "" {
		return Token{}, ErrInvalidCredentials
	}

	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return Token{}, ErrInvalidCredentials
		}
		return Token{}, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return Token{}, ErrInvalidCredentials
	}

	value, expires, err := s.tokens.Generate(user.Username, s.now())
	if err != nil {
		return Token{}, err
	}
	return Token{Value: value, ExpiresAt: expires}, nil
}

// Identify returns the username of the request's bearer, read from the
// access_token cookie or an Authorization: Bearer header.
func (s *Service) Identify(r *http.Request) (string, error) {
	raw := ""
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		raw = c.Value
	}
	if raw == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			raw = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
	}
	if raw == "" {
		return "", ErrNoToken
	}
	return s.tokens.Verify(raw)
}

// ValidateRegistration applies the sign-up rules. Usernames end up inside
// wire frames, so they are limited to letters, digits, '_', '-' and '.'.
func ValidateRegistration(req RegisterRequest) error {
	if req.Username == "" || req.Password == "" || req.ConfirmPassword == "" {
		return fmt.Errorf("%w: username, password and confirm password are required", ErrValidation)
	}
	if req.Password != req.ConfirmPassword {
		return fmt.Errorf("%w: passwords do not match", ErrValidation)
	}
	if n := len(req.Username); n < MinUsernameLength || n > MaxUsernameLength {
		return fmt.Errorf("%w: username must be %d to %d characters", ErrValidation, MinUsernameLength, MaxUsernameLength)
	}
	for _, c := range req.Username {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-', c == '.':
		default:
			return fmt.Errorf("%w: username contains %q", ErrValidation, c)
		}
	}
	if len(req.Password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		return fmt.Errorf("%w: invalid email", ErrValidation)
	}
	return nil
}
