package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrUnexpected        = errors.New("unexpected database error")
)

// User is a registered account.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Email        string    `json:"email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MatchRecord is one finished race.
type MatchRecord struct {
	ID              string
	RoomID          string
	Participants    []string
	Winner          string
	DurationSeconds int
	FinishedAt      time.Time
}

// PlayerStats summarises a player's finished races.
type PlayerStats struct {
	Username        string  `json:"username"`
	Games           int     `json:"games"`
	Wins            int     `json:"wins"`
	MeanGameSeconds float64 `json:"mean_game_seconds"`
}

// Store persists accounts and match history.
type Store interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, username string) (User, error)
	RecordMatch(ctx context.Context, match MatchRecord) error
	PlayerStats(ctx context.Context, username string) (PlayerStats, error)
	Close() error
}

// Open picks the backend from dsn: postgres:// and postgresql:// URLs go to
// Postgres, anything else is a SQLite file path.
func Open(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresStore(ctx, dsn)
	}
	return NewSQLiteStore(ctx, dsn)
}

// nullIfEmpty maps "" to SQL NULL so optional unique columns don't collide.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
