package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps accounts and matches in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if missing) the database at path and applies
// migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	memory := path == ":memory:"
	if !memory {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnexpected, err)
	}

	if err := migrate(db, "sqlite3", "migrations/sqlite"); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users(username, password_hash, email) VALUES(?, ?, ?)",
		user.Username, user.PasswordHash, nullIfEmpty(user.Email))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			if strings.Contains(sqliteErr.Error(), "users.email") {
				return ErrDuplicateEmail
			}
			return ErrDuplicateUsername
		}
		return wrapSQLiteErr(err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, username string) (User, error) {
	user := User{Username: username}
	var email sql.NullString

	row := s.db.QueryRowContext(ctx,
		"SELECT password_hash, email, created_at FROM users WHERE username = ?", username)
	if err := row.Scan(&user.PasswordHash, &email, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, wrapSQLiteErr(err)
	}
	user.Email = email.String
	return user, nil
}

func (s *SQLiteStore) RecordMatch(ctx context.Context, match MatchRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapSQLiteErr(err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO games(id, room_id, game_time, player_count, finished_at) VALUES(?, ?, ?, ?, ?)",
		match.ID, match.RoomID, match.DurationSeconds, len(match.Participants), match.FinishedAt.UTC())
	if err != nil {
		return wrapSQLiteErr(err)
	}

	for _, username := range match.Participants {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO game_players(game_id, username, winner) VALUES(?, ?, ?)",
			match.ID, username, username == match.Winner)
		if err != nil {
			return wrapSQLiteErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapSQLiteErr(err)
	}
	return nil
}

func (s *SQLiteStore) PlayerStats(ctx context.Context, username string) (PlayerStats, error) {
	stats := PlayerStats{Username: username}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN gp.winner THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(g.game_time), 0.0)
		FROM game_players gp
		JOIN games g ON g.id = gp.game_id
		WHERE gp.username = ?`, username)
	if err := row.Scan(&stats.Games, &stats.Wins, &stats.MeanGameSeconds); err != nil {
		return PlayerStats{}, wrapSQLiteErr(err)
	}
	return stats, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func wrapSQLiteErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnexpected, err)
}

var _ Store = (*SQLiteStore)(nil)
