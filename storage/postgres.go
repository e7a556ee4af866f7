package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps accounts and matches in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore applies migrations over database/sql and then opens a
// pgx pool for regular traffic.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	migrationDB, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB for migrations: %w", err)
	}
	if err := migrate(migrationDB, "postgres", "migrations/postgres"); err != nil {
		migrationDB.Close()
		return nil, err
	}
	if err := migrationDB.Close(); err != nil {
		return nil, fmt.Errorf("failed to close migration db connection: %w", err)
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := p.pool.Exec(ctx,
		"INSERT INTO users(username, password_hash, email) VALUES($1, $2, $3)",
		user.Username, user.PasswordHash, nullIfEmpty(user.Email))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "users_email_key" {
				return ErrDuplicateEmail
			}
			return ErrDuplicateUsername
		}
		return wrapPgErr(err)
	}
	return nil
}

func (p *PostgresStore) GetUser(ctx context.Context, username string) (User, error) {
	user := User{Username: username}
	var email *string

	row := p.pool.QueryRow(ctx,
		"SELECT password_hash, email, created_at FROM users WHERE username = $1", username)
	if err := row.Scan(&user.PasswordHash, &email, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, wrapPgErr(err)
	}
	if email != nil {
		user.Email = *email
	}
	return user, nil
}

func (p *PostgresStore) RecordMatch(ctx context.Context, match MatchRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return wrapPgErr(err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"INSERT INTO games(id, room_id, game_time, player_count, finished_at) VALUES($1, $2, $3, $4, $5)",
		match.ID, match.RoomID, match.DurationSeconds, len(match.Participants), match.FinishedAt)
	if err != nil {
		return wrapPgErr(err)
	}

	batch := &pgx.Batch{}
	for _, username := range match.Participants {
		batch.Queue("INSERT INTO game_players(game_id, username, winner) VALUES($1, $2, $3)",
			match.ID, username, username == match.Winner)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return wrapPgErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapPgErr(err)
	}
	return nil
}

func (p *PostgresStore) PlayerStats(ctx context.Context, username string) (PlayerStats, error) {
	stats := PlayerStats{Username: username}

	row := p.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE gp.winner),
		       COALESCE(AVG(g.game_time), 0)::float8
		FROM game_players gp
		JOIN games g ON g.id = gp.game_id
		WHERE gp.username = $1`, username)
	if err := row.Scan(&stats.Games, &stats.Wins, &stats.MeanGameSeconds); err != nil {
		return PlayerStats{}, wrapPgErr(err)
	}
	return stats, nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func wrapPgErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnexpected, err)
}

var _ Store = (*PostgresStore)(nil)
