// Package pgstore is a Postgres user store built on pgxpool.
package pgstore

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-authn"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbTimeout = time.Second * 3

	uniqueViolation = "23505"
)

const schema = `CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// UserStore implements auth.UserStore on a pgx pool.
type UserStore struct {
	pool   *pgxpool.Pool
	logger auth.Logger
}

// New wraps pool. logger may be nil.
func New(pool *pgxpool.Pool, logger auth.Logger) *UserStore {
	_, logger = auth.ResolveLogger("auth.pgstore", nil, logger)
	return &UserStore{pool: pool, logger: logger}
}

// Open parses dsn, connects and pings the database.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid postgres dsn")
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "failed to create postgres pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.CategoryExternal, "failed to reach postgres")
	}

	return pool, nil
}

// EnsureSchema creates the users table if it is missing.
func (s *UserStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		s.logger.Error("pgstore failed to create schema", "error", err)
		return errors.Wrap(err, errors.CategoryInternal, "failed to create users table")
	}
	return nil
}

// FindByEmail implements auth.UserStore.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, auth.ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var user auth.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash FROM users WHERE email = $1`, email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		s.logger.Error("pgstore find by email failed", "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to query user")
	}

	return &user, nil
}

// Create inserts user. An empty ID is replaced with a new UUID.
func (s *UserStore) Create(ctx context.Context, user *auth.User) (*auth.User, error) {
	if user == nil {
		return nil, errors.New("user is required", errors.CategoryBadInput)
	}

	created := auth.User{
		ID:           user.ID,
		Email:        normalizeEmail(user.Email),
		PasswordHash: user.PasswordHash,
	}
	if created.Email == "" {
		return nil, errors.New("user email is required", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest)
	}
	if created.ID == "" {
		created.ID = uuid.New().String()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)`,
		created.ID, created.Email, created.PasswordHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, errors.New("user already exists", errors.CategoryConflict).
				WithCode(errors.CodeConflict).
				WithMetadata(map[string]any{"constraint": pgErr.ConstraintName})
		}
		s.logger.Error("pgstore create user failed", "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to insert user")
	}

	return &created, nil
}

// Delete removes the user with id.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		s.logger.Error("pgstore delete user failed", "error", err)
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete user")
	}

	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ auth.UserStore = (*UserStore)(nil)
