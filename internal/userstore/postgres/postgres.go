// Package postgres provides a Postgres-backed userstore.Store on a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rankpilot/rankpilot/internal/userstore"
)

// ensure postgresStore implements userstore.Store
var _ userstore.Store = (*postgresStore)(nil)

type postgresStore struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL DEFAULT '',
	hashed_password TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

// New connects to dsn, verifies the connection, and ensures the schema
// exists.
func New(ctx context.Context, dsn string) (userstore.Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: init schema: %w", err)
	}

	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) Create(ctx context.Context, email, fullName, password string, superuser bool) (*userstore.User, error) {
	hashed, err := userstore.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
	INSERT INTO users (email, full_name, hashed_password, is_active, is_superuser, created_at, updated_at)
	VALUES ($1, $2, $3, TRUE, $4, $5, $5)
	RETURNING id, email, full_name, hashed_password, is_active, is_superuser, created_at, updated_at`,
		email, fullName, hashed, superuser, now,
	)

	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, userstore.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("postgres: create user: %w", err)
	}
	return u, nil
}

func (s *postgresStore) GetByID(ctx context.Context, id int64) (*userstore.User, error) {
	row := s.pool.QueryRow(ctx, `
	SELECT id, email, full_name, hashed_password, is_active, is_superuser, created_at, updated_at
	FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *postgresStore) GetByEmail(ctx context.Context, email string) (*userstore.User, error) {
	row := s.pool.QueryRow(ctx, `
	SELECT id, email, full_name, hashed_password, is_active, is_superuser, created_at, updated_at
	FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *postgresStore) List(ctx context.Context, skip, limit int) ([]*userstore.User, error) {
	if limit <= 0 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	rows, err := s.pool.Query(ctx, `
	SELECT id, email, full_name, hashed_password, is_active, is_superuser, created_at, updated_at
	FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("postgres: list users: %w", err)
	}
	defer rows.Close()

	var users []*userstore.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list users: %w", err)
	}
	return users, nil
}

func (s *postgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count users: %w", err)
	}
	return n, nil
}

func (s *postgresStore) Update(ctx context.Context, id int64, upd userstore.Update) (*userstore.User, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Email != nil {
		current.Email = *upd.Email
	}
	if upd.FullName != nil {
		current.FullName = *upd.FullName
	}
	if upd.Password != nil {
		hashed, err := userstore.HashPassword(*upd.Password)
		if err != nil {
			return nil, err
		}
		current.HashedPassword = hashed
	}
	if upd.IsActive != nil {
		current.IsActive = *upd.IsActive
	}
	if upd.IsSuperuser != nil {
		current.IsSuperuser = *upd.IsSuperuser
	}

	row := s.pool.QueryRow(ctx, `
	UPDATE users SET email = $1, full_name = $2, hashed_password = $3, is_active = $4, is_superuser = $5, updated_at = $6
	WHERE id = $7
	RETURNING id, email, full_name, hashed_password, is_active, is_superuser, created_at, updated_at`,
		current.Email, current.FullName, current.HashedPassword,
		current.IsActive, current.IsSuperuser, time.Now().UTC(), id,
	)

	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, userstore.ErrDuplicateEmail
		}
		return nil, err
	}
	return u, nil
}

func (s *postgresStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return userstore.ErrNotFound
	}
	return nil
}

func (s *postgresStore) Authenticate(ctx context.Context, email, password string) (*userstore.User, error) {
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !userstore.CheckPassword(u.HashedPassword, password) || !u.IsActive {
		return nil, userstore.ErrInvalidCredentials
	}
	return u, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*userstore.User, error) {
	var u userstore.User
	err := row.Scan(
		&u.ID, &u.Email, &u.FullName, &u.HashedPassword,
		&u.IsActive, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, userstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
