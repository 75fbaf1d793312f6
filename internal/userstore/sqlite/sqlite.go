// Package sqlite provides a SQLite-backed userstore.Store using the pure-Go
// modernc.org/sqlite driver. Suited to single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rankpilot/rankpilot/internal/userstore"
)

// ensure sqliteStore implements userstore.Store
var _ userstore.Store = (*sqliteStore)(nil)

type sqliteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL DEFAULT '',
	hashed_password TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	is_superuser BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// New opens (or creates) the database at dsn and ensures the schema exists.
func New(dsn string) (userstore.Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent access.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Create(ctx context.Context, email, fullName, password string, superuser bool) (*userstore.User, error) {
	hashed, err := userstore.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO users (email, full_name, hashed_password, is_active, is_superuser, created_at, updated_at)
	VALUES (?, ?, ?, 1, ?, ?, ?)`,
		email, fullName, hashed, superuser, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, userstore.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("sqlite: create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create user: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *sqliteStore) GetByID(ctx context.Context, id int64) (*userstore.User, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, email, full_name, hashed_password, is_active, is_superuser, created_at, updated_at
	FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *sqliteStore) GetByEmail(ctx context.Context, email string) (*userstore.User, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, email, full_name, hashed_password, is_active, is_superuser, created_at, updated_at
	FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (s *sqliteStore) List(ctx context.Context, skip, limit int) ([]*userstore.User, error) {
	if limit <= 0 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, email, full_name, hashed_password, is_active, is_superuser, created_at, updated_at
	FROM users ORDER BY id LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list users: %w", err)
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
		return nil, fmt.Errorf("sqlite: list users: %w", err)
	}
	return users, nil
}

func (s *sqliteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count users: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) Update(ctx context.Context, id int64, upd userstore.Update) (*userstore.User, error) {
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

	_, err = s.db.ExecContext(ctx, `
	UPDATE users SET email = ?, full_name = ?, hashed_password = ?, is_active = ?, is_superuser = ?, updated_at = ?
	WHERE id = ?`,
		current.Email, current.FullName, current.HashedPassword,
		current.IsActive, current.IsSuperuser, time.Now().UTC(), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, userstore.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("sqlite: update user: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *sqliteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: delete user: %w", err)
	}
	if n == 0 {
		return userstore.ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Authenticate(ctx context.Context, email, password string) (*userstore.User, error) {
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !userstore.CheckPassword(u.HashedPassword, password) || !u.IsActive {
		return nil, userstore.ErrInvalidCredentials
	}
	return u, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
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
	if errors.Is(err, sql.ErrNoRows) {
		return nil, userstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan user: %w", err)
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
