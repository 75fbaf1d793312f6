// Package userstore persists collaborator accounts and verifies their
// credentials. Backends live in subpackages; this package defines the model,
// the Store contract, and the password hashing helpers shared by all of them.
package userstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotFound is returned when no user matches the given ID or email.
	ErrNotFound = errors.New("userstore: user not found")
	// ErrDuplicateEmail is returned when a create or update would reuse an
	// email already registered to another user.
	ErrDuplicateEmail = errors.New("userstore: email already registered")
	// ErrInvalidCredentials is returned by Authenticate for a wrong password
	// or an inactive account. It deliberately does not distinguish the two.
	ErrInvalidCredentials = errors.New("userstore: invalid credentials")
)

// User is a collaborator account. HashedPassword is a bcrypt digest and is
// never serialized.
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	HashedPassword string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	IsSuperuser    bool      `json:"is_superuser"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Update carries the mutable fields of a user. Nil pointers leave the
// current value unchanged.
type Update struct {
	Email       *string
	FullName    *string
	Password    *string
	IsActive    *bool
	IsSuperuser *bool
}

// Store is the persistence contract for collaborator accounts.
type Store interface {
	// Create inserts the user and returns it with ID and timestamps set.
	// The Password field of the input is plaintext and hashed here.
	Create(ctx context.Context, email, fullName, password string, superuser bool) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// List returns users ordered by ID, skipping skip rows and returning at
	// most limit.
	List(ctx context.Context, skip, limit int) ([]*User, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, id int64, upd Update) (*User, error)
	Delete(ctx context.Context, id int64) error
	// Authenticate verifies email and password against the stored hash and
	// returns the user. Unknown emails return ErrNotFound; wrong passwords
	// and inactive accounts return ErrInvalidCredentials.
	Authenticate(ctx context.Context, email, password string) (*User, error)
	Close() error
}

// HashPassword derives a bcrypt digest from a plaintext password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("userstore: password must not be empty")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("userstore: hash password: %w", err)
	}
	return string(digest), nil
}

// CheckPassword reports whether the plaintext password matches the digest.
func CheckPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}
