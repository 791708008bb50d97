// Package identity provides user authentication and registration for the
// im-server: the Service contract consumed by the login/register handlers, a
// SQLite-backed user store, and a user-lookup cache with in-memory and redis
// backends.
package identity

import (
	"context"
	"errors"
	"regexp"
)

// User is a persisted user record. PasswordHash is a bcrypt hash and never
// leaves the identity layer in responses.
type User struct {
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	CreatedAt    string `json:"created_at"`
}

var (
	// ErrUserNotFound is returned when no user exists for the given name or ID.
	ErrUserNotFound = errors.New("user not found")

	// ErrWrongPassword is returned when the password does not match.
	ErrWrongPassword = errors.New("wrong password")

	// ErrUsernameExists is returned when registering an already-taken name.
	ErrUsernameExists = errors.New("username already exists")

	// ErrInvalidUsername is returned when the username fails validation:
	// 3-50 characters, alphanumeric and underscore only.
	ErrInvalidUsername = errors.New("invalid username format")

	// ErrInvalidPassword is returned when the password fails validation:
	// 6-50 characters.
	ErrInvalidPassword = errors.New("invalid password format")
)

// Service is the identity contract consumed by the login and register
// handlers. Any error other than the sentinel errors above is a backend
// failure.
type Service interface {
	// Authenticate verifies the credentials and returns the user record.
	// Fails with ErrUserNotFound or ErrWrongPassword on bad credentials.
	Authenticate(ctx context.Context, username, password string) (User, error)

	// Register creates a new user and returns the created record. Fails with
	// ErrInvalidUsername, ErrInvalidPassword, or ErrUsernameExists.
	Register(ctx context.Context, username, password string) (User, error)
}

// Store persists user records. The SQLite implementation is the default;
// tests substitute fakes.
type Store interface {
	// FindByUsername returns the user with the given name, or ErrUserNotFound.
	FindByUsername(ctx context.Context, username string) (User, error)

	// FindByID returns the user with the given ID, or ErrUserNotFound.
	FindByID(ctx context.Context, userID int64) (User, error)

	// Create inserts a new user and returns the stored record with its
	// assigned ID. Fails with ErrUsernameExists on a duplicate name.
	Create(ctx context.Context, username, passwordHash string) (User, error)

	// Close releases the store's resources.
	Close() error
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,50}$`)

// ValidUsername reports whether the username is 3-50 characters of
// alphanumerics and underscores.
func ValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// ValidPassword reports whether the password is 6-50 characters.
func ValidPassword(password string) bool {
	return len(password) >= 6 && len(password) <= 50
}
