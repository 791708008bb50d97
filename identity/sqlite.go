package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/cyberinferno/im-server/logger"
)

// SQLiteStore persists users in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log logger.Logger
}

// NewSQLiteStore opens (creating if needed) the SQLite database at path and
// ensures the schema exists.
//
// Parameters:
//   - path: Database file path; the parent directory is created if absent
//   - log: Logger for store diagnostics
//
// Returns:
//   - The store, or an error if the database cannot be opened or migrated
func NewSQLiteStore(path string, log logger.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db, log: log}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	log.Info("user store opened", logger.Field{Key: "path", Value: path})
	return store, nil
}

// migrate ensures the users table exists.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);`

	_, err := s.db.Exec(schema)
	return err
}

// FindByUsername implements Store.
func (s *SQLiteStore) FindByUsername(ctx context.Context, username string) (User, error) {
	return s.findOne(ctx,
		"SELECT user_id, username, password_hash, created_at FROM users WHERE username = ?", username)
}

// FindByID implements Store.
func (s *SQLiteStore) FindByID(ctx context.Context, userID int64) (User, error) {
	return s.findOne(ctx,
		"SELECT user_id, username, password_hash, created_at FROM users WHERE user_id = ?", userID)
}

func (s *SQLiteStore) findOne(ctx context.Context, query string, arg any) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&user.UserID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}

	return user, nil
}

// Create implements Store. A duplicate username is reported as
// ErrUsernameExists whether it is caught by the unique constraint or by a
// concurrent insert.
func (s *SQLiteStore) Create(ctx context.Context, username, passwordHash string) (User, error) {
	createdAt := time.Now().UTC().Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
		username, passwordHash, createdAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return User{}, ErrUsernameExists
		}

		return User{}, fmt.Errorf("insert user: %w", err)
	}

	userID, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("read inserted user id: %w", err)
	}

	return User{
		UserID:       userID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    createdAt,
	}, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
