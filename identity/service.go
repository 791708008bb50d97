package identity

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/cyberinferno/im-server/logger"
)

// Manager implements Service over a Store, with an optional user-lookup
// cache in front of it. All dependencies are injected.
type Manager struct {
	log   logger.Logger
	store Store
	cache UserCache
}

// NewManager creates a Manager.
//
// Parameters:
//   - store: The user store
//   - cache: Optional lookup cache; pass nil to go straight to the store
//   - log: Logger for identity diagnostics
//
// Returns:
//   - A ready-to-use Manager
func NewManager(store Store, cache UserCache, log logger.Logger) *Manager {
	return &Manager{
		log:   log,
		store: store,
		cache: cache,
	}
}

// Authenticate implements Service.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, err := m.lookup(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			m.log.Info("login failed, user not found", logger.Field{Key: "username", Value: username})
			return User{}, ErrUserNotFound
		}

		m.log.Error("user lookup failed",
			logger.Field{Key: "username", Value: username},
			logger.Field{Key: "error", Value: err})
		return User{}, fmt.Errorf("lookup user %q: %w", username, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		m.log.Info("login failed, wrong password", logger.Field{Key: "username", Value: username})
		return User{}, ErrWrongPassword
	}

	m.log.Info("user authenticated",
		logger.Field{Key: "username", Value: user.Username},
		logger.Field{Key: "user_id", Value: user.UserID})
	return user, nil
}

// Register implements Service.
func (m *Manager) Register(ctx context.Context, username, password string) (User, error) {
	if !ValidUsername(username) {
		m.log.Warn("registration rejected, invalid username", logger.Field{Key: "username", Value: username})
		return User{}, ErrInvalidUsername
	}

	if !ValidPassword(password) {
		m.log.Warn("registration rejected, invalid password", logger.Field{Key: "username", Value: username})
		return User{}, ErrInvalidPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := m.store.Create(ctx, username, string(hash))
	if err != nil {
		if errors.Is(err, ErrUsernameExists) {
			m.log.Info("registration failed, username exists", logger.Field{Key: "username", Value: username})
			return User{}, ErrUsernameExists
		}

		m.log.Error("user creation failed",
			logger.Field{Key: "username", Value: username},
			logger.Field{Key: "error", Value: err})
		return User{}, fmt.Errorf("create user %q: %w", username, err)
	}

	m.log.Info("user registered",
		logger.Field{Key: "username", Value: user.Username},
		logger.Field{Key: "user_id", Value: user.UserID})
	return user, nil
}

// lookup fetches a user by name through the cache when one is configured.
// Failed lookups are not cached.
func (m *Manager) lookup(ctx context.Context, username string) (User, error) {
	if m.cache == nil {
		return m.store.FindByUsername(ctx, username)
	}

	return m.cache.GetOrFetch(ctx, username, func(ctx context.Context) (User, error) {
		return m.store.FindByUsername(ctx, username)
	})
}
