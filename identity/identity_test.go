package identity

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cyberinferno/im-server/logger"
)

type fakeStore struct {
	users    map[string]User
	nextID   int64
	findErr  error
	fetches  atomic.Int64
	creates  atomic.Int64
	closeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]User), nextID: 0}
}

func (s *fakeStore) addUser(username, password string) User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	s.nextID++
	u := User{UserID: s.nextID, Username: username, PasswordHash: string(hash)}
	s.users[username] = u
	return u
}

func (s *fakeStore) FindByUsername(_ context.Context, username string) (User, error) {
	s.fetches.Add(1)
	if s.findErr != nil {
		return User{}, s.findErr
	}

	u, ok := s.users[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *fakeStore) FindByID(_ context.Context, userID int64) (User, error) {
	for _, u := range s.users {
		if u.UserID == userID {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (s *fakeStore) Create(_ context.Context, username, passwordHash string) (User, error) {
	s.creates.Add(1)
	if _, ok := s.users[username]; ok {
		return User{}, ErrUsernameExists
	}

	s.nextID++
	u := User{UserID: s.nextID, Username: username, PasswordHash: passwordHash}
	s.users[username] = u
	return u, nil
}

func (s *fakeStore) Close() error { return s.closeErr }

func TestValidUsername(t *testing.T) {
	assert.True(t, ValidUsername("abc"))
	assert.True(t, ValidUsername("user_123"))
	assert.False(t, ValidUsername("ab"))
	assert.False(t, ValidUsername("has space"))
	assert.False(t, ValidUsername("dash-ed"))
	assert.False(t, ValidUsername(""))

	long := make([]byte, 51)
	for i := range long {
		long[i] = 'a'
	}
	assert.False(t, ValidUsername(string(long)))
	assert.True(t, ValidUsername(string(long[:50])))
}

func TestValidPassword(t *testing.T) {
	assert.True(t, ValidPassword("secret"))
	assert.False(t, ValidPassword("short"))

	long := make([]byte, 51)
	assert.False(t, ValidPassword(string(long)))
	assert.True(t, ValidPassword(string(long[:50])))
}

func TestManager_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("success returns the user record", func(t *testing.T) {
		store := newFakeStore()
		want := store.addUser("alice", "secret123")
		m := NewManager(store, nil, logger.NewNop())

		got, err := m.Authenticate(ctx, "alice", "secret123")
		require.NoError(t, err)
		assert.Equal(t, want.UserID, got.UserID)
		assert.Equal(t, "alice", got.Username)
	})

	t.Run("unknown user", func(t *testing.T) {
		m := NewManager(newFakeStore(), nil, logger.NewNop())

		_, err := m.Authenticate(ctx, "ghost", "whatever")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("wrong password", func(t *testing.T) {
		store := newFakeStore()
		store.addUser("alice", "secret123")
		m := NewManager(store, nil, logger.NewNop())

		_, err := m.Authenticate(ctx, "alice", "nope-nope")
		assert.ErrorIs(t, err, ErrWrongPassword)
	})

	t.Run("backend failure is wrapped, not mapped", func(t *testing.T) {
		store := newFakeStore()
		store.findErr = assert.AnError
		m := NewManager(store, nil, logger.NewNop())

		_, err := m.Authenticate(ctx, "alice", "secret123")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUserNotFound)
		assert.NotErrorIs(t, err, ErrWrongPassword)
	})
}

func TestManager_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("success hashes the password and assigns an id", func(t *testing.T) {
		store := newFakeStore()
		m := NewManager(store, nil, logger.NewNop())

		user, err := m.Register(ctx, "bob_42", "hunter22")
		require.NoError(t, err)
		assert.Equal(t, "bob_42", user.Username)
		assert.NotZero(t, user.UserID)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("hunter22")))
	})

	t.Run("invalid username rejected before touching the store", func(t *testing.T) {
		store := newFakeStore()
		m := NewManager(store, nil, logger.NewNop())

		_, err := m.Register(ctx, "x", "hunter22")
		assert.ErrorIs(t, err, ErrInvalidUsername)
		assert.Zero(t, store.creates.Load())
	})

	t.Run("invalid password rejected before touching the store", func(t *testing.T) {
		store := newFakeStore()
		m := NewManager(store, nil, logger.NewNop())

		_, err := m.Register(ctx, "bob_42", "short")
		assert.ErrorIs(t, err, ErrInvalidPassword)
		assert.Zero(t, store.creates.Load())
	})

	t.Run("duplicate username", func(t *testing.T) {
		store := newFakeStore()
		store.addUser("bob_42", "hunter22")
		m := NewManager(store, nil, logger.NewNop())

		_, err := m.Register(ctx, "bob_42", "hunter22")
		assert.ErrorIs(t, err, ErrUsernameExists)
	})
}

func TestManager_CachedLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("repeated logins hit the store once", func(t *testing.T) {
		store := newFakeStore()
		store.addUser("alice", "secret123")
		m := NewManager(store, NewMemoryCache(time.Minute, time.Minute), logger.NewNop())

		for i := 0; i < 3; i++ {
			_, err := m.Authenticate(ctx, "alice", "secret123")
			require.NoError(t, err)
		}

		assert.Equal(t, int64(1), store.fetches.Load())
	})

	t.Run("failed lookups are not cached", func(t *testing.T) {
		store := newFakeStore()
		m := NewManager(store, NewMemoryCache(time.Minute, time.Minute), logger.NewNop())

		_, err := m.Authenticate(ctx, "ghost", "whatever")
		assert.ErrorIs(t, err, ErrUserNotFound)

		store.addUser("ghost", "secret123")
		_, err = m.Authenticate(ctx, "ghost", "secret123")
		assert.NoError(t, err)
	})
}

func TestMemoryCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, time.Minute)

	fetches := 0
	fetch := func(context.Context) (User, error) {
		fetches++
		return User{UserID: 1, Username: "alice"}, nil
	}

	_, err := c.GetOrFetch(ctx, "alice", fetch)
	require.NoError(t, err)
	_, err = c.GetOrFetch(ctx, "alice", fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, fetches)

	require.NoError(t, c.Delete(ctx, "alice"))
	_, err = c.GetOrFetch(ctx, "alice", fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, fetches)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()

	newStore := func(t *testing.T) *SQLiteStore {
		t.Helper()
		store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "users.db"), logger.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}

	t.Run("create and find", func(t *testing.T) {
		store := newStore(t)

		created, err := store.Create(ctx, "alice", "hash-1")
		require.NoError(t, err)
		assert.NotZero(t, created.UserID)
		assert.NotEmpty(t, created.CreatedAt)

		byName, err := store.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, created.UserID, byName.UserID)
		assert.Equal(t, "hash-1", byName.PasswordHash)

		byID, err := store.FindByID(ctx, created.UserID)
		require.NoError(t, err)
		assert.Equal(t, "alice", byID.Username)
	})

	t.Run("missing user", func(t *testing.T) {
		store := newStore(t)

		_, err := store.FindByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = store.FindByID(ctx, 12345)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("duplicate username maps to ErrUsernameExists", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Create(ctx, "alice", "hash-1")
		require.NoError(t, err)

		_, err = store.Create(ctx, "alice", "hash-2")
		assert.ErrorIs(t, err, ErrUsernameExists)
	})

	t.Run("ids are monotonically assigned", func(t *testing.T) {
		store := newStore(t)

		a, err := store.Create(ctx, "alice", "h")
		require.NoError(t, err)
		b, err := store.Create(ctx, "bob", "h")
		require.NoError(t, err)
		assert.Greater(t, b.UserID, a.UserID)
	})
}
