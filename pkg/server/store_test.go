package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	_, err = redisClient.Ping(context.TODO()).Result()
	require.NoError(t, err, "cannot connect to redis db")
	store := NewRedisStore(redisClient)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{
		"redis":  newRedisTestStore(t),
		"sqlite": sqliteStore,
	}
}

func TestStore_Users(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.PasswordHash(ctx, "alice")
			assert.ErrorIs(t, err, ErrUserNotFound)

			require.NoError(t, store.CreateUser(ctx, "alice", "hash-1"))
			assert.ErrorIs(t, store.CreateUser(ctx, "alice", "hash-2"), ErrUserExists)

			hash, err := store.PasswordHash(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, "hash-1", hash, "duplicate registration must not overwrite")
		})
	}
}

func TestStore_MessagesKeepOrder(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			messages, err := store.Messages(ctx)
			require.NoError(t, err)
			assert.Empty(t, messages)
			assert.NotNil(t, messages)

			for i, body := range []string{"one", "two", "three"} {
				require.NoError(t, store.AppendMessage(ctx, StoredMessage{
					ID:        body,
					Username:  "alice",
					Message:   body,
					CreatedAt: base.Add(time.Duration(i) * time.Second),
				}))
			}

			messages, err = store.Messages(ctx)
			require.NoError(t, err)
			require.Len(t, messages, 3)
			for i, body := range []string{"one", "two", "three"} {
				assert.Equal(t, body, messages[i].Message)
				assert.True(t, base.Add(time.Duration(i)*time.Second).Equal(messages[i].CreatedAt))
			}
		})
	}
}

func TestSQLiteStore_EmptyDSN(t *testing.T) {
	_, err := NewSQLiteStore("")
	assert.Error(t, err)
}

func TestPassword_HashAndCompare(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", hash)
	assert.True(t, ComparePassword("secret", hash))
	assert.False(t, ComparePassword("wrong", hash))
	assert.False(t, ComparePassword("secret", "not-a-hash"))
}
