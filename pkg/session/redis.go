package session

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/hirotachi/ws-cli-chat/pkg/utils"
)

// RedisStore keeps the identity under a single key, so several terminals on one
// machine (or one redis) share the logged-in user.
type RedisStore struct {
	RedisClient *redis.Client
	Key         string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = utils.SessionKey
	}
	return &RedisStore{RedisClient: client, Key: key}
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	username, err := s.RedisClient.Get(ctx, s.Key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "redis get session")
	}
	return username, nil
}

func (s *RedisStore) Save(ctx context.Context, username string) error {
	return errors.Wrap(s.RedisClient.Set(ctx, s.Key, username, 0).Err(), "redis set session")
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return errors.Wrap(s.RedisClient.Del(ctx, s.Key).Err(), "redis del session")
}
