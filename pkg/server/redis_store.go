package server

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/hirotachi/ws-cli-chat/pkg/utils"
)

// RedisStore keeps users in a hash and the history in a list, in arrival order.
type RedisStore struct {
	RedisClient *redis.Client
}

var _ Store = &RedisStore{}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{RedisClient: client}
}

func (s *RedisStore) CreateUser(ctx context.Context, username, passwordHash string) error {
	created, err := s.RedisClient.HSetNX(ctx, utils.RedisUsersHashKey, username, passwordHash).Result()
	if err != nil {
		return errors.Wrap(err, "redis create user")
	}
	if !created {
		return ErrUserExists
	}
	return nil
}

func (s *RedisStore) PasswordHash(ctx context.Context, username string) (string, error) {
	hash, err := s.RedisClient.HGet(ctx, utils.RedisUsersHashKey, username).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "redis get user")
	}
	return hash, nil
}

func (s *RedisStore) AppendMessage(ctx context.Context, message StoredMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}
	return errors.Wrap(s.RedisClient.RPush(ctx, utils.RedisMessagesKey, data).Err(), "redis append message")
}

func (s *RedisStore) Messages(ctx context.Context) ([]StoredMessage, error) {
	raw, err := s.RedisClient.LRange(ctx, utils.RedisMessagesKey, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis list messages")
	}
	messages := make([]StoredMessage, 0, len(raw))
	for _, item := range raw {
		var message StoredMessage
		if err := json.Unmarshal([]byte(item), &message); err != nil {
			return nil, errors.Wrap(err, "decode stored message")
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (s *RedisStore) Close() error {
	return s.RedisClient.Close()
}
