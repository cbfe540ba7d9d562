package server

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
)

// Store keeps users and the message history. Messages returns history oldest first.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) error
	PasswordHash(ctx context.Context, username string) (string, error)
	AppendMessage(ctx context.Context, message StoredMessage) error
	Messages(ctx context.Context) ([]StoredMessage, error)
	Close() error
}
