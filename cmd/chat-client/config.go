package main

import (
	"os"
	"path/filepath"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hirotachi/ws-cli-chat/pkg/client"
	"github.com/hirotachi/ws-cli-chat/pkg/session"
	"github.com/hirotachi/ws-cli-chat/pkg/utils"
)

type Config struct {
	ServerURL        string        `env:"CHAT_SERVER_URL,default=http://127.0.0.1:8000"`
	SessionStore     string        `env:"CHAT_SESSION_STORE,default=file"`
	SessionFile      string        `env:"CHAT_SESSION_FILE"`
	RedisAddr        string        `env:"CHAT_REDIS_ADDR,default=127.0.0.1:6379"`
	MaxReconnects    int           `env:"CHAT_MAX_RECONNECTS,default=5"`
	ReconnectInitial time.Duration `env:"CHAT_RECONNECT_INITIAL,default=500ms"`
	ReconnectMax     time.Duration `env:"CHAT_RECONNECT_MAX,default=10s"`
	LogLevel         string        `env:"LOG_LEVEL,default=info"`
	LogFile          string        `env:"CHAT_LOG_FILE"`
}

func loadConfig() (Config, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return config, errors.Wrap(err, "config error")
	}
	if config.ServerURL == "" {
		config.ServerURL = utils.DefaultServerURL
	}
	return config, nil
}

func (c *Config) reconnectPolicy() client.ReconnectPolicy {
	return client.ReconnectPolicy{
		MaxRetries:      c.MaxReconnects,
		InitialInterval: c.ReconnectInitial,
		MaxInterval:     c.ReconnectMax,
	}
}

// setupLogging sends logs to a file, the terminal belongs to the UI.
func setupLogging(c *Config) (func(), error) {
	l, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", c.LogLevel)
	}
	zerolog.SetGlobalLevel(l)

	path := c.LogFile
	if path == "" {
		path = filepath.Join(os.TempDir(), "ws-cli-chat.log")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", path)
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return func() { _ = f.Close() }, nil
}

func openSessionStore(c *Config) (session.Store, func(), error) {
	switch c.SessionStore {
	case "file":
		path := c.SessionFile
		if path == "" {
			var err error
			if path, err = session.DefaultFilePath(); err != nil {
				return nil, nil, err
			}
		}
		return session.NewFileStore(path), func() {}, nil
	case "redis":
		redisClient := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		return session.NewRedisStore(redisClient, ""), func() { _ = redisClient.Close() }, nil
	default:
		return nil, nil, errors.Errorf("unknown session store %q", c.SessionStore)
	}
}
