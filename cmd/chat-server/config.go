package main

import (
	"os"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Addr       string `env:"CHAT_ADDR,default=:8000"`
	Store      string `env:"CHAT_STORE,default=miniredis"`
	RedisAddr  string `env:"CHAT_REDIS_ADDR,default=127.0.0.1:6379"`
	SQLitePath string `env:"CHAT_SQLITE_PATH,default=./chat.db"`
	LogLevel   string `env:"LOG_LEVEL,default=info"`
}

func loadConfig() (Config, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return config, errors.Wrap(err, "config error")
	}
	return config, nil
}

func setupLogging(level string) error {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	zerolog.SetGlobalLevel(l)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	return nil
}
