package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hirotachi/ws-cli-chat/pkg/server"
)

func main() {
	config, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := newRootCmd(&config).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(config *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat-server",
		Short: "Chat backend: accounts, message history and the live channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := setupLogging(config.LogLevel); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openStore(ctx, config)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			chatServer, err := server.NewServer(config.Addr, store)
			if err != nil {
				return err
			}
			return chatServer.Run(ctx)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&config.Addr, "addr", config.Addr, "listen address")
	flags.StringVar(&config.Store, "store", config.Store, "message store: miniredis, redis or sqlite")
	flags.StringVar(&config.RedisAddr, "redis-addr", config.RedisAddr, "redis address for --store redis")
	flags.StringVar(&config.SQLitePath, "sqlite-path", config.SQLitePath, "database file for --store sqlite")
	flags.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	return cmd
}

func openStore(ctx context.Context, config *Config) (server.Store, error) {
	switch config.Store {
	case "miniredis":
		// in-process redis for development, nothing survives a restart
		mr, err := miniredis.Run()
		if err != nil {
			return nil, errors.Wrap(err, "error creating redis db")
		}
		go func() {
			<-ctx.Done()
			mr.Close()
		}()
		return connectRedis(ctx, mr.Addr())
	case "redis":
		return connectRedis(ctx, config.RedisAddr)
	case "sqlite":
		log.Info().Str("component", "server").Str("path", config.SQLitePath).Msg("using sqlite store")
		return server.NewSQLiteStore(config.SQLitePath)
	default:
		return nil, errors.Errorf("unknown store %q", config.Store)
	}
}

func connectRedis(ctx context.Context, addr string) (server.Store, error) {
	redisClient := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		_ = redisClient.Close()
		return nil, errors.Wrap(err, "cannot connect to redis db")
	}
	log.Info().Str("component", "server").Str("addr", addr).Msg("using redis store")
	return server.NewRedisStore(redisClient), nil
}
