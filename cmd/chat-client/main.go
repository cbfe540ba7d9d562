package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
	"github.com/hirotachi/ws-cli-chat/pkg/client"
	"github.com/hirotachi/ws-cli-chat/pkg/session"
	"github.com/hirotachi/ws-cli-chat/pkg/tui"
)

var errNotLoggedIn = errors.New("not logged in, run chat-client to log in first")

func main() {
	config, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(&config).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd(config *Config) *cobra.Command {
	var closeLog func()
	cmd := &cobra.Command{
		Use:   "chat-client",
		Short: "Terminal chat client",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			var err error
			closeLog, err = setupLogging(config)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if closeLog != nil {
				closeLog()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd.Context(), config, func(ctx context.Context, engine *client.Engine) error {
				engine.Start(ctx)
				return tui.NewApp(engine).Run(ctx)
			})
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&config.ServerURL, "server", config.ServerURL, "chat server base url")
	flags.StringVar(&config.SessionStore, "session-store", config.SessionStore, "where the identity is kept: file or redis")
	flags.StringVar(&config.SessionFile, "session-file", config.SessionFile, "identity file for --session-store file")
	flags.StringVar(&config.RedisAddr, "redis-addr", config.RedisAddr, "redis address for --session-store redis")
	flags.IntVar(&config.MaxReconnects, "max-reconnects", config.MaxReconnects, "reconnect attempts before giving up, 0 disables reconnecting")
	flags.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	flags.StringVar(&config.LogFile, "log-file", config.LogFile, "log file")

	cmd.AddCommand(newTailCmd(config), newSendCmd(config), newLogoutCmd(config))
	return cmd
}

func withEngine(ctx context.Context, config *Config, fn func(ctx context.Context, engine *client.Engine) error) error {
	store, closeStore, err := openSessionStore(config)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := client.NewEngine(client.Config{
		ServerURL: config.ServerURL,
		Store:     store,
		Reconnect: config.reconnectPolicy(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()
	return fn(ctx, engine)
}

func newTailCmd(config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Print the transcript, then every new message, until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd.Context(), config, func(ctx context.Context, engine *client.Engine) error {
				if _, ok := engine.Start(ctx); !ok {
					return errNotLoggedIn
				}
				retry := make(chan struct{}, 1)
				eg, ctx := errgroup.WithContext(ctx)
				eg.Go(func() error {
					return tail(ctx, engine, cmd.OutOrStdout(), cmd.ErrOrStderr(), retry)
				})
				eg.Go(func() error {
					return refetchLoop(ctx, engine, retry)
				})
				return eg.Wait()
			})
		},
	}
}

var refetchDelay = 2 * time.Second

// transcriptFeed is what tail reads from a running engine.
type transcriptFeed interface {
	Events() <-chan client.Event
	Transcript() []chat.Message
}

type refetcher interface {
	Refetch(ctx context.Context) error
}

// linePrinter remembers which messages went out already. The transcript is not
// append-only: a backfill that succeeds on retry lands in front of live messages
// that were shown while it was failing.
type linePrinter struct {
	out     io.Writer
	printed map[chat.Key]int
}

func newLinePrinter(out io.Writer) *linePrinter {
	return &linePrinter{out: out, printed: map[chat.Key]int{}}
}

// print writes every message of transcript not printed before. Identical messages
// are told apart by how often they occur.
func (p *linePrinter) print(transcript []chat.Message) {
	seen := make(map[chat.Key]int, len(transcript))
	for _, message := range transcript {
		key := message.Key()
		seen[key]++
		if seen[key] > p.printed[key] {
			fmt.Fprintln(p.out, formatLine(message))
			p.printed[key] = seen[key]
		}
	}
}

func tail(ctx context.Context, feed transcriptFeed, out, errOut io.Writer, retry chan<- struct{}) error {
	printer := newLinePrinter(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-feed.Events():
			switch event.Kind {
			case client.EventTranscriptChanged:
				printer.print(feed.Transcript())
			case client.EventFetchFailed:
				fmt.Fprintf(errOut, "could not load history: %s, retrying\n", event.Err)
				select {
				case retry <- struct{}{}:
				default:
				}
			case client.EventReconnecting:
				fmt.Fprintf(errOut, "reconnecting in %s (attempt %d)\n", event.Delay, event.Attempt)
			case client.EventChannelClosed:
				return event.Err
			}
		}
	}
}

// refetchLoop retries a failed backfill until it succeeds or ctx ends.
func refetchLoop(ctx context.Context, engine refetcher, retry <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-retry:
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(refetchDelay):
		}
		if err := engine.Refetch(ctx); err != nil && !errors.Is(err, chat.ErrAlreadySeeded) {
			log.Debug().Err(err).Str("component", "client").Msg("refetch failed")
		}
	}
}

func formatLine(message chat.Message) string {
	at := "-"
	if !message.Timestamp.IsZero() {
		at = message.Timestamp.Local().Format(time.DateTime)
	}
	return fmt.Sprintf("%s %s: %s", at, message.Author, message.Body)
}

func newSendCmd(config *Config) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message as the logged in user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := strings.Join(args, " ")
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return withEngine(ctx, config, func(ctx context.Context, engine *client.Engine) error {
				if _, ok := engine.Start(ctx); !ok {
					return errNotLoggedIn
				}
				return send(ctx, engine, body)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the server to echo the message")
	return cmd
}

// send waits for the channel, sends body and returns once the server echoes it back.
func send(ctx context.Context, engine *client.Engine, body string) error {
	var sentAt time.Time
	sent := false
	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "message not confirmed")
		case event := <-engine.Events():
			switch event.Kind {
			case client.EventChannelOpened:
				if !sent {
					if err := engine.Send(body); err != nil {
						return err
					}
					sent = true
					sentAt = time.Now()
				}
			case client.EventTranscriptChanged:
				if sent && echoed(engine.Transcript(), engine.Username(), body, sentAt.Add(-echoSkew)) {
					return nil
				}
			case client.EventChannelClosed:
				return event.Err
			}
		}
	}
}

// echoSkew tolerates a server clock that runs behind ours.
const echoSkew = 30 * time.Second

// echoed reports whether the server has broadcast body back to us. Older copies
// of the same text from the history are ignored by their timestamp.
func echoed(transcript []chat.Message, username, body string, since time.Time) bool {
	for i := len(transcript) - 1; i >= 0; i-- {
		m := transcript[i]
		if m.Author == username && m.Body == body && !m.Timestamp.Before(since) {
			return true
		}
	}
	return false
}

func newLogoutCmd(config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the persisted identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeStore, err := openSessionStore(config)
			if err != nil {
				return err
			}
			defer closeStore()
			return session.NewIdentity(store).Clear(cmd.Context())
		},
	}
}
