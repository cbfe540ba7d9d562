package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
)

type ReconnectPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{MaxRetries: 5, InitialInterval: 500 * time.Millisecond, MaxInterval: 10 * time.Second}
}

func (p ReconnectPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// SupervisorHooks are the observable signals of a supervised channel.
type SupervisorHooks struct {
	// OnOpen fires after every successful open; first is true only for the first one.
	OnOpen func(first bool)
	// OnReconnect fires before waiting delay ahead of reconnect attempt n (1-based).
	OnReconnect func(attempt int, delay time.Duration, cause error)
	OnMessage   func(chat.Message)
}

// Supervisor keeps a Controller open for as long as its context lives, re-opening it
// with bounded exponential backoff after unexpected closes.
type Supervisor struct {
	controller *Controller
	policy     ReconnectPolicy
	hooks      SupervisorHooks
	newBackOff func() backoff.BackOff
	after      func(time.Duration) <-chan time.Time
}

func NewSupervisor(controller *Controller, policy ReconnectPolicy, hooks SupervisorHooks) *Supervisor {
	return &Supervisor{
		controller: controller,
		policy:     policy,
		hooks:      hooks,
		newBackOff: policy.newBackOff,
		after:      time.After,
	}
}

// Run blocks until ctx is cancelled or the retry budget is spent. On return the
// controller is closed. The returned error wraps ErrChannelClosedUnexpectedly when
// retries ran out, or is ctx.Err() on teardown.
func (s *Supervisor) Run(ctx context.Context) error {
	defer func() { _ = s.controller.Close() }()

	b := s.newBackOff()
	attempt := 0
	opened := false
	for {
		closed := make(chan error, 1)
		err := s.controller.Open(ctx, s.hooks.OnMessage, func(err error) { closed <- err })
		if err == nil {
			first := !opened
			opened = true
			attempt = 0
			b.Reset()
			if s.hooks.OnOpen != nil {
				s.hooks.OnOpen(first)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err = <-closed:
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		if attempt > s.policy.MaxRetries {
			log.Error().Err(err).Str("component", "client").Int("attempts", attempt-1).Msg("giving up on channel")
			return errors.Wrapf(chat.ErrChannelClosedUnexpectedly, "after %d reconnect attempts: %v", attempt-1, err)
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return errors.Wrap(chat.ErrChannelClosedUnexpectedly, "backoff stopped")
		}
		log.Info().Err(err).Str("component", "client").Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting channel")
		if s.hooks.OnReconnect != nil {
			s.hooks.OnReconnect(attempt, delay, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(delay):
		}
	}
}
