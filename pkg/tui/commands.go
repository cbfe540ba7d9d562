package tui

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
	"github.com/hirotachi/ws-cli-chat/pkg/client"
)

// ChatEngine is the part of client.Engine the terminal UI drives.
type ChatEngine interface {
	Login(ctx context.Context, creds client.Credentials) error
	Register(ctx context.Context, creds client.Credentials) error
	Logout(ctx context.Context) error
	Refetch(ctx context.Context) error
	Composer() *client.Composer
	Submit() error
	Transcript() []chat.Message
	Username() string
	Events() <-chan client.Event
}

var _ ChatEngine = &client.Engine{}

type Action int

const (
	ActionNone Action = iota
	ActionShowHelp
	ActionShowLogin
	ActionQuit
)

type Option struct {
	Action      string
	Description string
	Prefix      string
}

var commandOptions = []Option{
	{Prefix: "/", Action: "help", Description: "Shows this commands list."},
	{Prefix: "/", Action: "retry", Description: "Loads the history again after a failure."},
	{Prefix: "/", Action: "logout", Description: "Forgets your identity and returns to the login form."},
	{Prefix: "/", Action: "quit", Description: "Exits the program, you stay logged in."},
}

var keyOptions = []Option{
	{Prefix: "UP ARROW", Description: "When input is focused, message list is focused."},
	{Prefix: "ESC", Description: "Exit message list focus."},
}

// Dispatch runs one line of input. Lines starting with "/" are commands,
// anything else becomes the composer's pending input and is submitted as typed.
// A failed submit leaves the text pending in the composer.
func Dispatch(ctx context.Context, engine ChatEngine, text string) (Action, error) {
	command := strings.TrimSpace(text)
	if !strings.HasPrefix(command, "/") {
		engine.Composer().SetInput(text)
		return ActionNone, engine.Submit()
	}
	switch command {
	case "/help":
		return ActionShowHelp, nil
	case "/retry":
		return ActionNone, engine.Refetch(ctx)
	case "/logout":
		return ActionShowLogin, engine.Logout(ctx)
	case "/quit":
		return ActionQuit, nil
	default:
		return ActionNone, errors.Errorf("unknown command %q, type /help", command)
	}
}
