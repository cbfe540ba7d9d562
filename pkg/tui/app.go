package tui

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/pkg/errors"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
	"github.com/hirotachi/ws-cli-chat/pkg/client"
)

const (
	MessageView = "messages"
	InputView   = "input"

	loginPage = "login"
	chatPage  = "chat"
)

// App is the terminal front end: a login form, then the message board and input line.
// Engine calls run off the UI goroutine; their results are applied with QueueUpdateDraw.
type App struct {
	app    *tview.Application
	pages  *tview.Pages
	engine ChatEngine

	login *LoginForm
	board *MessageBoard
	input *InputSection
}

func NewApp(engine ChatEngine) *App {
	a := &App{
		app:    tview.NewApplication(),
		pages:  tview.NewPages(),
		engine: engine,
		login:  NewLoginForm(),
		board:  NewMessageBoard(),
		input:  NewInputSection(),
	}

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.board.Frame, 0, 1, false).
		AddItem(a.input.View, 1, 0, true)
	a.pages.AddPage(chatPage, layout, true, false)
	a.pages.AddPage(loginPage, a.login.Layout, true, true)

	a.input.Focus = a.focus
	a.input.Submit = a.submit
	a.board.View.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			a.focus(InputView)
		}
	})
	a.login.OnLogin = func(creds client.Credentials) { a.authenticate(creds, a.engine.Login) }
	a.login.OnRegister = func(creds client.Credentials) { a.authenticate(creds, a.engine.Register) }
	a.login.OnQuit = a.app.Stop

	a.app.SetRoot(a.pages, true)
	return a
}

// Run blocks until the user quits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	if username := a.engine.Username(); username != "" {
		a.showChat(username)
	}
	go a.listen(ctx)
	go func() {
		<-ctx.Done()
		a.app.Stop()
	}()
	return errors.Wrap(a.app.Run(), "run terminal ui")
}

func (a *App) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-a.engine.Events():
			a.app.QueueUpdateDraw(func() { a.apply(event) })
		}
	}
}

func (a *App) apply(event client.Event) {
	switch event.Kind {
	case client.EventSessionChanged:
		if event.Username == "" {
			a.showLogin()
		} else {
			a.showChat(event.Username)
		}
	case client.EventChannelOpened, client.EventTranscriptChanged:
		a.board.Render(a.engine.Transcript(), a.engine.Username())
	case client.EventFetchFailed:
		a.board.ShowNotice("error", fmt.Sprintf("could not load history: %s (type /retry)", event.Err))
	case client.EventReconnecting:
		a.board.ShowNotice("warn", fmt.Sprintf("connection lost, reconnecting in %s (attempt %d)", event.Delay, event.Attempt))
	case client.EventChannelClosed:
		a.board.ShowNotice("error", fmt.Sprintf("connection closed: %s (type /logout and log in again to reconnect)", event.Err))
	}
}

func (a *App) authenticate(creds client.Credentials, call func(context.Context, client.Credentials) error) {
	go func() {
		err := call(context.Background(), creds)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				log.Info().Err(err).Str("component", "tui").Msg("authentication failed")
				a.login.ShowError(err)
				return
			}
			a.login.Reset()
		})
	}()
}

func (a *App) submit(text string) {
	go func() {
		action, err := Dispatch(context.Background(), a.engine, text)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.board.ShowNotice("error", describe(err))
				return
			}
			if action == ActionNone {
				a.input.Sync(text, a.engine.Composer().Input())
			} else {
				a.input.Sync(text, "")
			}
			switch action {
			case ActionShowHelp:
				a.board.ShowHelp()
			case ActionShowLogin:
				a.showLogin()
			case ActionQuit:
				a.app.Stop()
			}
		})
	}()
}

func describe(err error) string {
	switch {
	case errors.Is(err, chat.ErrChannelNotOpen):
		return "not connected, the message was not sent"
	case errors.Is(err, chat.ErrEmptyMessage):
		return "message is empty"
	case errors.Is(err, chat.ErrAlreadySeeded):
		return "history is already loaded"
	default:
		return err.Error()
	}
}

func (a *App) showLogin() {
	a.board.Reset()
	a.pages.SwitchToPage(loginPage)
	a.app.SetFocus(a.login.Form)
}

func (a *App) showChat(username string) {
	a.board.SetUser(username)
	a.board.Render(a.engine.Transcript(), username)
	a.pages.SwitchToPage(chatPage)
	a.app.SetFocus(a.input.View)
}

func (a *App) focus(view string) {
	switch view {
	case MessageView:
		a.app.SetFocus(a.board.View)
	default:
		a.app.SetFocus(a.input.View)
	}
}
