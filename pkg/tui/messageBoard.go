package tui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
)

type MessageBoard struct {
	View  *tview.TextView
	Frame *tview.Frame

	notices []string
}

func NewMessageBoard() *MessageBoard {
	messageView := tview.NewTextView()
	messageView.SetDynamicColors(true).SetScrollable(true).SetRegions(true)

	messageFrame := tview.NewFrame(messageView)
	messageFrame.SetTitle("[#chat]").SetBorder(true).SetTitleAlign(tview.AlignLeft)

	return &MessageBoard{View: messageView, Frame: messageFrame}
}

func (board *MessageBoard) SetUser(username string) {
	board.Frame.SetTitle(fmt.Sprintf("[#chat] %s", username))
}

// Render redraws the transcript, then any notices collected since the last reset.
func (board *MessageBoard) Render(transcript []chat.Message, self string) {
	var b strings.Builder
	b.WriteString(WelcomeText())
	for _, message := range transcript {
		b.WriteString(FormatMessage(message, self))
	}
	for _, notice := range board.notices {
		b.WriteString(notice)
	}
	board.View.SetText(b.String())
	board.View.ScrollToEnd()
}

// ShowNotice appends an error or announcement below the transcript.
func (board *MessageBoard) ShowNotice(level, text string) {
	color := "yellow"
	if level == "error" {
		color = "red"
	}
	board.notices = append(board.notices, fmt.Sprintf("[%s]%s[::-]: %s\n\n", color, level, tview.Escape(text)))
	board.stream(board.notices[len(board.notices)-1])
}

// ShowHelp lists commands and keys; like notices it stays until the next Reset.
func (board *MessageBoard) ShowHelp() {
	help := BuildOptionsList("Commands", commandOptions) + "\n" + BuildOptionsList("Keys", keyOptions) + "\n"
	board.notices = append(board.notices, help)
	board.stream(help)
}

func (board *MessageBoard) Reset() {
	board.notices = nil
	board.View.Clear()
}

func (board *MessageBoard) stream(data ...interface{}) {
	if _, err := fmt.Fprint(board.View, data...); err != nil {
		log.Warn().Err(err).Str("component", "tui").Msg("failed to stream to message view")
	}
	board.View.ScrollToEnd()
}

func WelcomeText() string {
	return "[lightgrey::b]Welcome to Chat[::-]\n\ntype [blue]/[::-][white::b]help[::-] to list commands\n\n"
}

func BuildOptionsList(title string, optionsList []Option) string {
	result := fmt.Sprintf("[lightgrey::b]%s[::-] \n", title)
	for _, option := range optionsList {
		result += fmt.Sprintf("  [blue]%s[::-][white::b]%s[::-] [lightgrey]%s[::-]\n", option.Prefix, option.Action, option.Description)
	}
	return result
}

// FormatMessage renders one message; the participant's own messages are highlighted.
func FormatMessage(message chat.Message, self string) string {
	info := "[grey]unknown time[::-]"
	if !message.Timestamp.IsZero() {
		info = fmt.Sprintf("[grey]%s[::-]", message.Timestamp.Local().Format("Jan 2 15:04:05"))
	}
	authorName := tview.Escape(message.Author)
	if message.Author == self {
		authorName = fmt.Sprintf("[blue::b]%s[::-]", authorName)
	}
	return fmt.Sprintf("%s %s\n  [white]%s[::-]\n\n", authorName, info, tview.Escape(message.Body))
}
