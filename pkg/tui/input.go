package tui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type InputSection struct {
	View   *tview.InputField
	Submit func(text string)
	Focus  func(view string)
}

func NewInputSection() *InputSection {
	inputView := tview.NewInputField()
	inputView.SetPlaceholder("Send a message or type /help to list commands").
		SetPlaceholderTextColor(tcell.ColorDeepSkyBlue)
	inputView.SetLabel(">").SetLabelColor(tcell.ColorDeepSkyBlue).SetLabelWidth(2)
	inputView.SetFieldTextColor(tcell.ColorWhite).SetFieldBackgroundColor(tcell.ColorGrey)

	inputSection := &InputSection{View: inputView}
	inputView.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := inputView.GetText()
			if text == "" || inputSection.Submit == nil {
				return
			}
			inputSection.Submit(text)
		case tcell.KeyUp:
			if inputSection.Focus != nil {
				inputSection.Focus(MessageView)
			}
		}
	})
	return inputSection
}

// Sync shows the composer's pending input once a line has been handled, unless
// the user already typed something new.
func (input *InputSection) Sync(sent, pending string) {
	if input.View.GetText() == sent {
		input.View.SetText(pending)
	}
}
