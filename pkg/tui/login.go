package tui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
	"github.com/hirotachi/ws-cli-chat/pkg/client"
)

type LoginForm struct {
	Form   *tview.Form
	Status *tview.TextView
	Layout *tview.Flex

	OnLogin    func(creds client.Credentials)
	OnRegister func(creds client.Credentials)
	OnQuit     func()
}

func NewLoginForm() *LoginForm {
	login := &LoginForm{
		Form:   tview.NewForm(),
		Status: tview.NewTextView().SetDynamicColors(true),
	}
	login.Form.
		AddInputField("Username", "", 32, nil, nil).
		AddPasswordField("Password", "", 32, '*', nil).
		AddButton("Login", func() {
			if login.OnLogin != nil {
				login.OnLogin(login.Credentials())
			}
		}).
		AddButton("Register", func() {
			if login.OnRegister != nil {
				login.OnRegister(login.Credentials())
			}
		}).
		AddButton("Quit", func() {
			if login.OnQuit != nil {
				login.OnQuit()
			}
		})
	login.Form.SetBorder(true).SetTitle("[#chat] log in").SetTitleAlign(tview.AlignLeft)
	login.Form.SetFieldBackgroundColor(tcell.ColorGrey).SetButtonBackgroundColor(tcell.ColorDeepSkyBlue)

	login.Layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(login.Form, 0, 1, true).
		AddItem(login.Status, 2, 0, false)
	return login
}

func (login *LoginForm) Credentials() client.Credentials {
	username := login.Form.GetFormItemByLabel("Username").(*tview.InputField).GetText()
	password := login.Form.GetFormItemByLabel("Password").(*tview.InputField).GetText()
	return client.Credentials{Username: username, Password: password}
}

// ShowError prints the gateway's detail for rejections and the raw error otherwise.
func (login *LoginForm) ShowError(err error) {
	text := err.Error()
	if rejected, ok := chat.IsAuthRejected(err); ok && rejected.Detail != "" {
		text = rejected.Detail
	}
	login.Status.SetText("[red]" + tview.Escape(text) + "[::-]")
}

func (login *LoginForm) Reset() {
	login.Status.Clear()
	login.Form.GetFormItemByLabel("Password").(*tview.InputField).SetText("")
}
