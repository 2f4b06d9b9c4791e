package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Recommend key.Binding
	Send      key.Binding
	Next      key.Binding
	Prev      key.Binding
	ScrollUp  key.Binding
	ScrollDn  key.Binding
	Quit      key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Recommend: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "recommend crop")),
		Send:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send / next field")),
		Next:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next field")),
		Prev:      key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev field")),
		ScrollUp:  key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		ScrollDn:  key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdown", "scroll down")),
		Quit:      key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "quit")),
	}
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.Recommend, k.Send, k.Next, k.ScrollUp, k.Quit}
}
