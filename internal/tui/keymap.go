package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for every screen of the ebook TUI.
type KeyMap struct {
	// form
	Submit        key.Binding
	MoreChapters  key.Binding
	FewerChapters key.Binding
	NextStyle     key.Binding

	// reader
	Continue  key.Binding
	ExportMD  key.Binding
	ExportTXT key.Binding
	ExportPDF key.Binding
	Dismiss   key.Binding
	New       key.Binding

	// error
	Retry key.Binding

	Quit      key.Binding
	ForceQuit key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "write ebook"),
		),
		MoreChapters: key.NewBinding(
			key.WithKeys("right"),
			key.WithHelp("→", "more chapters"),
		),
		FewerChapters: key.NewBinding(
			key.WithKeys("left"),
			key.WithHelp("←", "fewer chapters"),
		),
		NextStyle: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "style"),
		),
		Continue: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "continue"),
		),
		ExportMD: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "save .md"),
		),
		ExportTXT: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "save .txt"),
		),
		ExportPDF: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "save .pdf"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "dismiss"),
		),
		New: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new ebook"),
		),
		Retry: key.NewBinding(
			key.WithKeys("enter", "r"),
			key.WithHelp("enter/r", "try again"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
	}
}

// FormHelp returns the bindings shown under the form.
func (k KeyMap) FormHelp() []key.Binding {
	return []key.Binding{k.Submit, k.FewerChapters, k.MoreChapters, k.NextStyle, k.ForceQuit}
}

// ReaderHelp returns the bindings shown under a finished ebook. Continue and
// New are hidden while a chapter is being written.
func (k KeyMap) ReaderHelp(continuing bool) []key.Binding {
	k.Continue.SetEnabled(!continuing)
	k.New.SetEnabled(!continuing)

	return []key.Binding{k.Continue, k.ExportMD, k.ExportTXT, k.ExportPDF, k.New, k.Quit}
}
