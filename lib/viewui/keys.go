// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the keys the viewer keeps for itself. Everything else
// goes to the host as input.
type KeyMap struct {
	LineUp   key.Binding
	LineDown key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Follow   key.Binding
	Quit     key.Binding
}

// DefaultKeyMap uses shifted and paging keys, which shells rarely
// need, so plain arrows still reach the remote program.
var DefaultKeyMap = KeyMap{
	LineUp: key.NewBinding(
		key.WithKeys("shift+up"),
		key.WithHelp("⇧↑", "line up"),
	),
	LineDown: key.NewBinding(
		key.WithKeys("shift+down"),
		key.WithHelp("⇧↓", "line down"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "shift+pgup"),
		key.WithHelp("pgup", "page up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "shift+pgdown"),
		key.WithHelp("pgdn", "page down"),
	),
	Top: key.NewBinding(
		key.WithKeys("ctrl+home"),
		key.WithHelp("ctrl+home", "oldest"),
	),
	Follow: key.NewBinding(
		key.WithKeys("ctrl+end"),
		key.WithHelp("ctrl+end", "follow"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+q"),
		key.WithHelp("ctrl+q", "quit"),
	),
}

// ShortHelp lists the bindings shown in the status line.
func (keys KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{keys.PageUp, keys.PageDown, keys.Follow, keys.Quit}
}
