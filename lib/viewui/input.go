// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
)

// specialKeys maps bubbletea's named keys to the sequences an xterm
// sends for them.
var specialKeys = map[tea.KeyType]string{
	tea.KeyUp:        "\x1b[A",
	tea.KeyDown:      "\x1b[B",
	tea.KeyRight:     "\x1b[C",
	tea.KeyLeft:      "\x1b[D",
	tea.KeyShiftTab:  "\x1b[Z",
	tea.KeyHome:      "\x1b[H",
	tea.KeyEnd:       "\x1b[F",
	tea.KeyPgUp:      "\x1b[5~",
	tea.KeyPgDown:    "\x1b[6~",
	tea.KeyDelete:    "\x1b[3~",
	tea.KeyInsert:    "\x1b[2~",
	tea.KeySpace:     " ",
	tea.KeyCtrlUp:    "\x1b[1;5A",
	tea.KeyCtrlDown:  "\x1b[1;5B",
	tea.KeyCtrlRight: "\x1b[1;5C",
	tea.KeyCtrlLeft:  "\x1b[1;5D",
	tea.KeyF1:        "\x1bOP",
	tea.KeyF2:        "\x1bOQ",
	tea.KeyF3:        "\x1bOR",
	tea.KeyF4:        "\x1bOS",
	tea.KeyF5:        "\x1b[15~",
	tea.KeyF6:        "\x1b[17~",
	tea.KeyF7:        "\x1b[18~",
	tea.KeyF8:        "\x1b[19~",
	tea.KeyF9:        "\x1b[20~",
	tea.KeyF10:       "\x1b[21~",
	tea.KeyF11:       "\x1b[23~",
	tea.KeyF12:       "\x1b[24~",
}

// encodeKey returns the bytes a terminal would send for msg, or nil
// for keys with no encoding.
func encodeKey(msg tea.KeyMsg) []byte {
	var body string
	switch {
	case msg.Type == tea.KeyRunes:
		body = string(msg.Runes)
		if msg.Paste {
			body = ansi.BracketedPasteStart + body + ansi.BracketedPasteEnd
		}
	case msg.Type >= 0 && msg.Type < 0x20, msg.Type == 0x7f:
		// Control keys are their own byte value.
		body = string(rune(msg.Type))
	default:
		sequence, ok := specialKeys[msg.Type]
		if !ok {
			return nil
		}
		body = sequence
	}
	if msg.Alt {
		body = "\x1b" + body
	}
	return []byte(body)
}
