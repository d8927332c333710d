// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/termsync/terminal"
)

// Theme is the viewer's chrome palette. Terminal content keeps the
// colors the host sent.
type Theme struct {
	Placeholder  lipgloss.Color
	Unavailable  lipgloss.Color
	StatusText   lipgloss.Color
	StatusBar    lipgloss.Color
	ScrolledMark lipgloss.Color
	WarnText     lipgloss.Color
	ErrorText    lipgloss.Color
}

// DefaultTheme uses ANSI 256 colors.
var DefaultTheme = Theme{
	Placeholder:  lipgloss.Color("240"),
	Unavailable:  lipgloss.Color("238"),
	StatusText:   lipgloss.Color("252"),
	StatusBar:    lipgloss.Color("236"),
	ScrolledMark: lipgloss.Color("214"),
	WarnText:     lipgloss.Color("214"),
	ErrorText:    lipgloss.Color("196"),
}

func hexColor(color uint32) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%06x", color&0xFFFFFF))
}

// cellStyle converts a terminal style into a lipgloss style.
func cellStyle(renderer *lipgloss.Renderer, style terminal.Style) lipgloss.Style {
	rendered := renderer.NewStyle()
	if style.Foreground&terminal.ColorExplicit != 0 {
		rendered = rendered.Foreground(hexColor(style.Foreground))
	}
	if style.Background&terminal.ColorExplicit != 0 {
		rendered = rendered.Background(hexColor(style.Background))
	}
	attributes := style.Attributes
	return rendered.
		Bold(attributes&terminal.AttributeBold != 0).
		Italic(attributes&terminal.AttributeItalic != 0).
		Underline(attributes&terminal.AttributeUnderline != 0).
		Reverse(attributes&terminal.AttributeReverse != 0).
		Faint(attributes&terminal.AttributeDim != 0)
}
