// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lineemu

import (
	"image/color"

	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/termsync/terminal"
)

// sgr updates the pen from Select Graphic Rendition parameters and
// switches the current style, defining it first if it is new.
func (e *Emulator) sgr(params ansi.Params) {
	if len(params) == 0 {
		e.pen = terminal.Style{}
	}
	for i := 0; i < len(params); i++ {
		code := params[i].Param(0)
		switch {
		case code == 0:
			e.pen = terminal.Style{}
		case code == 1:
			e.pen.Attributes |= terminal.AttributeBold
		case code == 2:
			e.pen.Attributes |= terminal.AttributeDim
		case code == 3:
			e.pen.Attributes |= terminal.AttributeItalic
		case code == 4:
			e.pen.Attributes |= terminal.AttributeUnderline
		case code == 7:
			e.pen.Attributes |= terminal.AttributeReverse
		case code == 22:
			e.pen.Attributes &^= terminal.AttributeBold | terminal.AttributeDim
		case code == 23:
			e.pen.Attributes &^= terminal.AttributeItalic
		case code == 24:
			e.pen.Attributes &^= terminal.AttributeUnderline
		case code == 27:
			e.pen.Attributes &^= terminal.AttributeReverse
		case code >= 30 && code <= 37:
			e.pen.Foreground = packColor(ansi.IndexedColor(code - 30))
		case code == 39:
			e.pen.Foreground = 0
		case code >= 40 && code <= 47:
			e.pen.Background = packColor(ansi.IndexedColor(code - 40))
		case code == 49:
			e.pen.Background = 0
		case code >= 90 && code <= 97:
			e.pen.Foreground = packColor(ansi.IndexedColor(code - 90 + 8))
		case code >= 100 && code <= 107:
			e.pen.Background = packColor(ansi.IndexedColor(code - 100 + 8))
		case code == 38 || code == 48:
			packed, used := extendedColor(params[i+1:])
			i += used
			if code == 38 {
				e.pen.Foreground = packed
			} else {
				e.pen.Background = packed
			}
		}
	}
	e.selectStyle()
}

// extendedColor decodes the arguments after 38 or 48: either 5;n or
// 2;r;g;b. It returns the packed color and the parameters consumed.
func extendedColor(rest ansi.Params) (uint32, int) {
	if len(rest) == 0 {
		return 0, 0
	}
	switch rest[0].Param(0) {
	case 5:
		if len(rest) < 2 {
			return 0, len(rest)
		}
		return packColor(ansi.IndexedColor(rest[1].Param(0))), 2
	case 2:
		if len(rest) < 4 {
			return 0, len(rest)
		}
		r, g, b := rest[1].Param(0), rest[2].Param(0), rest[3].Param(0)
		return terminal.ColorExplicit | uint32(r&0xff)<<16 | uint32(g&0xff)<<8 | uint32(b&0xff), 4
	}
	return 0, 1
}

func packColor(c color.Color) uint32 {
	r, g, b, _ := c.RGBA()
	return terminal.ColorExplicit | (r>>8)<<16 | (g>>8)<<8 | b>>8
}

func (e *Emulator) selectStyle() {
	key := e.pen
	key.ID = 0
	if key == (terminal.Style{}) {
		e.styleID = 0
		return
	}
	if id, ok := e.styles[key]; ok {
		e.styleID = id
		return
	}
	id := terminal.StyleID(len(e.styles) + 1)
	e.styles[key] = id
	defined := key
	defined.ID = id
	e.emit(terminal.Mutation{Kind: terminal.MutateStyle, Style: defined})
	e.styleID = id
}
