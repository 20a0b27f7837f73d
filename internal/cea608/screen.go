package cea608

import "strings"

// Screen geometry.
const (
	Rows    = 15
	Columns = 32
)

// Color is a foreground color selected by a PAC or mid-row code.
type Color uint8

// Caption colors. UserDefined replaces white when Config.DefaultColor asks for it.
const (
	White Color = iota
	Green
	Blue
	Cyan
	Red
	Yellow
	Magenta
	UserDefined
	Black
	Transparent
)

var colorNames = [...]string{"white", "green", "blue", "cyan", "red", "yellow", "magenta", "userdefined", "black", "transparent"}

func (c Color) String() string {
	if int(c) < len(colorNames) {
		return colorNames[c]
	}
	return "unknown"
}

// Font is the style bitmask of a cell.
type Font uint8

// Font styles.
const (
	Regular           Font = 0
	Italics           Font = 1
	Underlined        Font = 2
	UnderlinedItalics Font = 3
)

// Italic reports whether the italics bit is set.
func (f Font) Italic() bool { return f&Italics != 0 }

// Underline reports whether the underline bit is set.
func (f Font) Underline() bool { return f&Underlined != 0 }

// Mode is the captioning style in effect.
type Mode int

// Captioning modes.
const (
	ModePopOn Mode = iota
	ModeRollUp2
	ModeRollUp3
	ModeRollUp4
	ModeText
	ModePaintOn
	// ModeFakeRollUp1 is a single-row roll-up forced by Config.ForceRollup.
	ModeFakeRollUp1
)

func (m Mode) String() string {
	switch m {
	case ModePopOn:
		return "POP"
	case ModeRollUp2:
		return "RU2"
	case ModeRollUp3:
		return "RU3"
	case ModeRollUp4:
		return "RU4"
	case ModeText:
		return "TXT"
	case ModePaintOn:
		return "PAI"
	case ModeFakeRollUp1:
		return "RU1"
	}
	return "???"
}

// RollUp reports whether m scrolls rows on carriage return.
func (m Mode) RollUp() bool {
	switch m {
	case ModeFakeRollUp1, ModeRollUp2, ModeRollUp3, ModeRollUp4:
		return true
	}
	return false
}

func (m Mode) keepLines() int {
	switch m {
	case ModeFakeRollUp1:
		return 1
	case ModeRollUp2:
		return 2
	case ModeRollUp3:
		return 3
	case ModeRollUp4:
		return 4
	case ModeText:
		return 7
	}
	return 0
}

// Format tells whether an emitted Screen holds a whole display or a single
// transcript line.
type Format int

// Emission formats.
const (
	FormatScreen Format = iota
	FormatLine
)

// Screen is one 15x32 caption memory. The extra column holds a terminator
// so every row can be read as a fixed-width string.
type Screen struct {
	Chars   [Rows][Columns + 1]rune
	Colors  [Rows][Columns + 1]Color
	Fonts   [Rows][Columns + 1]Font
	RowUsed [Rows]bool
	Empty   bool

	Format  Format
	Mode    Mode
	Channel int
	Field   int
	// Start and End are milliseconds on the timing context's timeline.
	Start int64
	End   int64
}

func (s *Screen) clear(def Color) {
	for i := range s.Chars {
		s.clearRow(i, def)
	}
	s.Empty = true
}

func (s *Screen) clearRow(row int, def Color) {
	for j := 0; j < Columns; j++ {
		s.Chars[row][j] = ' '
		s.Colors[row][j] = def
		s.Fonts[row][j] = Regular
	}
	s.Chars[row][Columns] = 0
	s.Colors[row][Columns] = def
	s.Fonts[row][Columns] = Regular
	s.RowUsed[row] = false
}

func (s *Screen) copyRow(dst, src int) {
	s.Chars[dst] = s.Chars[src]
	s.Colors[dst] = s.Colors[src]
	s.Fonts[dst] = s.Fonts[src]
	s.RowUsed[dst] = s.RowUsed[src]
}

// Row returns row i as a 32 rune string.
func (s *Screen) Row(i int) string {
	return string(s.Chars[i][:Columns])
}

// Lines returns the used rows, top to bottom, with trailing blanks removed.
func (s *Screen) Lines() []string {
	var out []string
	for i := 0; i < Rows; i++ {
		if !s.RowUsed[i] {
			continue
		}
		out = append(out, strings.TrimRight(s.Row(i), " "))
	}
	return out
}
