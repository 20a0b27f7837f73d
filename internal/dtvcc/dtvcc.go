// Package dtvcc decodes CEA-708 digital television closed captions.
//
// cc_data triples of type 2 and 3 are assembled into caption channel
// packets, packets are split into service blocks, and each active service
// interprets its block stream against the C0-C3 and G0-G3 code sets,
// maintaining eight windows. Windows leaving the display are composed into
// a TVScreen that is handed to a Sink.
package dtvcc

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxServices is the number of addressable caption services.
	MaxServices = 63
	// MaxWindows is the number of windows per service.
	MaxWindows = 8
	// MaxRows is the largest window height.
	MaxRows = 15
	// MaxColumns is the largest window width. Some encoders send 16-bit
	// text with doubled column counts, so this is twice the 32 the
	// standard allows.
	MaxColumns = 64
	// ScreenRows and ScreenColumns size the composed TV screen grid.
	ScreenRows    = 75
	ScreenColumns = 210

	maxPacketLen = 128
	noSequence   = -1
)

// ErrBug marks panics raised for states the decoder can never reach.
var ErrBug = errors.New("dtvcc: internal bug")

func bugf(format string, args ...any) {
	panic(fmt.Errorf("%w: "+format, append([]any{ErrBug}, args...)...))
}

// Sink receives composed screens. The TVScreen is only valid for the
// duration of the call.
type Sink interface {
	Emit708(tv *TVScreen)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(tv *TVScreen)

// Emit708 calls f(tv).
func (f SinkFunc) Emit708(tv *TVScreen) { f(tv) }

// Config holds decoder settings.
type Config struct {
	// Services lists the service numbers (1-63) to decode. Blocks for
	// other services are only counted in the report.
	Services []int
	// NoRollup clears the bottom row instead of scrolling when a carriage
	// return reaches the last row, so each row is emitted once.
	NoRollup bool
	// ResetOnSequenceGap discards every service and window when a packet
	// sequence number is skipped. By default the gap is logged and the
	// packet is decoded anyway.
	ResetOnSequenceGap bool
}

// DefaultConfig decodes the primary caption service.
func DefaultConfig() Config {
	return Config{Services: []int{1}}
}

// Report summarizes what a decoder has seen.
type Report struct {
	Resets int
	// Services[n] is set once a non-empty block for service n arrived.
	Services [MaxServices + 1]bool
}

// Direction is a print, scroll or effect direction.
type Direction uint8

const (
	LeftToRight Direction = iota
	RightToLeft
	TopToBottom
	BottomToTop
)

// Justify is the text justification of a window.
type Justify uint8

const (
	JustifyLeft Justify = iota
	JustifyRight
	JustifyCenter
	JustifyFull
)

// Opacity applies to window fill and pen colors.
type Opacity uint8

const (
	OpacitySolid Opacity = iota
	OpacityFlash
	OpacityTranslucent
	OpacityTransparent
)

// AnchorPoint says which point of a window its anchor coordinates name.
type AnchorPoint uint8

const (
	AnchorTopLeft AnchorPoint = iota
	AnchorTopCenter
	AnchorTopRight
	AnchorMiddleLeft
	AnchorMiddleCenter
	AnchorMiddleRight
	AnchorBottomLeft
	AnchorBottomCenter
	AnchorBottomRight
)

// PenColor is a pen's colors. Colors are 6-bit RGB, two bits per
// component.
type PenColor struct {
	FG        uint8
	FGOpacity Opacity
	BG        uint8
	BGOpacity Opacity
	Edge      uint8
}

// PenAttribs is a pen's style.
type PenAttribs struct {
	Size      uint8
	Offset    uint8
	TextTag   uint8
	FontTag   uint8
	EdgeType  uint8
	Underline bool
	Italic    bool
}

const (
	penSizeStandard = 1
	penOffsetNormal = 1
	textTagUndef12  = 12
	edgeUniform     = 3
)

var (
	defaultPenColor   = PenColor{FG: 0x3F}
	defaultPenAttribs = PenAttribs{Size: penSizeStandard, TextTag: textTagUndef12}
)

// WindowAttribs is set by window style presets and SetWindowAttributes.
type WindowAttribs struct {
	Justify         Justify
	PrintDirection  Direction
	ScrollDirection Direction
	WordWrap        bool
	DisplayEffect   uint8
	EffectDirection Direction
	EffectSpeed     uint8
	FillColor       uint8
	FillOpacity     Opacity
	BorderType      uint8
	BorderColor     uint8
}

// Cell is one character position of a window or screen.
type Cell struct {
	Rune  rune
	Set   bool
	Color PenColor
	Pen   PenAttribs
}

func blankCell() Cell {
	return Cell{Color: defaultPenColor, Pen: defaultPenAttribs}
}

// TVScreen is the composition of every window that was visible between
// Start and End, in screen grid coordinates.
type TVScreen struct {
	Cells   [ScreenRows][ScreenColumns]Cell
	Start   int64
	End     int64
	Service int
	// Count numbers the screens emitted for the service, from 1.
	Count int
}

func (tv *TVScreen) clear() {
	tv.Cells = [ScreenRows][ScreenColumns]Cell{}
	tv.Start, tv.End = -1, -1
}

func (tv *TVScreen) updateStart(ms int64) {
	if ms < 0 {
		return
	}
	if tv.Start == -1 || ms < tv.Start {
		tv.Start = ms
	}
}

func (tv *TVScreen) updateEnd(ms int64) {
	if ms < 0 {
		return
	}
	if tv.End == -1 || ms > tv.End {
		tv.End = ms
	}
}

// RowEmpty reports whether row r holds no characters.
func (tv *TVScreen) RowEmpty(r int) bool {
	for c := range tv.Cells[r] {
		if tv.Cells[r][c].Set {
			return false
		}
	}
	return true
}

// Empty reports whether the screen holds no characters.
func (tv *TVScreen) Empty() bool {
	for r := range tv.Cells {
		if !tv.RowEmpty(r) {
			return false
		}
	}
	return true
}

// Row returns the text of row r between its first and last set cells,
// with unset cells in between rendered as spaces.
func (tv *TVScreen) Row(r int) string {
	first, last := -1, -1
	for c := range tv.Cells[r] {
		if tv.Cells[r][c].Set {
			if first == -1 {
				first = c
			}
			last = c
		}
	}
	if first == -1 {
		return ""
	}
	var b strings.Builder
	for c := first; c <= last; c++ {
		if cell := tv.Cells[r][c]; cell.Set {
			b.WriteRune(cell.Rune)
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// Lines returns the text of every non-empty row, top to bottom.
func (tv *TVScreen) Lines() []string {
	var lines []string
	for r := range tv.Cells {
		if !tv.RowEmpty(r) {
			lines = append(lines, tv.Row(r))
		}
	}
	return lines
}
