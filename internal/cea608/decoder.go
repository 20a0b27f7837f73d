package cea608

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zsiec/ccextract/internal/timing"
)

// ErrBug marks panics raised for states the decoder can never reach.
var ErrBug = errors.New("cea608: internal bug")

func bugf(format string, args ...any) {
	panic(fmt.Errorf("%w: "+format, append([]any{ErrBug}, args...)...))
}

// Sink receives screens as they leave the display. The Screen is only
// valid for the duration of the call.
type Sink interface {
	Emit608(s *Screen)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(s *Screen)

// Emit608 calls f(s).
func (f SinkFunc) Emit608(s *Screen) { f(s) }

// XDSHandler consumes the field 2 byte pairs that belong to XDS packets.
type XDSHandler interface {
	// Begin is called with the fts of the first pair of an XDS block.
	Begin(start int64)
	ProcessBytes(hi, lo byte)
	EndOfPacket(checksum byte)
}

// Config holds decoder settings.
type Config struct {
	// DirectRollup emits roll-up screens after every character pair
	// instead of when a row scrolls off.
	DirectRollup bool
	// ForceRollup caps roll-up depth: 1, 2 or 3 rows. 0 leaves it alone.
	ForceRollup int
	// NoRollup erases displayed memory after each roll-up emission so
	// every row is written once.
	NoRollup bool
	// DefaultColor is used for cleared cells.
	DefaultColor Color
	// ScreensToProcess halts the decoder after that many screens. 0 means
	// no limit.
	ScreensToProcess int
	// Transcript emits single lines on CR in roll-up modes instead of
	// whole screens.
	Transcript bool
}

// DefaultConfig returns the settings used by the CLI.
func DefaultConfig() Config {
	return Config{DefaultColor: White}
}

// Report summarizes what a decoder has seen.
type Report struct {
	// Channels[i] is set once a control code for CC(i+1) was received.
	Channels [4]bool
	XDS      bool
}

// Decoder is a line-21 byte-pair decoder bound to one field and one
// caption channel. It is not safe for concurrent use.
type Decoder struct {
	log    *slog.Logger
	cfg    Config
	tc     *timing.Context
	sink   Sink
	xds    XDSHandler
	render bool

	buffers       [2]Screen
	visible       int
	cursorRow     int
	cursorCol     int
	mode          Mode
	lastHi        int
	lastLo        int
	channel       int
	newChannel    int
	myField       int
	myChannel     int
	color         Color
	font          Font
	rollupBaseRow int
	haveCursor    bool
	rollupFromPop bool

	visibleStart   int64
	lineStart      int64
	lastCharAt     int64
	screensWritten int
	halted         bool
	inXDS          bool
	bytesProcessed int64
	report         Report
	out            Screen
}

// NewDecoder creates a decoder for field (1 or 2) and channel (1 or 2).
// tc supplies and receives timing; sink may be nil to discard screens.
func NewDecoder(cfg Config, field, channel int, tc *timing.Context, sink Sink, log *slog.Logger) *Decoder {
	if field != 1 && field != 2 {
		bugf("field %d", field)
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Decoder{
		log:       log.With("component", "cea608", "field", field, "channel", channel),
		cfg:       cfg,
		tc:        tc,
		sink:      sink,
		render:    true,
		myField:   field,
		myChannel: channel,
	}
	d.reset()
	return d
}

// NewXDSScanner creates a field 2 decoder that renders nothing and only
// forwards XDS packets to h.
func NewXDSScanner(tc *timing.Context, h XDSHandler, log *slog.Logger) *Decoder {
	d := NewDecoder(DefaultConfig(), 2, 1, tc, nil, log)
	d.render = false
	d.xds = h
	return d
}

// SetXDS routes field 2 XDS pairs to h.
func (d *Decoder) SetXDS(h XDSHandler) {
	d.xds = h
}

func (d *Decoder) reset() {
	d.visible = 0
	d.cursorRow, d.cursorCol = 0, 0
	d.mode = ModePopOn
	d.lastHi, d.lastLo = 0, 0
	d.channel, d.newChannel = 1, 1
	d.color = d.cfg.DefaultColor
	d.font = Regular
	d.rollupBaseRow = 14
	d.lineStart, d.lastCharAt = -1, -1
	d.buffers[0].clear(d.cfg.DefaultColor)
	d.buffers[1].clear(d.cfg.DefaultColor)
}

// Mode returns the captioning mode in effect.
func (d *Decoder) Mode() Mode { return d.mode }

// Cursor returns the zero based cursor row and column.
func (d *Decoder) Cursor() (row, col int) { return d.cursorRow, d.cursorCol }

// Channel returns the channel the last control code addressed; 3 while an
// XDS block is in progress.
func (d *Decoder) Channel() int { return d.channel }

// Visible returns the displayed memory.
func (d *Decoder) Visible() *Screen { return &d.buffers[d.visible] }

// NonVisible returns the memory pop-on captions are loaded into.
func (d *Decoder) NonVisible() *Screen { return &d.buffers[1-d.visible] }

// Report returns the channels and XDS activity seen so far.
func (d *Decoder) Report() Report { return d.report }

// Halted reports whether Config.ScreensToProcess has been reached.
func (d *Decoder) Halted() bool { return d.halted }

// ScreensWritten returns how many non-empty screens were emitted.
func (d *Decoder) ScreensWritten() int { return d.screensWritten }

// BytesProcessed returns the number of bytes passed to DecodeBytes or Decode.
func (d *Decoder) BytesProcessed() int64 { return d.bytesProcessed }

func (d *Decoder) field() timing.Field {
	return timing.Field(d.myField)
}

// DecodeBytes decodes every pair in data. A trailing odd byte is ignored.
func (d *Decoder) DecodeBytes(data []byte) {
	for i := 0; i+1 < len(data); i += 2 {
		d.Decode(data[i], data[i+1])
	}
}

// Decode processes one byte pair and reports whether it wrote to a screen.
func (d *Decoder) Decode(hi, lo byte) bool {
	d.bytesProcessed += 2
	hi &= 0x7F
	lo &= 0x7F

	if hi == 0 && lo == 0 {
		return false
	}

	xdsField := d.myField == 2

	if hi >= 0x10 && hi <= 0x1E {
		ch := 1
		if hi > 0x17 {
			ch = 2
		}
		if xdsField {
			ch += 2
		}
		d.report.Channels[ch-1] = true
	}

	if hi >= 0x01 && hi <= 0x0E && xdsField {
		d.channel = 3
		if !d.inXDS {
			d.inXDS = true
			if d.xds != nil {
				d.xds.Begin(d.tc.FTS(timing.Field2))
			}
		}
		d.report.XDS = true
	}
	if hi == 0x0F && d.inXDS && xdsField {
		d.inXDS = false
		if d.xds != nil {
			d.xds.EndOfPacket(lo)
		}
		d.channel = d.newChannel
		return false
	}

	if hi >= 0x10 && hi <= 0x1F {
		if xdsField {
			d.inXDS = false
		}
		if !d.render {
			return false
		}
		if d.lastHi == int(hi) && d.lastLo == int(lo) {
			// Control codes are sent twice; only the first copy counts.
			d.log.Debug("skipping duplicate control code", "hi", hi, "lo", lo)
			d.lastHi, d.lastLo = -1, -1
			return false
		}
		d.lastHi, d.lastLo = int(hi), int(lo)
		return d.disCommand(hi, lo)
	}

	if d.inXDS && xdsField {
		if d.xds != nil {
			d.xds.ProcessBytes(hi, lo)
		}
		return false
	}
	if !d.render {
		return false
	}

	d.lastHi, d.lastLo = -1, -1
	wrote := false
	if hi >= 0x20 {
		if d.channel != d.myChannel {
			return false
		}
		d.handleSingle(hi)
		d.handleSingle(lo)
		wrote = true
		d.lastHi, d.lastLo = 0, 0
	}

	if wrote && d.cfg.DirectRollup && d.mode.RollUp() {
		d.writeBuffer()
		d.visibleStart = d.tc.VisibleStart(d.field())
	}
	return wrote
}

// Flush emits whatever is on display, as an erase of displayed memory would.
func (d *Decoder) Flush() {
	if !d.render {
		return
	}
	d.newChannel = d.myChannel
	d.handleCommand(0x14, 0x2C)
}

func (d *Decoder) checkChannel(hi byte) int {
	switch {
	case hi >= 0x10 && hi <= 0x17:
		return 1
	case hi >= 0x18 && hi <= 0x1E:
		return 2
	}
	return d.channel
}

// disCommand routes a control pair and reports whether a glyph was written.
func (d *Decoder) disCommand(hi, lo byte) bool {
	d.newChannel = d.checkChannel(hi)
	if hi >= 0x18 && hi <= 0x1F {
		hi -= 8
	}

	wrote := false
	switch hi {
	case 0x10:
		if lo >= 0x40 && lo <= 0x5F {
			d.handlePAC(hi, lo)
		}
	case 0x11:
		switch {
		case lo >= 0x20 && lo <= 0x2F:
			d.handleTextAttr(hi, lo)
		case lo >= 0x30 && lo <= 0x3F:
			wrote = true
			d.handleDouble(lo)
		case lo >= 0x40 && lo <= 0x7F:
			d.handlePAC(hi, lo)
		}
	case 0x12, 0x13:
		switch {
		case lo >= 0x20 && lo <= 0x3F:
			wrote = d.handleExtended(hi, lo)
		case lo >= 0x40 && lo <= 0x7F:
			d.handlePAC(hi, lo)
		}
	case 0x14, 0x15:
		switch {
		case lo >= 0x20 && lo <= 0x2F:
			d.handleCommand(hi, lo)
		case lo >= 0x40 && lo <= 0x7F:
			d.handlePAC(hi, lo)
		}
	case 0x16:
		if lo >= 0x40 && lo <= 0x7F {
			d.handlePAC(hi, lo)
		}
	case 0x17:
		switch {
		case lo >= 0x21 && lo <= 0x23:
			d.handleCommand(hi, lo)
		case lo >= 0x2E && lo <= 0x2F:
			d.handleTextAttr(hi, lo)
		case lo >= 0x40 && lo <= 0x7F:
			d.handlePAC(hi, lo)
		}
	}
	return wrote
}
