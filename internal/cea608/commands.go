package cea608

// rowTable maps ((hi<<1)&14)|((lo>>5)&1) of a PAC to a 1-based row.
var rowTable = [16]int{11, -1, 1, 2, 3, 4, 12, 13, 14, 15, 5, 6, 7, 8, 9, 10}

type pacAttr struct {
	color  Color
	font   Font
	indent int
}

// pacAttribs is indexed by PAC lo - 0x40 (or - 0x60). Entries 0x00-0x0F
// are also the mid-row codes 0x20-0x2F.
var pacAttribs = [32]pacAttr{
	{White, Regular, 0}, {White, Underlined, 0},
	{Green, Regular, 0}, {Green, Underlined, 0},
	{Blue, Regular, 0}, {Blue, Underlined, 0},
	{Cyan, Regular, 0}, {Cyan, Underlined, 0},
	{Red, Regular, 0}, {Red, Underlined, 0},
	{Yellow, Regular, 0}, {Yellow, Underlined, 0},
	{Magenta, Regular, 0}, {Magenta, Underlined, 0},
	{White, Italics, 0}, {White, UnderlinedItalics, 0},
	{White, Regular, 0}, {White, Underlined, 0},
	{White, Regular, 4}, {White, Underlined, 4},
	{White, Regular, 8}, {White, Underlined, 8},
	{White, Regular, 12}, {White, Underlined, 12},
	{White, Regular, 16}, {White, Underlined, 16},
	{White, Regular, 20}, {White, Underlined, 20},
	{White, Regular, 24}, {White, Underlined, 24},
	{White, Regular, 28}, {White, Underlined, 28},
}

type command int

const (
	cmdUnknown command = iota
	cmdEraseDisplayed
	cmdResumeCaptionLoading
	cmdEndOfCaption
	cmdTabOffset1
	cmdTabOffset2
	cmdTabOffset3
	cmdRollUp2
	cmdRollUp3
	cmdRollUp4
	cmdCarriageReturn
	cmdEraseNonDisplayed
	cmdBackspace
	cmdResumeTextDisplay
	cmdAlarmOff
	cmdAlarmOn
	cmdDeleteToEndOfRow
	cmdResumeDirectCaptioning
	cmdFakeRollUp1
)

var commandNames = [...]string{
	"unknown", "EDM", "RCL", "EOC", "TO1", "TO2", "TO3", "RU2", "RU3", "RU4",
	"CR", "ENM", "BS", "RTD", "AOF", "AON", "DER", "RDC", "RU1",
}

func (c command) String() string { return commandNames[c] }

// miscCommands maps the low byte of 0x14 xx control codes.
var miscCommands = map[byte]command{
	0x20: cmdResumeCaptionLoading,
	0x21: cmdBackspace,
	0x22: cmdAlarmOff,
	0x23: cmdAlarmOn,
	0x24: cmdDeleteToEndOfRow,
	0x25: cmdRollUp2,
	0x26: cmdRollUp3,
	0x27: cmdRollUp4,
	0x29: cmdResumeDirectCaptioning,
	0x2B: cmdResumeTextDisplay,
	0x2C: cmdEraseDisplayed,
	0x2D: cmdCarriageReturn,
	0x2E: cmdEraseNonDisplayed,
	0x2F: cmdEndOfCaption,
}

func (d *Decoder) parseCommand(hi, lo byte) command {
	if hi == 0x15 {
		hi = 0x14
	}
	var cmd command
	switch hi {
	case 0x14, 0x1C:
		cmd = miscCommands[lo]
	case 0x17, 0x1F:
		switch lo {
		case 0x21:
			cmd = cmdTabOffset1
		case 0x22:
			cmd = cmdTabOffset2
		case 0x23:
			cmd = cmdTabOffset3
		}
	}

	switch d.cfg.ForceRollup {
	case 1:
		if cmd == cmdRollUp2 || cmd == cmdRollUp3 || cmd == cmdRollUp4 {
			cmd = cmdFakeRollUp1
		}
	case 2:
		if cmd == cmdRollUp3 || cmd == cmdRollUp4 {
			cmd = cmdRollUp2
		}
	case 3:
		if cmd == cmdRollUp4 {
			cmd = cmdRollUp3
		}
	}
	return cmd
}

// writing returns the memory characters go to in the current mode.
func (d *Decoder) writing() *Screen {
	switch d.mode {
	case ModePopOn:
		return &d.buffers[1-d.visible]
	case ModeFakeRollUp1, ModeRollUp2, ModeRollUp3, ModeRollUp4, ModePaintOn, ModeText:
		return &d.buffers[d.visible]
	}
	bugf("illegal caption mode %d", d.mode)
	return nil
}

func (d *Decoder) handleCommand(hi, lo byte) {
	d.channel = d.newChannel
	if d.channel != d.myChannel {
		return
	}

	cmd := d.parseCommand(hi, lo)
	d.log.Debug("command", "hi", hi, "lo", lo, "cmd", cmd.String(), "mode", d.mode.String(),
		"row", d.cursorRow, "col", d.cursorCol)

	switch cmd {
	case cmdBackspace:
		if d.cursorCol > 0 {
			d.cursorCol--
			if d.cursorRow < Rows {
				d.writing().Chars[d.cursorRow][d.cursorCol] = ' '
			}
		}
	case cmdTabOffset1:
		d.tab(1)
	case cmdTabOffset2:
		d.tab(2)
	case cmdTabOffset3:
		d.tab(3)
	case cmdResumeCaptionLoading:
		d.mode = ModePopOn
	case cmdResumeTextDisplay:
		d.mode = ModeText
	case cmdFakeRollUp1, cmdRollUp2, cmdRollUp3, cmdRollUp4:
		d.startRollUp(cmd)
	case cmdCarriageReturn:
		d.carriageReturn()
	case cmdEraseNonDisplayed:
		d.eraseMemory(false)
	case cmdEraseDisplayed:
		if d.cfg.Transcript && d.mode.RollUp() {
			// Earlier rows were written by CR already.
			d.writeLine()
		} else {
			if d.cfg.Transcript {
				d.lineStart = d.visibleStart
			}
			d.writeBuffer()
		}
		d.eraseMemory(true)
		d.visibleStart = d.tc.VisibleStart(d.field())
	case cmdEndOfCaption:
		// The displayed memory is leaving: its end time is known now.
		d.writeBuffer()
		d.visible = 1 - d.visible
		d.visibleStart = d.tc.VisibleStart(d.field())
		d.cursorRow, d.cursorCol = 0, 0
		d.color = d.cfg.DefaultColor
		d.font = Regular
		d.mode = ModePopOn
	case cmdDeleteToEndOfRow:
		d.deleteToEndOfRow()
	case cmdAlarmOff, cmdAlarmOn:
	case cmdResumeDirectCaptioning:
		d.mode = ModePaintOn
	default:
		d.log.Debug("unhandled command", "hi", hi, "lo", lo)
	}
}

func (d *Decoder) tab(n int) {
	d.cursorCol += n
	if d.cursorCol > Columns-1 {
		d.cursorCol = Columns - 1
	}
}

func (d *Decoder) startRollUp(cmd command) {
	if d.mode == ModePopOn || d.mode == ModePaintOn {
		// Switching style erases whatever pop-on or paint-on caption is
		// present in either memory.
		d.writeBuffer()
		d.eraseMemory(true)
		d.rollupFromPop = true
		d.lineStart = -1
	}
	d.eraseMemory(false)

	// Without a PAC, roll-up starts at the bottom row. A previous
	// position is kept when resuming from another channel.
	if d.mode != ModeText && !d.haveCursor {
		d.cursorRow = Rows - 1
		d.cursorCol = 0
		d.haveCursor = true
	}

	switch cmd {
	case cmdFakeRollUp1:
		d.mode = ModeFakeRollUp1
	case cmdRollUp2:
		d.mode = ModeRollUp2
	case cmdRollUp3:
		d.mode = ModeRollUp3
	case cmdRollUp4:
		d.mode = ModeRollUp4
	}
}

func (d *Decoder) carriageReturn() {
	switch d.mode {
	case ModePaintOn:
		return
	case ModePopOn:
		d.cursorCol = 0
		if d.cursorRow < Rows {
			d.cursorRow++
		}
		return
	}

	if d.cfg.Transcript {
		d.writeLine()
	}

	changes := d.checkRollUp()
	if changes {
		if d.rollupFromPop && d.lineStart > 0 {
			d.visibleStart = d.lineStart
			d.rollupFromPop = false
		}
		// Only write the buffer when a row actually scrolls off.
		if !d.cfg.Transcript {
			d.writeBuffer()
			if d.cfg.NoRollup {
				d.eraseMemory(true)
			}
		}
	}
	d.rollUp()

	if d.rollupFromPop && !changes {
		d.lineStart = d.tc.FTS(d.field())
	} else {
		d.lineStart = -1
	}
	if changes {
		d.visibleStart = d.tc.VisibleStart(d.field())
	}
	d.cursorCol = 0
}

func (d *Decoder) usedRows(s *Screen) (first, last, count int) {
	first, last = -1, -1
	for i := 0; i < Rows; i++ {
		if s.RowUsed[i] {
			count++
			if first == -1 {
				first = i
			}
			last = i
		}
	}
	return first, last, count
}

// checkRollUp reports whether a roll-up would push a row off the display.
func (d *Decoder) checkRollUp() bool {
	keep := d.mode.keepLines()
	if keep == 0 {
		return false
	}
	s := &d.buffers[d.visible]
	if s.RowUsed[0] {
		return true
	}
	first, last, _ := d.usedRows(s)
	if last == -1 {
		return false
	}
	if last-first+1 >= keep {
		return true
	}
	return first-1 <= d.cursorRow-keep
}

// rollUp scrolls the roll-up window one row and reports whether a row
// left the display.
func (d *Decoder) rollUp() bool {
	keep := d.mode.keepLines()
	s := &d.buffers[d.visible]
	_, last, before := d.usedRows(s)
	if last == -1 {
		return false
	}

	for j := last - keep + 1; j < last; j++ {
		if j >= 0 {
			s.copyRow(j, j+1)
		}
	}
	for j := 0; j < 1+d.cursorRow-keep && j < Rows; j++ {
		s.clearRow(j, d.cfg.DefaultColor)
	}
	s.clearRow(last, d.cfg.DefaultColor)

	_, _, after := d.usedRows(s)
	if after > keep {
		d.log.Warn("roll-up kept too many rows", "want", keep, "have", after)
	}
	if after == 0 {
		s.Empty = true
	}
	return after != before
}

func (d *Decoder) eraseMemory(displayed bool) {
	if displayed {
		d.buffers[d.visible].clear(d.cfg.DefaultColor)
		return
	}
	d.buffers[1-d.visible].clear(d.cfg.DefaultColor)
}

func (d *Decoder) deleteToEndOfRow() {
	if d.mode == ModeText || d.cursorRow >= Rows {
		return
	}
	s := d.writing()
	for i := d.cursorCol; i < Columns; i++ {
		s.Chars[d.cursorRow][i] = ' '
		s.Colors[d.cursorRow][i] = d.cfg.DefaultColor
		s.Fonts[d.cursorRow][i] = d.font
	}
}

// writeChar puts r at the cursor and advances it, stopping at the last column.
func (d *Decoder) writeChar(r rune) {
	if d.mode == ModeText {
		return
	}
	s := d.writing()
	if d.cursorRow >= Rows || d.cursorCol >= Columns {
		return
	}
	s.Chars[d.cursorRow][d.cursorCol] = r
	s.Colors[d.cursorRow][d.cursorCol] = d.color
	s.Fonts[d.cursorRow][d.cursorCol] = d.font
	s.RowUsed[d.cursorRow] = true

	if s.Empty && d.mode != ModePopOn && !d.rollupFromPop {
		// Coming from pop-on, the start is set when CR scrolls.
		d.visibleStart = d.tc.VisibleStart(d.field())
	}
	s.Empty = false

	if d.cursorCol < Columns-1 {
		d.cursorCol++
	}
	now := d.tc.FTS(d.field())
	if d.lineStart == -1 {
		d.lineStart = now
	}
	d.lastCharAt = now
}

func (d *Decoder) handleSingle(c byte) {
	if c < 0x20 || d.channel != d.myChannel {
		return
	}
	d.writeChar(basicRune(c))
}

func (d *Decoder) handleDouble(lo byte) {
	if d.channel != d.myChannel {
		return
	}
	d.writeChar(specialRune(lo))
}

// handleExtended writes an accented character over the fallback glyph
// basic decoders were sent just before it.
func (d *Decoder) handleExtended(hi, lo byte) bool {
	d.correctChannel()
	d.channel = d.newChannel
	if d.channel != d.myChannel {
		return false
	}
	if d.cursorCol > 0 {
		d.cursorCol--
	}
	d.writeChar(extendedRune(hi, lo))
	return true
}

// handleTextAttr applies a mid-row code, which also occupies a cell.
func (d *Decoder) handleTextAttr(hi, lo byte) {
	d.channel = d.newChannel
	if d.channel != d.myChannel {
		return
	}
	if hi != 0x11 || lo < 0x20 || lo > 0x2F {
		d.log.Debug("not a text attribute", "hi", hi, "lo", lo)
		return
	}
	a := pacAttribs[lo-0x20]
	d.color = a.color
	d.font = a.font
	d.writeChar(' ')
}

// correctChannel folds CC3/CC4 back onto the field's two channels; PACs
// and extended characters only select between 1 and 2.
func (d *Decoder) correctChannel() {
	if d.newChannel > 2 {
		d.newChannel -= 2
	}
}

func (d *Decoder) handlePAC(hi, lo byte) {
	d.correctChannel()
	d.channel = d.newChannel
	if d.channel != d.myChannel {
		return
	}

	row := rowTable[((hi<<1)&14)|((lo>>5)&1)]
	switch {
	case lo >= 0x40 && lo <= 0x5F:
		lo -= 0x40
	case lo >= 0x60 && lo <= 0x7F:
		lo -= 0x60
	default:
		d.log.Debug("not a PAC", "hi", hi, "lo", lo)
		return
	}
	if row < 1 {
		d.log.Debug("PAC without row", "hi", hi)
		return
	}

	a := pacAttribs[lo]
	d.color = a.color
	d.font = a.font
	if d.cfg.DefaultColor == UserDefined && (d.color == White || d.color == Transparent) {
		d.color = UserDefined
	}
	// Text mode ignores the row but honours the indent.
	if d.mode != ModeText {
		d.cursorRow = row - 1
	}
	d.rollupBaseRow = row - 1
	d.cursorCol = a.indent
	d.haveCursor = true

	if d.mode.RollUp() {
		s := d.writing()
		for j := row; j < Rows; j++ {
			if s.RowUsed[j] {
				s.clearRow(j, d.cfg.DefaultColor)
			}
		}
	}
}

// writeBuffer emits the displayed memory with its visible interval.
func (d *Decoder) writeBuffer() bool {
	if d.cfg.ScreensToProcess > 0 && d.screensWritten >= d.cfg.ScreensToProcess {
		d.halted = true
		return false
	}

	s := &d.buffers[d.visible]
	if d.mode == ModeFakeRollUp1 && d.lineStart != -1 {
		d.visibleStart = d.lineStart
	}
	if s.Empty {
		return false
	}
	start := d.visibleStart
	end := d.tc.VisibleEnd(d.field())
	if end < start {
		end = start
		d.tc.RaiseMinimumFTS(end)
	}

	d.out = *s
	d.out.Format = FormatScreen
	d.out.Mode = d.mode
	d.out.Channel = d.channel
	d.out.Field = d.myField
	d.out.Start = start
	d.out.End = end
	d.screensWritten++
	if d.sink != nil {
		d.sink.Emit608(&d.out)
	}
	return true
}

// writeLine emits only the cursor row, for transcripts.
func (d *Decoder) writeLine() {
	s := &d.buffers[d.visible]
	if s.Empty {
		return
	}
	start := d.lineStart
	end := d.tc.FTS(d.field())
	if start < 0 || start > end {
		start = end
	}

	d.out = *s
	for i := range d.out.RowUsed {
		d.out.RowUsed[i] = i == d.cursorRow
	}
	d.out.Format = FormatLine
	d.out.Mode = d.mode
	d.out.Channel = d.channel
	d.out.Field = d.myField
	d.out.Start = start
	d.out.End = end
	if d.sink != nil {
		d.sink.Emit608(&d.out)
	}
}
