package dtvcc

import (
	"bytes"
	"log/slog"

	"github.com/zsiec/ccextract/internal/timing"
)

// C0 codes.
const (
	c0NUL  = 0x00
	c0ETX  = 0x03
	c0BS   = 0x08
	c0FF   = 0x0C
	c0CR   = 0x0D
	c0HCR  = 0x0E
	c0EXT1 = 0x10
	c0P16  = 0x18
)

// C1 codes.
const (
	c1CW0 = 0x80
	c1CW7 = 0x87
	c1CLW = 0x88
	c1DSW = 0x89
	c1HDW = 0x8A
	c1TGW = 0x8B
	c1DLW = 0x8C
	c1DLY = 0x8D
	c1DLC = 0x8E
	c1RST = 0x8F
	c1SPA = 0x90
	c1SPC = 0x91
	c1SPL = 0x92
	c1SWA = 0x97
	c1DF0 = 0x98
	c1DF7 = 0x9F
)

// c1Lengths is the command length, opcode included, of C1 0x80-0x9F.
var c1Lengths = [32]int{
	1, 1, 1, 1, 1, 1, 1, 1, // CW0-CW7
	2, 2, 2, 2, 2, 2, // CLW DSW HDW TGW DLW DLY
	1, 1, // DLC RST
	3, 4, 3, // SPA SPC SPL
	1, 1, 1, 1, // reserved
	5,                      // SWA
	7, 7, 7, 7, 7, 7, 7, 7, // DF0-DF7
}

var c1Names = [32]string{
	"CW0", "CW1", "CW2", "CW3", "CW4", "CW5", "CW6", "CW7",
	"CLW", "DSW", "HDW", "TGW", "DLW", "DLY", "DLC", "RST",
	"SPA", "SPC", "SPL", "RSV93", "RSV94", "RSV95", "RSV96", "SWA",
	"DF0", "DF1", "DF2", "DF3", "DF4", "DF5", "DF6", "DF7",
}

// Service decodes the block stream of one caption service.
type Service struct {
	log      *slog.Logger
	tc       *timing.Context
	sink     Sink
	noRollup bool

	number  int
	windows [MaxWindows]Window
	current int
	tv      TVScreen
	screens int
}

func newService(number int, cfg Config, tc *timing.Context, sink Sink, log *slog.Logger) *Service {
	s := &Service{
		log:      log.With("service", number),
		tc:       tc,
		sink:     sink,
		noRollup: cfg.NoRollup,
		number:   number,
	}
	s.tv.Service = number
	s.reset()
	return s
}

// Number returns the service number, 1-63.
func (s *Service) Number() int { return s.number }

// Windows returns the service's windows, indexed by window ID.
func (s *Service) Windows() []Window { return s.windows[:] }

// CurrentWindow returns the ID of the window commands apply to, or -1.
func (s *Service) CurrentWindow() int { return s.current }

// Screen returns the screen being composed. It is cleared after every
// emission.
func (s *Service) Screen() *TVScreen { return &s.tv }

// ScreensWritten returns the number of screens emitted.
func (s *Service) ScreensWritten() int { return s.screens }

func (s *Service) reset() {
	for i := range s.windows {
		w := &s.windows[i]
		w.clearText()
		w.Number = i
		w.Defined = false
		w.Visible = false
		w.Show, w.Hide = -1, -1
		w.definition = [6]byte{}
	}
	s.current = -1
	s.tv.clear()
}

// ProcessBlock interprets one service block. A command cut short by the
// end of the block ends processing of the block.
func (s *Service) ProcessBlock(data []byte) {
	for i := 0; i < len(data); {
		var used int
		switch c := data[i]; {
		case c == c0EXT1:
			if i+1 >= len(data) {
				s.log.Debug("EXT1 at end of block")
				return
			}
			used = 1 + s.handleExtended(data[i+1:])
		case c <= 0x1F:
			used = s.handleC0(data[i:])
		case c <= 0x7F:
			s.character(g0(c))
			used = 1
		case c <= 0x9F:
			used = s.handleC1(data[i:])
		default:
			s.character(g1(c))
			used = 1
		}
		if used <= 0 {
			s.log.Debug("command truncated by end of block", "code", data[i], "remaining", len(data)-i)
			return
		}
		i += used
	}
}

func (s *Service) handleC0(data []byte) int {
	c := data[0]
	n := 1
	switch {
	case c >= 0x18:
		n = 3
	case c >= 0x10:
		n = 2
	}
	if n > len(data) {
		return -1
	}
	switch c {
	case c0NUL, c0ETX:
	case c0BS:
		s.backspace()
	case c0FF:
		s.formFeed()
	case c0CR:
		s.carriageReturn()
	case c0HCR:
		s.horizontalCarriageReturn()
	case c0P16:
		r := rune(data[2])
		if data[1] != 0 {
			r |= rune(data[1]) << 8
		}
		s.character(r)
	default:
		s.log.Debug("reserved C0 code", "code", c)
	}
	return n
}

func (s *Service) handleC1(data []byte) int {
	c := data[0]
	n := c1Lengths[c-0x80]
	if n > len(data) {
		return -1
	}
	s.log.Debug("C1 command", "cmd", c1Names[c-0x80], "time", timing.FormatMS(s.tc.FTS(timing.FieldDTVCC)))
	p := data[1:n]
	switch {
	case c >= c1CW0 && c <= c1CW7:
		s.setCurrentWindow(int(c - c1CW0))
	case c == c1CLW:
		s.clearWindows(p[0])
	case c == c1DSW:
		s.displayWindows(p[0])
	case c == c1HDW:
		s.hideWindows(p[0])
	case c == c1TGW:
		s.toggleWindows(p[0])
	case c == c1DLW:
		s.deleteWindows(p[0])
	case c == c1DLY:
		s.log.Debug("delay ignored", "tenths", p[0])
	case c == c1DLC:
	case c == c1RST:
		s.reset()
	case c == c1SPA:
		s.setPenAttributes(p)
	case c == c1SPC:
		s.setPenColor(p)
	case c == c1SPL:
		s.setPenLocation(p)
	case c == c1SWA:
		s.setWindowAttributes(p)
	case c >= c1DF0 && c <= c1DF7:
		s.defineWindow(int(c-c1DF0), p)
	default:
		s.log.Debug("reserved C1 code ignored", "code", c)
	}
	return n
}

// handleExtended handles the code following EXT1 and returns the bytes
// used, EXT1 excluded. C2 and C3 carry no defined commands; only their
// lengths matter.
func (s *Service) handleExtended(data []byte) int {
	c := data[0]
	switch {
	case c <= 0x07:
		return 1
	case c <= 0x0F:
		return 2
	case c <= 0x17:
		return 3
	case c <= 0x1F:
		return 4
	case c <= 0x7F:
		s.character(g2(c))
		return 1
	case c <= 0x87:
		return 5
	case c <= 0x8F:
		return 6
	case c <= 0x9F:
		if len(data) < 2 {
			return len(data)
		}
		return int(data[1]&0x3F) + 2
	default:
		s.character(g3(c))
		return 1
	}
}

func (s *Service) currentWindow() *Window {
	if s.current < 0 {
		return nil
	}
	w := &s.windows[s.current]
	if !w.Defined {
		return nil
	}
	return w
}

func (s *Service) character(r rune) {
	w := s.currentWindow()
	if w == nil {
		s.log.Debug("character without a window", "char", string(r))
		return
	}
	w.put(r)
}

func (s *Service) backspace() {
	w := s.currentWindow()
	if w == nil {
		return
	}
	switch w.Attribs.PrintDirection {
	case LeftToRight:
		if w.PenCol > 0 {
			w.PenCol--
		}
	case RightToLeft:
		if w.PenCol+1 < w.ColCount {
			w.PenCol++
		}
	case TopToBottom:
		if w.PenRow > 0 {
			w.PenRow--
		}
	case BottomToTop:
		if w.PenRow+1 < w.RowCount {
			w.PenRow++
		}
	}
}

func (s *Service) formFeed() {
	if w := s.currentWindow(); w != nil {
		w.PenRow, w.PenCol = 0, 0
	}
}

func (s *Service) horizontalCarriageReturn() {
	if w := s.currentWindow(); w != nil {
		w.PenCol = 0
		w.clearRow(w.PenRow)
	}
}

// carriageReturn moves the pen to the start of the next line. A visible
// window is emitted first, so roll-up text produces one screen per line.
func (s *Service) carriageReturn() {
	w := s.currentWindow()
	if w == nil {
		s.log.Debug("CR without a window")
		return
	}
	scroll := false
	switch w.Attribs.PrintDirection {
	case LeftToRight, RightToLeft:
		w.PenCol = 0
		if w.Attribs.PrintDirection == RightToLeft {
			w.PenCol = w.ColCount - 1
		}
		if w.PenRow+1 < w.RowCount {
			w.PenRow++
		} else {
			scroll = true
		}
	case TopToBottom, BottomToTop:
		w.PenRow = 0
		if w.Attribs.PrintDirection == BottomToTop {
			w.PenRow = w.RowCount - 1
		}
		if w.PenCol+1 < w.ColCount {
			w.PenCol++
		} else {
			scroll = true
		}
	}

	if w.Visible {
		w.Hide = s.tc.VisibleEnd(timing.FieldDTVCC)
		s.copyToScreen(w)
		s.print()
	}
	if scroll {
		if s.noRollup {
			w.clearRow(w.PenRow)
		} else {
			w.rollUp()
		}
	}
	if w.Visible {
		w.Show = s.tc.VisibleStart(timing.FieldDTVCC)
	}
}

func (s *Service) setCurrentWindow(id int) {
	if !s.windows[id].Defined {
		s.log.Debug("current window not defined", "window", id)
		return
	}
	s.current = id
}

func (s *Service) hasVisibleWindows() bool {
	for i := range s.windows {
		if s.windows[i].Visible {
			return true
		}
	}
	return false
}

func (s *Service) clearWindows(bitmap byte) {
	changed := false
	for i := range s.windows {
		if bitmap&(1<<i) == 0 {
			continue
		}
		w := &s.windows[i]
		if w.Defined && w.Visible && !w.Empty {
			changed = true
			w.Hide = s.tc.VisibleEnd(timing.FieldDTVCC)
			s.copyToScreen(w)
		}
		w.clearText()
	}
	if changed {
		s.print()
	}
}

func (s *Service) displayWindows(bitmap byte) {
	for i := range s.windows {
		if bitmap&(1<<i) == 0 {
			continue
		}
		w := &s.windows[i]
		if !w.Defined {
			s.log.Debug("display of undefined window", "window", i)
			continue
		}
		if !w.Visible {
			w.Visible = true
			w.Show = s.tc.VisibleStart(timing.FieldDTVCC)
		}
	}
}

func (s *Service) hideWindows(bitmap byte) {
	changed := false
	for i := range s.windows {
		if bitmap&(1<<i) == 0 {
			continue
		}
		w := &s.windows[i]
		if !w.Visible {
			continue
		}
		changed = true
		w.Visible = false
		w.Hide = s.tc.VisibleEnd(timing.FieldDTVCC)
		if !w.Empty {
			s.copyToScreen(w)
		}
	}
	if changed && !s.hasVisibleWindows() {
		s.print()
	}
}

func (s *Service) toggleWindows(bitmap byte) {
	changed := false
	for i := range s.windows {
		w := &s.windows[i]
		if bitmap&(1<<i) == 0 || !w.Defined {
			continue
		}
		w.Visible = !w.Visible
		if w.Visible {
			w.Show = s.tc.VisibleStart(timing.FieldDTVCC)
			continue
		}
		w.Hide = s.tc.VisibleEnd(timing.FieldDTVCC)
		if !w.Empty {
			changed = true
			s.copyToScreen(w)
		}
	}
	if changed && !s.hasVisibleWindows() {
		s.print()
	}
}

func (s *Service) deleteWindows(bitmap byte) {
	changed := false
	for i := range s.windows {
		if bitmap&(1<<i) == 0 {
			continue
		}
		w := &s.windows[i]
		if w.Defined && w.Visible && !w.Empty {
			changed = true
			w.Hide = s.tc.VisibleEnd(timing.FieldDTVCC)
			s.copyToScreen(w)
			if i == s.current {
				s.print()
			}
		}
		w.Defined = false
		w.Visible = false
		w.Show, w.Hide = -1, -1
		if i == s.current {
			// Commands need a new CWx or DFx before they apply again.
			s.current = -1
		}
	}
	if changed && !s.hasVisibleWindows() {
		s.print()
	}
}

func (s *Service) defineWindow(id int, p []byte) {
	w := &s.windows[id]
	if w.Defined && bytes.Equal(w.definition[:], p) {
		s.log.Debug("repeated window definition ignored", "window", id)
		return
	}

	rowCount := int(p[3]&0x0F) + 1
	colCount := int(p[4]&0x3F) + 1
	if rowCount > MaxRows {
		s.log.Debug("window row count clamped", "window", id, "rows", rowCount)
		rowCount = MaxRows
	}
	anchorV := int(p[1] & 0x7F)
	anchorH := int(p[2])
	// Some encoders swap the anchor coordinates; keep the window on screen.
	anchorV = min(anchorV, ScreenRows-rowCount)
	anchorH = min(anchorH, ScreenColumns-colCount)
	penStyle := int(p[5] & 0x07)
	winStyle := int(p[5]>>3) & 0x07

	created := !w.Defined
	restyled := winStyle > 0 && !created && w.WinStyle != winStyle

	w.Number = id
	w.Priority = int(p[0] & 0x07)
	w.ColLock = p[0]&0x08 != 0
	w.RowLock = p[0]&0x10 != 0
	w.Visible = p[0]&0x20 != 0
	w.AnchorVertical = anchorV
	w.RelativePos = p[1]&0x80 != 0
	w.AnchorHorizontal = anchorH
	w.RowCount = rowCount
	w.AnchorPoint = AnchorPoint(p[3] >> 4)
	w.ColCount = colCount

	if created {
		w.PenRow, w.PenCol = 0, 0
		w.Defined = true
		w.clearText()
		if winStyle == 0 {
			winStyle = 1
		}
		if penStyle == 0 {
			penStyle = 1
		}
	} else if restyled {
		w.clearText()
	}
	if winStyle > 0 {
		w.setStyle(winStyle)
	}
	if penStyle > 0 {
		w.setPenStyle(penStyle)
	}

	s.log.Debug("window defined", "window", id, "visible", w.Visible,
		"anchor", w.AnchorPoint, "row", anchorV, "col", anchorH,
		"rows", rowCount, "cols", colCount, "win_style", winStyle, "pen_style", penStyle)

	s.setCurrentWindow(id)
	copy(w.definition[:], p)
	if w.Visible {
		w.Show = s.tc.VisibleStart(timing.FieldDTVCC)
	}
}

func (s *Service) setWindowAttributes(p []byte) {
	w := s.currentWindow()
	if w == nil {
		s.log.Debug("SWA without a window")
		return
	}
	w.Attribs = WindowAttribs{
		FillColor:       p[0] & 0x3F,
		FillOpacity:     Opacity(p[0] >> 6),
		BorderColor:     p[1] & 0x3F,
		BorderType:      (p[2]>>5)&0x04 | p[1]>>6,
		Justify:         Justify(p[2] & 0x03),
		ScrollDirection: Direction(p[2]>>2) & 0x03,
		PrintDirection:  Direction(p[2]>>4) & 0x03,
		WordWrap:        p[2]&0x40 != 0,
		DisplayEffect:   p[3] & 0x03,
		EffectDirection: Direction(p[3]>>2) & 0x03,
		EffectSpeed:     p[3] >> 4,
	}
}

func (s *Service) setPenAttributes(p []byte) {
	w := s.currentWindow()
	if w == nil {
		s.log.Debug("SPA without a window")
		return
	}
	w.Pen = PenAttribs{
		Size:      p[0] & 0x03,
		Offset:    (p[0] >> 2) & 0x03,
		TextTag:   p[0] >> 4,
		FontTag:   p[1] & 0x07,
		EdgeType:  (p[1] >> 3) & 0x07,
		Underline: p[1]&0x40 != 0,
		Italic:    p[1]&0x80 != 0,
	}
}

func (s *Service) setPenColor(p []byte) {
	w := s.currentWindow()
	if w == nil {
		s.log.Debug("SPC without a window")
		return
	}
	w.PenColor = PenColor{
		FG:        p[0] & 0x3F,
		FGOpacity: Opacity(p[0] >> 6),
		BG:        p[1] & 0x3F,
		BGOpacity: Opacity(p[1] >> 6),
		Edge:      p[2] & 0x3F,
	}
}

func (s *Service) setPenLocation(p []byte) {
	w := s.currentWindow()
	if w == nil {
		s.log.Debug("SPL without a window")
		return
	}
	w.PenRow = int(p[0] & 0x0F)
	w.PenCol = int(p[1] & 0x3F)
}

// copyToScreen places w on the screen by its anchor point unless a
// visible window of higher priority overlaps it.
func (s *Service) copyToScreen(w *Window) {
	if w.AnchorPoint > AnchorBottomRight {
		s.log.Debug("invalid anchor point, window skipped", "window", w.Number, "anchor", w.AnchorPoint)
		return
	}
	for i := range s.windows {
		o := &s.windows[i]
		if o != w && o.Visible && o.Priority < w.Priority && overlaps(w, o) {
			s.log.Debug("window covered by higher priority window", "window", w.Number, "by", i)
			return
		}
	}

	top, left := w.origin()
	top, left = max(top, 0), max(left, 0)
	if top >= ScreenRows || left >= ScreenColumns {
		return
	}
	rows := min(w.RowCount, ScreenRows-top, MaxRows)
	cols := min(w.ColCount, ScreenColumns-left, MaxColumns)
	for r := 0; r < rows; r++ {
		copy(s.tv.Cells[top+r][left:left+cols], w.Cells[r][:cols])
	}
	s.tv.updateStart(w.Show)
	s.tv.updateEnd(w.Hide)
}

// print emits the composed screen, if it holds any text, and clears it.
func (s *Service) print() {
	s.tv.updateEnd(s.tc.VisibleEnd(timing.FieldDTVCC))
	if s.tv.Start < 0 || s.tv.End < s.tv.Start {
		if s.tv.Start < 0 {
			s.tv.Start = s.tv.End
		}
		s.tv.End = max(s.tv.End, s.tv.Start)
		s.tc.RaiseMinimumFTS(s.tv.End)
	}
	if !s.tv.Empty() {
		s.screens++
		s.tv.Count = s.screens
		s.log.Debug("screen", "start", timing.FormatMS(s.tv.Start), "end", timing.FormatMS(s.tv.End))
		if s.sink != nil {
			s.sink.Emit708(&s.tv)
		}
	}
	s.tv.clear()
}

// flush emits every visible window and hides it.
func (s *Service) flush() {
	if !s.hasVisibleWindows() {
		return
	}
	for i := range s.windows {
		if w := &s.windows[i]; w.Visible {
			w.Hide = s.tc.VisibleEnd(timing.FieldDTVCC)
			s.copyToScreen(w)
		}
	}
	for i := range s.windows {
		s.windows[i].Visible = false
	}
	s.print()
}
