package dtvcc

// Window is one of a service's eight caption windows.
type Window struct {
	Number   int
	Defined  bool
	Visible  bool
	Priority int
	ColLock  bool
	RowLock  bool

	AnchorVertical   int
	AnchorHorizontal int
	RelativePos      bool
	AnchorPoint      AnchorPoint
	RowCount         int
	ColCount         int
	PenStyle         int
	WinStyle         int
	Attribs          WindowAttribs

	// Pen and PenColor are applied to characters written from now on.
	PenRow   int
	PenCol   int
	Pen      PenAttribs
	PenColor PenColor
	Cells    [MaxRows][MaxColumns]Cell
	Empty    bool

	Show int64
	Hide int64

	// parameters of the DefineWindow that created it
	definition [6]byte
}

// windowStyles are the predefined window styles 1-7. Index 0 is unused.
var windowStyles = [8]WindowAttribs{
	{},
	{PrintDirection: LeftToRight, ScrollDirection: BottomToTop, FillOpacity: OpacitySolid},
	{PrintDirection: LeftToRight, ScrollDirection: BottomToTop, FillOpacity: OpacityTransparent},
	{Justify: JustifyCenter, PrintDirection: LeftToRight, ScrollDirection: BottomToTop, FillOpacity: OpacitySolid},
	{PrintDirection: LeftToRight, ScrollDirection: BottomToTop, WordWrap: true, FillOpacity: OpacitySolid},
	{PrintDirection: LeftToRight, ScrollDirection: BottomToTop, WordWrap: true, FillOpacity: OpacityTransparent},
	{Justify: JustifyCenter, PrintDirection: LeftToRight, ScrollDirection: BottomToTop, WordWrap: true, FillOpacity: OpacitySolid},
	{PrintDirection: TopToBottom, ScrollDirection: RightToLeft, FillOpacity: OpacitySolid},
}

func (w *Window) setStyle(style int) {
	w.WinStyle = style
	w.Attribs = windowStyles[style]
}

// setPenStyle applies predefined pen style 1-7. Styles 2-5 pick a font,
// 6 and 7 also drop the background.
func (w *Window) setPenStyle(style int) {
	w.PenStyle = style
	w.Pen = PenAttribs{
		Size:     penSizeStandard,
		Offset:   penOffsetNormal,
		TextTag:  textTagUndef12,
		EdgeType: edgeUniform,
	}
	switch style {
	case 2, 3, 4, 5:
		w.Pen.FontTag = uint8(style - 1)
	case 6:
		w.Pen.FontTag = 3
	case 7:
		w.Pen.FontTag = 4
	}
	w.PenColor = PenColor{FG: 0x2A, FGOpacity: OpacitySolid, BGOpacity: OpacitySolid}
	if style >= 6 {
		w.PenColor.BGOpacity = OpacityTransparent
	}
}

func (w *Window) clearRow(r int) {
	if r < 0 || r >= MaxRows {
		return
	}
	for c := range w.Cells[r] {
		w.Cells[r][c] = blankCell()
	}
}

func (w *Window) clearText() {
	w.Pen = defaultPenAttribs
	w.PenColor = defaultPenColor
	for r := range w.Cells {
		w.clearRow(r)
	}
	w.Empty = true
}

func (w *Window) rollUp() {
	for r := 0; r < w.RowCount-1; r++ {
		w.Cells[r] = w.Cells[r+1]
	}
	w.clearRow(w.RowCount - 1)
}

// put writes a character at the pen and advances it in the print
// direction. The pen never leaves the window.
func (w *Window) put(r rune) {
	if w.PenRow < 0 || w.PenRow >= MaxRows || w.PenCol < 0 || w.PenCol >= MaxColumns {
		return
	}
	w.Empty = false
	w.Cells[w.PenRow][w.PenCol] = Cell{Rune: r, Set: true, Color: w.PenColor, Pen: w.Pen}
	switch w.Attribs.PrintDirection {
	case LeftToRight:
		if w.PenCol+1 < w.ColCount {
			w.PenCol++
		}
	case RightToLeft:
		if w.PenCol > 0 {
			w.PenCol--
		}
	case TopToBottom:
		if w.PenRow+1 < w.RowCount {
			w.PenRow++
		}
	case BottomToTop:
		if w.PenRow > 0 {
			w.PenRow--
		}
	}
}

// origin returns the top left cell of the window on the screen grid,
// before clamping.
func (w *Window) origin() (top, left int) {
	switch w.AnchorPoint {
	case AnchorTopLeft:
		return w.AnchorVertical, w.AnchorHorizontal
	case AnchorTopCenter:
		return w.AnchorVertical, w.AnchorHorizontal - w.ColCount/2
	case AnchorTopRight:
		return w.AnchorVertical, w.AnchorHorizontal - w.ColCount
	case AnchorMiddleLeft:
		return w.AnchorVertical - w.RowCount/2, w.AnchorHorizontal
	case AnchorMiddleCenter:
		return w.AnchorVertical - w.RowCount/2, w.AnchorHorizontal - w.ColCount/2
	case AnchorMiddleRight:
		return w.AnchorVertical - w.RowCount/2, w.AnchorHorizontal - w.ColCount
	case AnchorBottomLeft:
		return w.AnchorVertical - w.RowCount, w.AnchorHorizontal
	case AnchorBottomCenter:
		return w.AnchorVertical - w.RowCount, w.AnchorHorizontal - w.ColCount/2
	default:
		return w.AnchorVertical - w.RowCount, w.AnchorHorizontal - w.ColCount
	}
}

// bounds returns the screen area the window covers: rows [top, bottom)
// and columns [left, right), clamped to the grid.
func (w *Window) bounds() (top, bottom, left, right int) {
	top, left = w.origin()
	bottom, right = top+w.RowCount, left+w.ColCount
	top, left = max(top, 0), max(left, 0)
	bottom, right = min(bottom, ScreenRows), min(right, ScreenColumns)
	return top, bottom, left, right
}

func overlaps(a, b *Window) bool {
	at, ab, al, ar := a.bounds()
	bt, bb, bl, br := b.bounds()
	if at == bt && ab == bb && al == bl && ar == br {
		return false
	}
	return at < bb && ab > bt && al < br && ar > bl
}
