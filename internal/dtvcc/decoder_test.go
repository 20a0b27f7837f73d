package dtvcc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/ccextract/internal/timing"
)

type collector struct {
	screens []TVScreen
}

func (c *collector) Emit708(tv *TVScreen) {
	c.screens = append(c.screens, *tv)
}

func newTestDecoder(t *testing.T, cfg Config) (*Decoder, *timing.Context, *collector) {
	t.Helper()
	tc := timing.New(timing.DefaultConfig(), nil)
	c := &collector{}
	return NewDecoder(cfg, tc, c, nil), tc, c
}

// feed sends body as one packet with sequence number seq.
func feed(d *Decoder, seq int, body ...byte) {
	pkt := append([]byte{0}, body...)
	if len(pkt)%2 == 1 {
		pkt = append(pkt, 0)
	}
	pkt[0] = byte(seq<<6) | byte(len(pkt)/2)&0x3F
	d.ProcessCCData(true, ccTypeStart, pkt[0], pkt[1])
	for i := 2; i < len(pkt); i += 2 {
		d.ProcessCCData(true, ccTypeData, pkt[i], pkt[i+1])
	}
}

// svc wraps data in a standard service block header.
func svc(n int, data ...byte) []byte {
	return append([]byte{byte(n<<5) | byte(len(data))}, data...)
}

// df returns a DefineWindow command for a top left anchored window.
func df(id int, visible bool, row, col, rows, cols int) []byte {
	var p0 byte
	if visible {
		p0 |= 0x20
	}
	return []byte{c1DF0 + byte(id), p0, byte(row), byte(col), byte(rows - 1), byte(cols - 1), 0x00}
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestDefineWriteToggle(t *testing.T) {
	t.Parallel()

	d, tc, c := newTestDecoder(t, DefaultConfig())
	tc.SetFTSNow(1000)

	// One type 3 pair and eight type 2 pairs.
	d.ProcessCCData(true, ccTypeStart, 0x09, 0x2F)
	for _, p := range [][2]byte{
		{0x98, 0x00}, {0x0A, 0x14}, {0x00, 0x1F}, {0x00, 0x91},
		{0x30, 0x00}, {0x00, 'H'}, {'i', 0x8B}, {0x01, 0x00},
	} {
		d.ProcessCCData(true, ccTypeData, p[0], p[1])
	}

	s := d.Service(1)
	w := s.Windows()[0]
	require.True(t, w.Defined)
	require.True(t, w.Visible)
	require.Equal(t, 0, s.CurrentWindow())
	require.Equal(t, 'H', w.Cells[0][0].Rune)
	require.Empty(t, c.screens)

	tc.SetFTSNow(3000)
	d.Flush()

	require.Len(t, c.screens, 1)
	tv := c.screens[0]
	require.Equal(t, 'H', tv.Cells[10][20].Rune)
	require.Equal(t, 'i', tv.Cells[10][21].Rune)
	require.Equal(t, uint8(0x30), tv.Cells[10][20].Color.FG)
	require.Equal(t, []string{"Hi"}, tv.Lines())
	require.Equal(t, int64(1000), tv.Start)
	require.Equal(t, int64(3000), tv.End)
	require.Equal(t, 1, tv.Service)
	require.Equal(t, 1, tv.Count)
	require.False(t, s.Windows()[0].Visible)
	require.True(t, d.Report().Services[1])
}

func TestTruncatedBlockResets(t *testing.T) {
	t.Parallel()

	d, _, c := newTestDecoder(t, DefaultConfig())
	feed(d, 0, svc(1, df(0, true, 0, 0, 1, 10)...)...)
	require.True(t, d.Service(1).Windows()[0].Defined)

	// The block claims five bytes, the packet carries three.
	feed(d, 1, 0x25, 'A', 'B')

	require.Equal(t, 1, d.Report().Resets)
	w := d.Service(1).Windows()[0]
	require.False(t, w.Defined)
	require.True(t, w.Empty)
	require.Equal(t, -1, d.Service(1).CurrentWindow())
	require.Empty(t, c.screens)
}

func TestMismatchedPacketAppliesNothing(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, Config{Services: []int{1, 2}})
	feed(d, 0, cat(
		svc(1, df(0, false, 0, 0, 1, 10)...),
		[]byte{0x45, 'x'},
	)...)

	require.Equal(t, 1, d.Report().Resets)
	require.False(t, d.Service(1).Windows()[0].Defined)
	require.False(t, d.Report().Services[1])
}

func TestSequenceGap(t *testing.T) {
	t.Parallel()

	t.Run("decodes across gap", func(t *testing.T) {
		d, _, _ := newTestDecoder(t, DefaultConfig())
		feed(d, 0, svc(1, df(0, false, 0, 0, 1, 10)...)...)
		feed(d, 1, svc(1, 'A')...)
		feed(d, 3, svc(1, 'B')...)

		require.Zero(t, d.Report().Resets)
		w := d.Service(1).Windows()[0]
		require.True(t, w.Defined)
		require.Equal(t, 'A', w.Cells[0][0].Rune)
		require.Equal(t, 'B', w.Cells[0][1].Rune)
	})

	t.Run("reset on gap", func(t *testing.T) {
		d, _, _ := newTestDecoder(t, Config{Services: []int{1}, ResetOnSequenceGap: true})
		feed(d, 0, svc(1, df(0, false, 0, 0, 1, 10)...)...)
		feed(d, 2, svc(1, 'A')...)

		require.Equal(t, 1, d.Report().Resets)
		require.False(t, d.Service(1).Windows()[0].Defined)
	})

	t.Run("wraps", func(t *testing.T) {
		d, _, _ := newTestDecoder(t, DefaultConfig())
		for i := 0; i < 6; i++ {
			feed(d, i%4, svc(1, 0x00)...)
		}
		require.Zero(t, d.Report().Resets)
	})
}

func TestExtendedServiceHeader(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, Config{Services: []int{1, 10}})
	data := df(3, true, 5, 5, 2, 20)
	feed(d, 0, append([]byte{0xE0 | byte(len(data)), 10}, data...)...)

	require.True(t, d.Report().Services[10])
	require.False(t, d.Report().Services[1])
	require.True(t, d.Service(10).Windows()[3].Defined)
	require.False(t, d.Service(1).Windows()[3].Defined)
}

func TestNullServiceEndsWalk(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, DefaultConfig())
	feed(d, 0, cat(
		[]byte{0x03, 'x', 'x', 'x'},
		svc(1, df(0, false, 0, 0, 1, 10)...),
	)...)

	require.Zero(t, d.Report().Resets)
	require.False(t, d.Report().Services[1])
	require.False(t, d.Service(1).Windows()[0].Defined)
}

func TestInactiveServiceCounted(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, DefaultConfig())
	feed(d, 0, svc(2, 'A')...)

	require.True(t, d.Report().Services[2])
	require.Nil(t, d.Service(2))
}

func TestInvalidServicesIgnored(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, Config{Services: []int{0, 64}})
	require.False(t, d.Active())
	require.Nil(t, d.Service(0))
	require.Nil(t, d.Service(64))
}

func TestPacketStartDiscardsPartialPacket(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, DefaultConfig())
	// Declares four pairs but only one follows.
	d.ProcessCCData(true, ccTypeStart, 0x04, 0x00)
	d.ProcessCCData(true, ccTypeData, 0x00, 0x00)

	feed(d, 1, svc(1, df(0, false, 0, 0, 1, 10)...)...)
	require.True(t, d.Service(1).Windows()[0].Defined)
	require.Zero(t, d.Report().Resets)
}

func TestDataWithoutStartIgnored(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, DefaultConfig())
	d.ProcessCCData(true, ccTypeData, 0x21, 'A')
	d.ProcessCCData(false, ccTypeStart, 0x01, 0x21)
	require.Zero(t, d.packetLen)
	require.False(t, d.headerParsed)
}

func TestUnknownCCTypePanics(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, DefaultConfig())
	defer func() {
		err, ok := recover().(error)
		require.True(t, ok)
		require.True(t, errors.Is(err, ErrBug))
	}()
	d.ProcessCCData(true, 0, 0x14, 0x20)
}

func TestCarriageReturnRollsUp(t *testing.T) {
	t.Parallel()

	for _, noRollup := range []bool{false, true} {
		d, tc, c := newTestDecoder(t, Config{Services: []int{1}, NoRollup: noRollup})
		feed(d, 0, svc(1, cat(df(0, true, 10, 0, 2, 32), []byte{'A', c0CR})...)...)
		require.Len(t, c.screens, 1)
		require.Equal(t, []string{"A"}, c.screens[0].Lines())

		tc.SetFTSNow(2000)
		feed(d, 1, svc(1, 'B', c0CR)...)
		require.Len(t, c.screens, 2)
		require.Equal(t, []string{"A", "B"}, c.screens[1].Lines())
		require.Greater(t, c.screens[1].Start, c.screens[0].End)

		w := d.Service(1).Windows()[0]
		require.Equal(t, 1, w.PenRow)
		require.False(t, w.Cells[1][0].Set)
		if noRollup {
			require.Equal(t, 'A', w.Cells[0][0].Rune)
		} else {
			require.Equal(t, 'B', w.Cells[0][0].Rune)
		}
	}
}

func TestHiddenWindowNotEmittedOnCR(t *testing.T) {
	t.Parallel()

	d, _, c := newTestDecoder(t, DefaultConfig())
	feed(d, 0, svc(1, cat(df(0, false, 0, 0, 2, 32), []byte{'A', c0CR, 'B'})...)...)

	require.Empty(t, c.screens)
	w := d.Service(1).Windows()[0]
	require.Equal(t, 'A', w.Cells[0][0].Rune)
	require.Equal(t, 'B', w.Cells[1][0].Rune)
}

func TestDisplayAndHideWindows(t *testing.T) {
	t.Parallel()

	d, tc, c := newTestDecoder(t, DefaultConfig())
	feed(d, 0, svc(1, cat(df(1, false, 0, 0, 1, 10), []byte{'O', 'K', c1DSW, 0x02})...)...)
	require.True(t, d.Service(1).Windows()[1].Visible)

	tc.SetFTSNow(500)
	feed(d, 1, svc(1, c1HDW, 0x02)...)
	require.False(t, d.Service(1).Windows()[1].Visible)
	require.Len(t, c.screens, 1)
	require.Equal(t, []string{"OK"}, c.screens[0].Lines())
	require.Equal(t, int64(500), c.screens[0].End)
}

func TestClearWindowEmits(t *testing.T) {
	t.Parallel()

	d, _, c := newTestDecoder(t, DefaultConfig())
	feed(d, 0, svc(1, cat(df(0, true, 0, 0, 1, 10), []byte{'X', c1CLW, 0x01})...)...)

	require.Len(t, c.screens, 1)
	require.Equal(t, []string{"X"}, c.screens[0].Lines())
	w := d.Service(1).Windows()[0]
	require.True(t, w.Empty)
	require.True(t, w.Visible)
}

func TestDeleteWindow(t *testing.T) {
	t.Parallel()

	d, _, c := newTestDecoder(t, DefaultConfig())
	feed(d, 0, svc(1, cat(df(0, true, 0, 0, 1, 10), []byte{'X', c1DLW, 0x01, 'Y'})...)...)

	require.Len(t, c.screens, 1)
	require.Equal(t, []string{"X"}, c.screens[0].Lines())
	s := d.Service(1)
	require.Equal(t, -1, s.CurrentWindow())
	require.False(t, s.Windows()[0].Defined)
	require.False(t, s.Windows()[0].Visible)
}

func TestRepeatedDefinitionIgnored(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, DefaultConfig())
	def := df(0, false, 0, 0, 1, 10)
	feed(d, 0, svc(1, cat(def, []byte{'A'}, def, []byte{'B'})...)...)

	w := d.Service(1).Windows()[0]
	require.Equal(t, 'A', w.Cells[0][0].Rune)
	require.Equal(t, 'B', w.Cells[0][1].Rune)
}

func TestDefineWindowClamps(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, DefaultConfig())
	feed(d, 0, svc(1, c1DF0, 0x7F, 0x7F, 0xFF, 0x3F, 0x3F, 0x00)...)

	w := d.Service(1).Windows()[0]
	require.Equal(t, MaxRows, w.RowCount)
	require.Equal(t, MaxColumns, w.ColCount)
	require.Equal(t, ScreenRows-MaxRows, w.AnchorVertical)
	require.Equal(t, ScreenColumns-MaxColumns, w.AnchorHorizontal)
	require.Equal(t, 7, w.Priority)
	require.True(t, w.Visible)
	require.Equal(t, 1, w.WinStyle)
	require.Equal(t, 1, w.PenStyle)
}

func TestPenCommands(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, DefaultConfig())
	feed(d, 0, svc(1, cat(
		df(0, false, 0, 0, 4, 32),
		[]byte{c1SPA, 0x25, 0xC2},
		[]byte{c1SPL, 0x02, 0x05},
		[]byte{c1SWA, 0x41, 0x82, 0xD1, 0x35},
		[]byte{'Z'},
	)...)...)

	w := d.Service(1).Windows()[0]
	require.Equal(t, PenAttribs{Size: 1, Offset: 1, TextTag: 2, FontTag: 2, Underline: true, Italic: true}, w.Pen)
	require.Equal(t, 'Z', w.Cells[2][5].Rune)
	require.True(t, w.Cells[2][5].Pen.Italic)
	require.Equal(t, WindowAttribs{
		FillColor:       0x01,
		FillOpacity:     OpacityFlash,
		BorderColor:     0x02,
		BorderType:      0x06,
		Justify:         JustifyRight,
		PrintDirection:  RightToLeft,
		WordWrap:        true,
		DisplayEffect:   1,
		EffectDirection: RightToLeft,
		EffectSpeed:     3,
	}, w.Attribs)
}

func TestCharacterSets(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, DefaultConfig())
	feed(d, 0, svc(1, cat(
		df(0, false, 0, 0, 1, 32),
		[]byte{0x7F, 0xE9, c0EXT1, 0x39, c0P16, 0x00, 0x41, c0EXT1, 0xA0},
	)...)...)

	w := d.Service(1).Windows()[0]
	var got []rune
	for _, cell := range w.Cells[0][:5] {
		got = append(got, cell.Rune)
	}
	require.Equal(t, []rune{'♬', 'é', '™', 'A', '_'}, got)
}

func TestExtendedCodeLengths(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, DefaultConfig())
	feed(d, 0, svc(1, cat(
		df(0, false, 0, 0, 1, 32),
		[]byte{c0EXT1, 0x08, 0xFF},             // C2, 2 bytes
		[]byte{c0EXT1, 0x80, 1, 2, 3, 4},       // C3, 5 bytes
		[]byte{c0EXT1, 0x90, 0x02, 0xAA, 0xBB}, // C3 variable, 2+2
		[]byte{'k'},
	)...)...)

	require.Equal(t, 'k', d.Service(1).Windows()[0].Cells[0][0].Rune)
}

func TestCommandTruncatedByBlockEnd(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, DefaultConfig())
	feed(d, 0, svc(1, cat(df(0, false, 0, 0, 1, 32), []byte{'A', c1SPL, 0x01})...)...)

	require.Zero(t, d.Report().Resets)
	w := d.Service(1).Windows()[0]
	require.Equal(t, 'A', w.Cells[0][0].Rune)
	require.Equal(t, 1, w.PenCol)
}

func TestCharactersWithoutWindowDropped(t *testing.T) {
	t.Parallel()

	d, _, c := newTestDecoder(t, DefaultConfig())
	feed(d, 0, svc(1, 'A', 'B', c0CR, c1CW0)...)
	d.Flush()

	require.Equal(t, -1, d.Service(1).CurrentWindow())
	require.Empty(t, c.screens)
}

func TestOverlappedWindowSkipped(t *testing.T) {
	t.Parallel()

	d, _, c := newTestDecoder(t, DefaultConfig())
	high := df(0, true, 0, 0, 2, 10)
	low := df(1, true, 1, 0, 2, 10)
	low[1] |= 0x03
	feed(d, 0, svc(1, cat(high, []byte{'H'}, low, []byte{'L'})...)...)
	d.Flush()

	require.Len(t, c.screens, 1)
	require.Equal(t, []string{"H"}, c.screens[0].Lines())
}

func TestResetCommand(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDecoder(t, DefaultConfig())
	feed(d, 0, svc(1, cat(df(0, true, 0, 0, 1, 10), []byte{'A', c1RST})...)...)

	s := d.Service(1)
	require.False(t, s.Windows()[0].Defined)
	require.Equal(t, -1, s.CurrentWindow())
	require.Zero(t, d.Report().Resets)
}

func TestSplitBlocks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body []byte
		want []block
		ok   bool
	}{
		{"empty", nil, nil, true},
		{"one", []byte{0x22, 'a', 'b'}, []block{{1, []byte{'a', 'b'}}}, true},
		{"padding", []byte{0x21, 'a', 0x00, 0x00}, []block{{1, []byte{'a'}}}, true},
		{"extended", []byte{0xE1, 0x2A, 'z'}, []block{{42, []byte{'z'}}}, true},
		{"extended truncated header", []byte{0xE1}, nil, false},
		{"truncated", []byte{0x23, 'a'}, nil, false},
		{"null service stops", []byte{0x21, 'a', 0x01, 0x21, 'b'}, []block{{1, []byte{'a'}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := splitBlocks(tt.body)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func FuzzProcessCCData(f *testing.F) {
	f.Add([]byte{0x09, 0x2F, 0x98, 0x00, 0x0A, 0x14, 0x00, 0x1F, 0x00, 0x91, 0x30, 0x00, 0x00, 'H', 'i', 0x8B, 0x01, 0x00})
	f.Add([]byte{0x02, 0x25, 'A', 'B'})
	f.Fuzz(func(t *testing.T, data []byte) {
		d := NewDecoder(Config{Services: []int{1, 2, 10}}, timing.New(timing.DefaultConfig(), nil), SinkFunc(func(*TVScreen) {}), nil)
		for i := 0; i+1 < len(data); i += 2 {
			typ := byte(ccTypeData)
			if i == 0 || data[i]&0x80 != 0 && data[i+1] == 0xFF {
				typ = ccTypeStart
			}
			d.ProcessCCData(true, typ, data[i], data[i+1])
		}
		d.Flush()
	})
}
