package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/asticode/go-astits"

	"github.com/zsiec/ccextract/internal/caption"
	"github.com/zsiec/ccextract/internal/decoder"
	"github.com/zsiec/ccextract/internal/demux"
	"github.com/zsiec/ccextract/internal/output"
)

const videoPID = 256

// userData wraps cc_data triples in an MPEG-2 picture user data unit.
func userData(triples ...byte) []byte {
	b := []byte{0x00, 0x00, 0x01, 0xB2, 'G', 'A', '9', '4', 0x03, 0xC0 | byte(len(triples)/3), 0xFF}
	b = append(b, triples...)
	return append(b, 0xFF)
}

// iPicture is an MPEG-2 I picture header with temporal_reference 0.
var iPicture = []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x08, 0xFF, 0xFF}

// gopHeader is a group_of_pictures_header with time code 00:00:ss:00.
func gopHeader(seconds int) []byte {
	return []byte{0x00, 0x00, 0x01, 0xB8, 0x00, 0x08 | byte(seconds>>3), byte(seconds&7) << 5, 0x00}
}

// buildTS muxes one MPEG-2 picture per triple group, 3003 ticks apart,
// starting at PTS 90000.
func buildTS(t *testing.T, pictures ...[]byte) []byte {
	t.Helper()
	return muxTS(t, nil, pictures)
}

// muxTS is buildTS with an optional header placed before each picture.
func muxTS(t *testing.T, header func(i int) []byte, pictures [][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	mx := astits.NewMuxer(context.Background(), &buf)
	if err := mx.AddElementaryStream(astits.PMTElementaryStream{
		ElementaryPID: videoPID,
		StreamType:    astits.StreamType(0x02),
	}); err != nil {
		t.Fatal(err)
	}
	mx.SetPCRPID(videoPID)
	if _, err := mx.WriteTables(); err != nil {
		t.Fatal(err)
	}
	for i, triples := range pictures {
		var es []byte
		if header != nil {
			es = append(es, header(i)...)
		}
		es = append(append(es, iPicture...), userData(triples...)...)
		_, err := mx.WriteData(&astits.MuxerData{
			PID: videoPID,
			PES: &astits.PESData{
				Header: &astits.PESHeader{
					StreamID: 0xE0,
					OptionalHeader: &astits.PESOptionalHeader{
						MarkerBits:      2,
						PTSDTSIndicator: astits.PTSDTSIndicatorOnlyPTS,
						PTS:             &astits.ClockReference{Base: int64(90000 + 3003*i)},
					},
				},
				Data: es,
			},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

// popOn is RCL, "Hi", EOC, EDM on CC1, one command per picture, followed
// by a caption-less picture so the EDM picture is not the last PES.
func popOn() [][]byte {
	return [][]byte{
		{0xFC, 0x94, 0x20},
		{0xFC, 0xC8, 0xE9},
		{0xFC, 0x94, 0x2F},
		{0xFC, 0x94, 0x2C},
		{0xFC, 0x80, 0x80},
		{0xFC, 0x80, 0x80},
	}
}

func TestRunPopOn(t *testing.T) {
	t.Parallel()

	var got []caption.Subtitle
	sink := SinkFunc(func(s caption.Subtitle) error {
		got = append(got, s)
		return nil
	})
	p := New("test", bytes.NewReader(buildTS(t, popOn()...)), decoder.DefaultConfig(), sink, nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("got %d subtitles, want 1: %+v", len(got), got)
	}
	sub := got[0]
	if sub.Text() != "Hi" || sub.Label() != "CC1" || sub.Mode != "POP" {
		t.Errorf("subtitle: got %+v", sub)
	}
	// EOC on the third picture, EDM on the fourth.
	if sub.Start != 6006/90 || sub.End != 9009/90 {
		t.Errorf("timing: got %d-%d, want %d-%d", sub.Start, sub.End, 6006/90, 9009/90)
	}

	st := p.Stats()
	if st.Programs != 1 || st.Subtitles != 1 {
		t.Errorf("stats: got %+v", st)
	}
	if st.Units < 4 || st.Triples < 4 {
		t.Errorf("stats: got %+v", st)
	}
	rep, ok := p.Reports()[1]
	if !ok {
		t.Fatalf("no report for program 1: %v", p.Reports())
	}
	if !rep.Field1.Channels[0] || !rep.SawCaptions {
		t.Errorf("report: got %+v", rep)
	}
}

func TestRunToSRT(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := output.New(output.FormatSRT, &buf)
	if err != nil {
		t.Fatal(err)
	}
	p := New("test", bytes.NewReader(buildTS(t, popOn()...)), decoder.DefaultConfig(), w, nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	want := "1\n00:00:00,066 --> 00:00:00,099\nHi\n\n"
	if buf.String() != want {
		t.Errorf("srt: got %q, want %q", buf.String(), want)
	}
}

func TestRunSinkError(t *testing.T) {
	t.Parallel()

	errFull := errors.New("disk full")
	sink := SinkFunc(func(caption.Subtitle) error { return errFull })
	p := New("test", bytes.NewReader(buildTS(t, popOn()...)), decoder.DefaultConfig(), sink, nil)
	if err := p.Run(context.Background()); !errors.Is(err, errFull) {
		t.Errorf("Run: got %v, want %v", err, errFull)
	}
}

func TestRunWithEOFReader(t *testing.T) {
	t.Parallel()

	p := New("test-stream", strings.NewReader(""), decoder.DefaultConfig(), nil, nil)
	if err := p.Run(context.Background()); !errors.Is(err, demux.ErrNoVideoStream) {
		t.Errorf("Run with EOF reader: got %v, want ErrNoVideoStream", err)
	}
	if p.Stats().Units != 0 {
		t.Errorf("Units: got %d, want 0", p.Stats().Units)
	}
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New("test", bytes.NewReader(buildTS(t, popOn()...)), decoder.DefaultConfig(), nil, nil)
	if err := p.Run(ctx); err != nil {
		t.Errorf("Run: got %v, want nil", err)
	}
}

func TestRunExtractionWindow(t *testing.T) {
	t.Parallel()

	cfg := decoder.DefaultConfig()
	cfg.EndAt = 40
	var got []caption.Subtitle
	sink := SinkFunc(func(s caption.Subtitle) error {
		got = append(got, s)
		return nil
	})
	p := New("test", bytes.NewReader(buildTS(t, popOn()...)), cfg, sink, nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d subtitles past the window, want 0", len(got))
	}
	if p.Stats().Units >= int64(len(popOn())) {
		t.Errorf("Units: got %d, want fewer than %d", p.Stats().Units, len(popOn()))
	}
}

func TestRunAll(t *testing.T) {
	t.Parallel()

	var a, b []caption.Subtitle
	pa := New("a", bytes.NewReader(buildTS(t, popOn()...)), decoder.DefaultConfig(),
		SinkFunc(func(s caption.Subtitle) error { a = append(a, s); return nil }), nil)
	pb := New("b", bytes.NewReader(buildTS(t, popOn()...)), decoder.DefaultConfig(),
		SinkFunc(func(s caption.Subtitle) error { b = append(b, s); return nil }), nil)

	if err := RunAll(context.Background(), pa, pb); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(a) != 1 || len(b) != 1 {
		t.Errorf("subtitles: got %d and %d, want 1 each", len(a), len(b))
	}
}

func TestRunGOPTiming(t *testing.T) {
	t.Parallel()

	cfg := decoder.DefaultConfig()
	cfg.Timing.ElementaryStream = true
	var got []caption.Subtitle
	sink := SinkFunc(func(s caption.Subtitle) error {
		got = append(got, s)
		return nil
	})
	// One GOP per picture, one second apart, while the PTS advances by a
	// frame. With PTS ignored the GOP time codes set the clock.
	ts := muxTS(t, func(i int) []byte { return gopHeader(i) }, popOn())
	p := New("test", bytes.NewReader(ts), cfg, sink, nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("got %d subtitles, want 1: %+v", len(got), got)
	}
	if got[0].Start != 2000 || got[0].End != 3000 {
		t.Errorf("timing: got %d-%d, want 2000-3000", got[0].Start, got[0].End)
	}
}

func TestRunAppendedInputsShareTimeline(t *testing.T) {
	t.Parallel()

	var got []caption.Subtitle
	sink := SinkFunc(func(s caption.Subtitle) error {
		got = append(got, s)
		return nil
	})
	p := New("test", bytes.NewReader(buildTS(t, popOn()...)), decoder.DefaultConfig(), sink, nil)
	p.Append(bytes.NewReader(buildTS(t, popOn()...)))
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d subtitles, want 2: %+v", len(got), got)
	}
	// The first input lasts five frames (166 ms); the second continues
	// from there.
	first, second := got[0], got[1]
	if first.Start != 66 || first.End != 100 {
		t.Errorf("first: got %d-%d, want 66-100", first.Start, first.End)
	}
	if second.Start != 166+66 || second.End != 166+100 {
		t.Errorf("second: got %d-%d, want %d-%d", second.Start, second.End, 166+66, 166+100)
	}
	if st := p.Stats(); st.Demux.Pictures != 2*int64(len(popOn())) || st.Programs != 1 {
		t.Errorf("stats: got %+v", st)
	}
}
