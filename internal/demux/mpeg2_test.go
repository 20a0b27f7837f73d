package demux

import (
	"bytes"
	"errors"
	"testing"

	"github.com/zsiec/ccextract/internal/timing"
)

var (
	// temporal_reference 2, B picture.
	pictureB = []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x98, 0xFF, 0xFF}
	// temporal_reference 0, I picture.
	pictureI = []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x08, 0xFF, 0xFF}
	// 01:02:03 picture 4, no drop frame.
	gopHeader = []byte{0x00, 0x00, 0x01, 0xB8, 0x04, 0x28, 0x62, 0x40}
)

// userData builds an ATSC A/53 picture user data unit with start code.
func userData(triples ...byte) []byte {
	b := []byte{0x00, 0x00, 0x01, 0xB2, 'G', 'A', '9', '4', 0x03, 0xC0 | byte(len(triples)/3), 0xFF}
	b = append(b, triples...)
	return append(b, 0xFF)
}

func TestParseATSCUserData(t *testing.T) {
	t.Parallel()

	body := userData(0xFC, 0x94, 0x20, 0xFD, 0x80, 0x80)[4:]
	got, err := ParseATSCUserData(body)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xFC, 0x94, 0x20, 0xFD, 0x80, 0x80}
	if !bytes.Equal(got, want) {
		t.Errorf("triples: got % X, want % X", got, want)
	}
}

func TestParseATSCUserDataErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"wrong identifier", []byte{'D', 'T', 'G', '1', 0x03, 0xC1, 0xFF}, ErrNotATSC},
		{"too short", []byte{'G', 'A'}, ErrNotATSC},
		{"bar data", []byte{'G', 'A', '9', '4', 0x06, 0x00}, ErrNotATSC},
		{"cc flag clear", []byte{'G', 'A', '9', '4', 0x03, 0x81, 0xFF, 0xFC, 0x80, 0x80}, ErrNoCCData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseATSCUserData(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseATSCUserDataTruncated(t *testing.T) {
	t.Parallel()

	// cc_count 3 but only one triple present.
	data := []byte{'G', 'A', '9', '4', 0x03, 0xC3, 0xFF, 0xFC, 0x94, 0x20}
	_, err := ParseATSCUserData(data)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want *ParseError", err)
	}
	if pe.Field != "cc_data_pkt" {
		t.Errorf("field: got %q, want cc_data_pkt", pe.Field)
	}
}

func TestParseGOPHeader(t *testing.T) {
	t.Parallel()

	g, err := parseGOPHeader(gopHeader[4:])
	if err != nil {
		t.Fatal(err)
	}
	if g.Hours != 1 || g.Minutes != 2 || g.Seconds != 3 || g.Pictures != 4 || g.DropFrame {
		t.Errorf("got %+v, want 01:02:03:04", g)
	}

	if _, err := parseGOPHeader([]byte{0x04}); err == nil {
		t.Error("expected error for truncated GOP header")
	}
}

func TestScanMPEG2(t *testing.T) {
	t.Parallel()

	var data []byte
	data = append(data, gopHeader...)
	data = append(data, pictureB...)
	data = append(data, userData(0xFC, 0x94, 0x20)...)
	data = append(data, pictureI...)

	var errs []error
	pics := scanMPEG2(data, func(err error) { errs = append(errs, err) })
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(pics) != 2 {
		t.Fatalf("got %d pictures, want 2", len(pics))
	}

	p := pics[0]
	if p.tref != 2 || p.frame != timing.FrameB {
		t.Errorf("picture 0: got tref %d frame %d, want 2 B", p.tref, p.frame)
	}
	if p.gop == nil || p.gop.Seconds != 3 {
		t.Errorf("picture 0: GOP not attached: %+v", p.gop)
	}
	if !bytes.Equal(p.triples, []byte{0xFC, 0x94, 0x20}) {
		t.Errorf("picture 0: triples % X", p.triples)
	}

	if pics[1].frame != timing.FrameI || pics[1].gop != nil || len(pics[1].triples) != 0 {
		t.Errorf("picture 1: got %+v", pics[1])
	}
}

func TestScanMPEG2UserDataBeforePicture(t *testing.T) {
	t.Parallel()

	var data []byte
	data = append(data, userData(0xFC, 0xC8, 0xE9)...)
	data = append(data, pictureI...)

	pics := scanMPEG2(data, func(error) {})
	if len(pics) != 1 {
		t.Fatalf("got %d pictures, want 1", len(pics))
	}
	if pics[0].frame != timing.FrameI || len(pics[0].triples) != 3 {
		t.Errorf("got %+v", pics[0])
	}
}

func TestScanMPEG2NoStartCodes(t *testing.T) {
	t.Parallel()

	if pics := scanMPEG2([]byte{0xFF, 0xFF, 0xFF, 0xFF}, func(error) {}); len(pics) != 0 {
		t.Errorf("got %d pictures, want 0", len(pics))
	}
}

func FuzzScanMPEG2(f *testing.F) {
	f.Add(append(append([]byte{}, gopHeader...), pictureB...))
	f.Add(userData(0xFC, 0x94, 0x20))
	f.Fuzz(func(t *testing.T, data []byte) {
		scanMPEG2(data, func(error) {})
	})
}
