package demux

import (
	"errors"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabits"

	"github.com/zsiec/ccextract/internal/timing"
)

// MPEG-2 video start code values (ISO/IEC 13818-2 Table 6-1).
const (
	scPicture  = 0x00
	scUserData = 0xB2
	scGOP      = 0xB8
)

// ATSC A/53 user_data_identifier and user_data_type_code for cc_data.
const (
	ga94           = 0x47413934
	userDataTypeCC = 0x03
)

// picture is one MPEG-2 coded picture with the captions its user data
// carried.
type picture struct {
	tref    int
	frame   timing.FrameType
	gop     *timing.GOPTimeCode
	triples []byte
	header  bool
}

// ParseATSCUserData returns the cc_data triples of an ATSC A/53 user data
// structure. data starts at user_data_identifier.
func ParseATSCUserData(data []byte) ([]byte, error) {
	if len(data) < 5 || bele.BeUint32(data) != ga94 {
		return nil, ErrNotATSC
	}
	return ParseCCData(data[4:])
}

// ParseCCData parses user_data_type_code followed by an A/53 cc_data()
// structure and returns its triples. Marker bits are not checked.
func ParseCCData(data []byte) ([]byte, error) {
	br := nazabits.NewBitReader(data)

	typ, err := br.ReadBits8(8)
	if err != nil {
		return nil, &ParseError{Field: "user_data_type_code", Err: err}
	}
	if typ != userDataTypeCC {
		return nil, ErrNotATSC
	}
	if _, err = br.ReadBits8(1); err != nil { // process_em_data_flag
		return nil, &ParseError{Field: "process_em_data_flag", Err: err}
	}
	processCC, err := br.ReadBits8(1)
	if err != nil {
		return nil, &ParseError{Field: "process_cc_data_flag", Err: err}
	}
	if _, err = br.ReadBits8(1); err != nil { // additional_data_flag
		return nil, &ParseError{Field: "additional_data_flag", Err: err}
	}
	count, err := br.ReadBits8(5)
	if err != nil {
		return nil, &ParseError{Field: "cc_count", Err: err}
	}
	if _, err = br.ReadBits8(8); err != nil { // em_data
		return nil, &ParseError{Field: "em_data", Err: err}
	}
	if processCC == 0 {
		return nil, ErrNoCCData
	}
	triples, err := br.ReadBytes(uint(count) * 3)
	if err != nil {
		return nil, &ParseError{Field: "cc_data_pkt", Err: err}
	}
	out := make([]byte, len(triples))
	copy(out, triples)
	return out, nil
}

// parsePictureHeader reads temporal_reference and picture_coding_type.
func parsePictureHeader(data []byte) (int, timing.FrameType, error) {
	br := nazabits.NewBitReader(data)
	tref, err := br.ReadBits16(10)
	if err != nil {
		return 0, timing.FrameUnknown, &ParseError{Field: "temporal_reference", Err: err}
	}
	pct, err := br.ReadBits8(3)
	if err != nil {
		return 0, timing.FrameUnknown, &ParseError{Field: "picture_coding_type", Err: err}
	}
	ft := timing.FrameUnknown
	switch pct {
	case 1:
		ft = timing.FrameI
	case 2:
		ft = timing.FrameP
	case 3:
		ft = timing.FrameB
	}
	return int(tref), ft, nil
}

// parseGOPHeader reads the time code of a group_of_pictures_header.
func parseGOPHeader(data []byte) (timing.GOPTimeCode, error) {
	var g timing.GOPTimeCode
	br := nazabits.NewBitReader(data)

	fields := []struct {
		name string
		bits uint
		dst  *int
	}{
		{"drop_frame_flag", 1, nil},
		{"time_code_hours", 5, &g.Hours},
		{"time_code_minutes", 6, &g.Minutes},
		{"marker_bit", 1, nil},
		{"time_code_seconds", 6, &g.Seconds},
		{"time_code_pictures", 6, &g.Pictures},
	}
	for _, f := range fields {
		v, err := br.ReadBits8(f.bits)
		if err != nil {
			return g, &ParseError{Field: f.name, Err: err}
		}
		switch {
		case f.dst != nil:
			*f.dst = int(v)
		case f.name == "drop_frame_flag":
			g.DropFrame = v == 1
		}
	}
	return g, nil
}

// scanMPEG2 walks the start codes of an MPEG-2 video PES payload and
// returns one entry per picture header. GOP time codes attach to the
// picture that follows them; caption user data attaches to the picture
// it follows. Malformed headers are reported through onErr and skipped.
func scanMPEG2(data []byte, onErr func(error)) []picture {
	var (
		pics    []picture
		pending *timing.GOPTimeCode
	)
	current := func() *picture {
		if len(pics) == 0 {
			pics = append(pics, picture{})
		}
		return &pics[len(pics)-1]
	}

	starts := startCodes(data)
	for idx, sc := range starts {
		if sc.payload >= len(data) {
			break
		}
		end := len(data)
		if idx+1 < len(starts) {
			end = starts[idx+1].at
		}
		code := data[sc.payload]
		body := data[sc.payload+1 : end]

		switch code {
		case scGOP:
			g, err := parseGOPHeader(body)
			if err != nil {
				onErr(err)
				continue
			}
			pending = &g
		case scPicture:
			tref, ft, err := parsePictureHeader(body)
			if err != nil {
				onErr(err)
				continue
			}
			// User data seen before the first picture header shares its
			// entry with that picture.
			if n := len(pics); n == 1 && !pics[0].header {
				pics[0].tref, pics[0].frame, pics[0].header = tref, ft, true
				if pics[0].gop == nil {
					pics[0].gop = pending
				}
			} else {
				pics = append(pics, picture{tref: tref, frame: ft, gop: pending, header: true})
			}
			pending = nil
		case scUserData:
			triples, err := ParseATSCUserData(body)
			if err != nil {
				if !errors.Is(err, ErrNotATSC) && !errors.Is(err, ErrNoCCData) {
					onErr(err)
				}
				continue
			}
			p := current()
			p.triples = append(p.triples, triples...)
		}
	}
	if pending != nil {
		if p := current(); p.gop == nil {
			p.gop = pending
		}
	}
	return pics
}
