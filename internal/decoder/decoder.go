// Package decoder dispatches ATSC cc_data triples to the CEA-608, XDS and
// CEA-708 decoders of one program. A Set owns its decoders and timing
// context; several sets are kept in an Arena and addressed by Handle.
package decoder

import (
	"errors"
	"log/slog"

	"github.com/zsiec/ccextract/internal/bits"
	"github.com/zsiec/ccextract/internal/cea608"
	"github.com/zsiec/ccextract/internal/dtvcc"
	"github.com/zsiec/ccextract/internal/timing"
	"github.com/zsiec/ccextract/internal/xds"
)

// ErrShortTriple is returned by ProcessCCData for input that is not a
// whole number of triples.
var ErrShortTriple = errors.New("decoder: cc_data length is not a multiple of 3")

// cc_type values.
const (
	TypeField1     = 0
	TypeField2     = 1
	TypeDTVCCData  = 2
	TypeDTVCCStart = 3
)

// blankByte replaces a first line 21 byte that fails parity. It decodes
// as a solid block.
const blankByte = 0x7F

// Sink receives everything a Set emits. Snapshots passed to it are only
// valid for the duration of the call.
type Sink interface {
	cea608.Sink
	dtvcc.Sink
	xds.Sink
}

// Config holds the settings of a Set.
type Config struct {
	CEA608 cea608.Config
	DTVCC  dtvcc.Config
	Timing timing.Config

	// Fields selects the line 21 fields to decode: 1, 2, or 12 for both.
	// 0 disables CEA-608.
	Fields int
	// Channel is the caption channel within each field, 1 or 2.
	Channel int
	// XDS decodes extended data services from field 2.
	XDS bool
	// FixPadding treats invalid all-zero field 1/2 pairs as padding.
	FixPadding bool
	// StartAt and EndAt bound the extraction window in milliseconds.
	// Zero means unbounded.
	StartAt int64
	EndAt   int64
}

// DefaultConfig decodes CC1, DTVCC service 1 and XDS.
func DefaultConfig() Config {
	return Config{
		CEA608:  cea608.DefaultConfig(),
		DTVCC:   dtvcc.DefaultConfig(),
		Timing:  timing.DefaultConfig(),
		Fields:  1,
		Channel: 1,
		XDS:     true,
	}
}

func (c Config) decodes(field int) bool {
	switch c.Fields {
	case 12:
		return field == 1 || field == 2
	default:
		return c.Fields == field
	}
}

// Stats counts triples by outcome.
type Stats struct {
	// Types counts valid triples by cc_type.
	Types [4]int
	// Empty counts padding triples skipped before dispatch.
	Empty int
	// Invalid counts field 1/2 triples with cc_valid clear.
	Invalid int
	// OutOfWindow counts triples outside StartAt/EndAt.
	OutOfWindow int
	// ParityDropped counts line 21 pairs dropped because the second byte
	// failed parity; ParityBlanked those whose first byte was replaced.
	ParityDropped int
	ParityBlanked int
}

// Report collects the per-decoder reports of a Set.
type Report struct {
	Field1      cea608.Report
	Field2      cea608.Report
	DTVCC       dtvcc.Report
	XDS         xds.Info
	SawCaptions bool
}

// Set is the decoder state of one program. It is not safe for concurrent
// use; distinct sets share nothing.
type Set struct {
	log *slog.Logger
	cfg Config
	tc  *timing.Context

	field1 *cea608.Decoder
	field2 *cea608.Decoder
	xds    *xds.Decoder
	dtvcc  *dtvcc.Decoder

	// Program is the program number the set decodes, if known.
	Program int
	// Prev is the set created before this one in the same arena.
	Prev Handle

	stats       Stats
	sawCaptions bool
	done        bool
}

// NewSet creates the decoders cfg asks for. sink may be nil.
func NewSet(cfg Config, sink Sink, log *slog.Logger) *Set {
	if log == nil {
		log = slog.Default()
	}
	s := &Set{
		log:  log.With("component", "decoder"),
		cfg:  cfg,
		tc:   timing.New(cfg.Timing, log),
		Prev: NoHandle,
	}

	var (
		s608 cea608.Sink
		s708 dtvcc.Sink
		sXDS xds.Sink
	)
	if sink != nil {
		s608, s708, sXDS = sink, sink, sink
	}

	if cfg.XDS {
		s.xds = xds.NewDecoder(s.tc, sXDS, log)
	}
	if cfg.decodes(1) {
		s.field1 = cea608.NewDecoder(cfg.CEA608, 1, cfg.Channel, s.tc, s608, log)
	}
	switch {
	case cfg.decodes(2):
		s.field2 = cea608.NewDecoder(cfg.CEA608, 2, cfg.Channel, s.tc, s608, log)
		if s.xds != nil {
			s.field2.SetXDS(s.xds)
		}
	case s.xds != nil:
		s.field2 = cea608.NewXDSScanner(s.tc, s.xds, log)
	}
	s.dtvcc = dtvcc.NewDecoder(cfg.DTVCC, s.tc, s708, log)
	return s
}

// Timing returns the timing context shared by the set's decoders.
func (s *Set) Timing() *timing.Context { return s.tc }

// DTVCC returns the CEA-708 decoder.
func (s *Set) DTVCC() *dtvcc.Decoder { return s.dtvcc }

// Field returns the CEA-608 decoder of field 1 or 2, or nil.
func (s *Set) Field(n int) *cea608.Decoder {
	switch n {
	case 1:
		return s.field1
	case 2:
		return s.field2
	}
	return nil
}

// Stats returns triple counters.
func (s *Set) Stats() Stats { return s.stats }

// Done reports whether the set has passed EndAt or a 608 decoder reached
// its screen limit. Later input is ignored by the caller's choice.
func (s *Set) Done() bool {
	if s.done {
		return true
	}
	return s.field1 != nil && s.field1.Halted()
}

// Report returns what the set's decoders have seen.
func (s *Set) Report() Report {
	r := Report{
		DTVCC:       s.dtvcc.Report(),
		SawCaptions: s.sawCaptions,
	}
	if s.field1 != nil {
		r.Field1 = s.field1.Report()
	}
	if s.field2 != nil {
		r.Field2 = s.field2.Report()
	}
	if s.xds != nil {
		r.XDS = s.xds.Info()
	}
	return r
}

// ProcessCCData handles a run of cc_data triples.
func (s *Set) ProcessCCData(data []byte) error {
	if len(data)%3 != 0 {
		return ErrShortTriple
	}
	for i := 0; i < len(data); i += 3 {
		s.ProcessTriple(data[i], data[i+1], data[i+2])
	}
	return nil
}

// ProcessTriple handles one cc_data triple: a marker byte carrying
// cc_valid (bit 2) and cc_type (bits 0-1), and two data bytes.
func (s *Set) ProcessTriple(marker, d1, d2 byte) {
	valid := marker&0x04 != 0
	typ := marker & 0x03

	if s.cfg.FixPadding && !valid && typ <= TypeField2 && d1 == 0 && d2 == 0 {
		marker |= 0x04
		valid = true
		d1, d2 = 0x80, 0x80
	}
	if (marker == 0xFA || marker == 0xFC || marker == 0xFD) && d1&0x7F == 0 && d2&0x7F == 0 {
		s.stats.Empty++
		return
	}
	if !valid && typ != TypeDTVCCStart {
		s.stats.Invalid++
		s.log.Debug("invalid cc_data triple ignored", "marker", marker)
		return
	}
	if typ <= TypeField2 {
		if !bits.OddParity(d2) {
			s.stats.ParityDropped++
			s.log.Debug("line 21 pair failed parity, dropped", "field", typ+1, "b1", d1, "b2", d2)
			return
		}
		if !bits.OddParity(d1) {
			s.stats.ParityBlanked++
			d1 = blankByte
		}
	}
	s.stats.Types[typ]++

	var field timing.Field
	switch typ {
	case TypeField1:
		field = timing.Field1
		s.sawCaptions = true
	case TypeField2:
		field = timing.Field2
		s.sawCaptions = true
	default:
		field = timing.FieldDTVCC
	}

	if s.inWindow(field) {
		switch typ {
		case TypeField1:
			if s.field1 != nil {
				s.field1.Decode(d1, d2)
			}
		case TypeField2:
			if s.field2 != nil {
				s.field2.Decode(d1, d2)
			}
		default:
			if s.dtvcc.Active() {
				s.dtvcc.ProcessCCData(valid, typ, d1, d2)
			}
		}
	}
	s.tc.CountField(field)
}

func (s *Set) inWindow(f timing.Field) bool {
	fts := s.tc.FTS(f)
	if s.cfg.StartAt > 0 && fts < s.cfg.StartAt {
		s.stats.OutOfWindow++
		return false
	}
	if s.cfg.EndAt > 0 && fts > s.cfg.EndAt {
		if !s.done {
			s.log.Info("end of extraction window reached", "time", timing.FormatMS(fts))
		}
		s.stats.OutOfWindow++
		s.done = true
		return false
	}
	return true
}

// Flush emits whatever the decoders still hold.
func (s *Set) Flush() {
	if s.field1 != nil {
		s.field1.Flush()
	}
	if s.field2 != nil {
		s.field2.Flush()
	}
	s.dtvcc.Flush()
}
