package demux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/asticode/go-astits"

	"github.com/zsiec/ccextract/internal/timing"
)

const (
	streamTypeMPEG2 = 0x02
	streamTypeH264  = 0x1B
	streamTypeH265  = 0x24

	// CaptionBufferSize is the capacity of the Captions channel.
	CaptionBufferSize = 64

	maxConsecutiveErrors = 64
)

// Codec is the video coding of a caption carrying stream.
type Codec int

// Supported video codecs.
const (
	CodecUnknown Codec = iota
	CodecMPEG2
	CodecH264
	CodecH265
)

func (c Codec) String() string {
	switch c {
	case CodecMPEG2:
		return "MPEG-2"
	case CodecH264:
		return "H.264"
	case CodecH265:
		return "H.265"
	}
	return "unknown"
}

func codecFor(streamType uint8) Codec {
	switch streamType {
	case streamTypeMPEG2:
		return CodecMPEG2
	case streamTypeH264:
		return CodecH264
	case streamTypeH265:
		return CodecH265
	}
	return CodecUnknown
}

// CaptionUnit is one coded picture and the cc_data triples it carried.
// Units are delivered for every picture, with or without captions, so the
// consumer can advance its clock.
type CaptionUnit struct {
	Program int
	PID     uint16
	Codec   Codec

	// PTS is in 90 kHz ticks and valid when HasPTS is set. Only the first
	// picture of a PES packet carries one.
	PTS    int64
	HasPTS bool

	TemporalRef int
	FrameType   timing.FrameType
	// GOP is the MPEG-2 group of pictures time code preceding the picture.
	GOP *timing.GOPTimeCode

	Triples []byte
}

type videoStream struct {
	program int
	codec   Codec
}

// Stats counts what a Demuxer has produced.
type Stats struct {
	Pictures     int64
	WithCaptions int64
	ParseErrors  int64
}

// Demuxer reads an MPEG-TS byte stream, finds the video elementary
// streams announced in each PMT, and delivers their caption data as
// CaptionUnits on the Captions channel.
type Demuxer struct {
	log     *slog.Logger
	reader  io.Reader
	ch      chan CaptionUnit
	program int
	videos  map[uint16]videoStream

	pictures     atomic.Int64
	withCaptions atomic.Int64
	parseErrors  atomic.Int64
}

// NewDemuxer creates a Demuxer reading from r. If log is nil,
// slog.Default() is used.
func NewDemuxer(r io.Reader, log *slog.Logger) *Demuxer {
	if log == nil {
		log = slog.Default()
	}
	return &Demuxer{
		log:    log.With("component", "demux"),
		reader: r,
		ch:     make(chan CaptionUnit, CaptionBufferSize),
		videos: make(map[uint16]videoStream),
	}
}

// SelectProgram restricts extraction to one program number. Zero, the
// default, extracts every program. Must be called before Run.
func (d *Demuxer) SelectProgram(n int) {
	d.program = n
}

// Captions returns the channel caption units are delivered on. It is
// closed when Run returns.
func (d *Demuxer) Captions() <-chan CaptionUnit {
	return d.ch
}

// Stats returns a snapshot of the demuxer counters. Safe for concurrent use.
func (d *Demuxer) Stats() Stats {
	return Stats{
		Pictures:     d.pictures.Load(),
		WithCaptions: d.withCaptions.Load(),
		ParseErrors:  d.parseErrors.Load(),
	}
}

// Run demuxes until EOF or context cancellation and closes the Captions
// channel on return. It returns ErrNoVideoStream if the input ended
// without a PMT announcing a supported video stream.
func (d *Demuxer) Run(ctx context.Context) error {
	defer close(d.ch)

	dmx := astits.NewDemuxer(ctx, d.reader, astits.DemuxerOptPacketSize(188))

	consecutive := 0
	for {
		data, err := dmx.NextData()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, astits.ErrNoMorePackets) || errors.Is(err, io.EOF) {
				if len(d.videos) == 0 {
					return ErrNoVideoStream
				}
				return nil
			}
			consecutive++
			if consecutive >= maxConsecutiveErrors {
				return fmt.Errorf("demux: %w", err)
			}
			d.log.Debug("skipping corrupt packet", "error", err)
			continue
		}
		consecutive = 0

		if data.PMT != nil {
			d.handlePMT(data.PMT)
			continue
		}
		if data.PES == nil || data.FirstPacket == nil {
			continue
		}
		vs, ok := d.videos[data.FirstPacket.Header.PID]
		if !ok {
			continue
		}
		if err := d.handleVideo(ctx, data.FirstPacket.Header.PID, vs, data.PES); err != nil {
			return err
		}
	}
}

func (d *Demuxer) handlePMT(pmt *astits.PMTData) {
	program := int(pmt.ProgramNumber)
	if d.program != 0 && program != d.program {
		return
	}
	for _, es := range pmt.ElementaryStreams {
		codec := codecFor(uint8(es.StreamType))
		if codec == CodecUnknown {
			continue
		}
		if _, ok := d.videos[es.ElementaryPID]; ok {
			continue
		}
		// One caption carrying video stream per program.
		taken := false
		for _, vs := range d.videos {
			if vs.program == program {
				taken = true
				break
			}
		}
		if taken {
			continue
		}
		d.videos[es.ElementaryPID] = videoStream{program: program, codec: codec}
		d.log.Info("found video PID", "pid", es.ElementaryPID, "program", program, "codec", codec.String())
	}
}

func (d *Demuxer) handleVideo(ctx context.Context, pid uint16, vs videoStream, pes *astits.PESData) error {
	if len(pes.Data) == 0 {
		return nil
	}

	var (
		pts    int64
		hasPTS bool
	)
	if pes.Header != nil && pes.Header.OptionalHeader != nil && pes.Header.OptionalHeader.PTS != nil {
		pts = pes.Header.OptionalHeader.PTS.Base
		hasPTS = true
	}

	for _, u := range d.units(pes.Data, vs) {
		u.Program = vs.program
		u.PID = pid
		u.Codec = vs.codec
		if hasPTS {
			u.PTS, u.HasPTS = pts, true
			hasPTS = false
		}
		d.pictures.Add(1)
		if len(u.Triples) > 0 {
			d.withCaptions.Add(1)
		}
		select {
		case d.ch <- u:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// units splits a video PES payload into caption units.
func (d *Demuxer) units(data []byte, vs videoStream) []CaptionUnit {
	if vs.codec != CodecMPEG2 {
		triples, key := accessUnitTriples(data, vs.codec == CodecH265)
		u := CaptionUnit{Triples: triples}
		if key {
			u.FrameType = timing.FrameI
		}
		return []CaptionUnit{u}
	}

	pics := scanMPEG2(data, func(err error) {
		d.parseErrors.Add(1)
		d.log.Debug("malformed MPEG-2 header", "error", err)
	})
	out := make([]CaptionUnit, 0, len(pics))
	for _, p := range pics {
		out = append(out, CaptionUnit{
			TemporalRef: p.tref,
			FrameType:   p.frame,
			GOP:         p.gop,
			Triples:     p.triples,
		})
	}
	return out
}
