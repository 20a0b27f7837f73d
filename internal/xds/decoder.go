package xds

import (
	"log/slog"

	"github.com/zsiec/ccextract/internal/timing"
)

const (
	numBuffers     = 9
	bytesPerPacket = 35
)

type buffer struct {
	inUse bool
	class Class
	typ   int
	bytes [bytesPerPacket]byte
	used  int
}

func (b *buffer) clear() {
	*b = buffer{class: -1, typ: -1}
}

// Decoder reassembles XDS packets from interleaved field 2 byte pairs.
// Up to nine packets may be in flight at once; a start code for a
// class/type already in flight resumes it.
type Decoder struct {
	log  *slog.Logger
	tc   *timing.Context
	sink Sink

	buffers [numBuffers]buffer
	cur     int
	start   int64

	info     Info
	packets  int
	rejected int
}

// NewDecoder creates an XDS decoder. sink may be nil.
func NewDecoder(tc *timing.Context, sink Sink, log *slog.Logger) *Decoder {
	if log == nil {
		log = slog.Default()
	}
	d := &Decoder{
		log:   log.With("component", "xds"),
		tc:    tc,
		sink:  sink,
		cur:   -1,
		start: -1,
	}
	for i := range d.buffers {
		d.buffers[i].clear()
	}
	return d
}

// Info returns the metadata decoded so far.
func (d *Decoder) Info() Info {
	return d.info
}

// Stats returns the number of packets decoded and rejected by checksum.
func (d *Decoder) Stats() (decoded, rejected int) {
	return d.packets, d.rejected
}

// Begin records the time the current XDS block started.
func (d *Decoder) Begin(start int64) {
	d.start = start
}

func (d *Decoder) inUse() int {
	n := 0
	for i := range d.buffers {
		if d.buffers[i].inUse {
			n++
		}
	}
	return n
}

// ProcessBytes adds one byte pair. Start (odd hi) and continue (even hi)
// codes 0x01-0x0E select a buffer; anything else is payload.
func (d *Decoder) ProcessBytes(hi, lo byte) {
	if hi >= 0x01 && hi <= 0x0F {
		class := Class((hi - 1) / 2)
		isNew := hi%2 == 1
		d.log.Debug("start code", "hi", hi, "lo", lo, "new", isNew, "class", class.String(), "used_buffers", d.inUse())

		match, free := -1, -1
		for i := range d.buffers {
			b := &d.buffers[i]
			if b.inUse && b.class == class && b.typ == int(lo) {
				match = i
				break
			}
			if free == -1 && !b.inUse {
				free = i
			}
		}
		if match == -1 && free == -1 {
			d.log.Warn("all XDS buffers in use, ignoring packet", "class", class.String(), "type", lo)
			d.cur = -1
			return
		}
		d.cur = match
		if d.cur == -1 {
			d.cur = free
		}

		b := &d.buffers[d.cur]
		if isNew || !b.inUse {
			// Whatever was there belonged to an interrupted packet.
			b.clear()
			b.class = class
			b.typ = int(lo)
			b.inUse = true
		}
		if !isNew {
			return
		}
	} else if (hi > 0 && hi <= 0x1F) || (lo > 0 && lo <= 0x1F) {
		d.log.Debug("illegal XDS data", "hi", hi, "lo", lo)
		return
	}

	if d.cur == -1 {
		return
	}
	b := &d.buffers[d.cur]
	if b.used <= 32 {
		b.bytes[b.used] = hi
		b.bytes[b.used+1] = lo
		b.used += 2
		b.bytes[b.used] = 0
	}
}

// EndOfPacket closes the current packet. checksum is the byte following
// the 0x0F end code; the packet is decoded only when the 7-bit two's
// complement sum of every byte including 0x0F matches it.
func (d *Decoder) EndOfPacket(checksum byte) {
	if d.cur == -1 || !d.buffers[d.cur].inUse {
		return
	}
	b := &d.buffers[d.cur]
	defer b.clear()

	b.bytes[b.used] = 0x0F
	b.used++
	payload := b.bytes[:b.used]

	cs := 0
	for _, c := range payload {
		cs = (cs + int(c)) & 0x7F
	}
	cs = (128 - cs) & 0x7F

	if cs != int(checksum) || len(payload) < 3 {
		d.rejected++
		d.log.Debug("XDS checksum mismatch", "class", b.class.String(), "expected", checksum, "computed", cs)
		return
	}
	d.packets++

	class := b.class
	typ := int(payload[1])
	if typ&0x40 != 0 {
		class = ClassOutOfBand
	}

	p := packet{class: class, typ: typ, data: payload}
	var handled bool
	switch class {
	case ClassCurrent, ClassFuture:
		handled = d.currentAndFuture(p)
	case ClassChannel:
		handled = d.channel(p)
	case ClassMisc:
		handled = d.misc(p)
	case ClassPrivate:
		handled = d.private(p)
	case ClassOutOfBand:
		d.log.Debug("out-of-band XDS data ignored")
		handled = true
	}
	if !handled {
		d.log.Debug("unsupported XDS packet", "class", class.String(), "type", typ)
	}
}

func (d *Decoder) emit(class Class, text string) {
	if d.sink == nil {
		return
	}
	end := d.tc.FTS(timing.Field2)
	start := d.start
	if start < 0 || start > end {
		start = end
	}
	d.sink.EmitXDS(Event{Class: class, Text: text, Start: start, End: end})
}
