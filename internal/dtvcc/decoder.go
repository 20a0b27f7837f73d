package dtvcc

import (
	"log/slog"

	"github.com/zsiec/ccextract/internal/timing"
)

const (
	ccTypeData  = 2
	ccTypeStart = 3

	extendedServiceHeader = 7
)

// block is one service block of a packet.
type block struct {
	service int
	data    []byte
}

// Decoder assembles caption channel packets from cc_data triples and
// dispatches their service blocks. It is not safe for concurrent use.
type Decoder struct {
	log  *slog.Logger
	cfg  Config
	tc   *timing.Context
	sink Sink

	services [MaxServices + 1]*Service

	packet       [maxPacketLen]byte
	packetLen    int
	headerParsed bool
	lastSeq      int

	report Report
}

// NewDecoder creates a decoder for the services in cfg.Services. sink may
// be nil.
func NewDecoder(cfg Config, tc *timing.Context, sink Sink, log *slog.Logger) *Decoder {
	if log == nil {
		log = slog.Default()
	}
	d := &Decoder{
		log:     log.With("component", "dtvcc"),
		cfg:     cfg,
		tc:      tc,
		sink:    sink,
		lastSeq: noSequence,
	}
	for _, n := range cfg.Services {
		if n < 1 || n > MaxServices {
			d.log.Warn("invalid service number ignored", "service", n)
			continue
		}
		if d.services[n] == nil {
			d.services[n] = newService(n, cfg, tc, sink, d.log)
		}
	}
	return d
}

// Active reports whether any service is being decoded.
func (d *Decoder) Active() bool {
	for _, s := range d.services {
		if s != nil {
			return true
		}
	}
	return false
}

// Service returns service n, or nil if it is not decoded.
func (d *Decoder) Service(n int) *Service {
	if n < 1 || n > MaxServices {
		return nil
	}
	return d.services[n]
}

// Report returns what the decoder has seen so far.
func (d *Decoder) Report() Report {
	return d.report
}

// ProcessCCData adds one cc_data triple of type 2 (packet data) or 3
// (packet start).
func (d *Decoder) ProcessCCData(valid bool, ccType, b1, b2 byte) {
	switch ccType {
	case ccTypeData:
		if !valid || !d.headerParsed {
			return
		}
		if d.packetLen+2 > maxPacketLen {
			d.log.Warn("packet size limit exceeded, data dropped", "len", d.packetLen)
			return
		}
		d.add(b1, b2)
	case ccTypeStart:
		if !valid {
			return
		}
		if d.headerParsed {
			d.log.Warn("packet shorter than declared length, skipped", "len", d.packetLen)
			d.clearPacket()
		}
		d.add(b1, b2)
		d.headerParsed = true
	default:
		bugf("cc_type %d is not DTVCC data", ccType)
	}

	if n := d.declaredLen(); d.packetLen >= n {
		d.processPacket(n)
	}
}

func (d *Decoder) add(b1, b2 byte) {
	d.packet[d.packetLen] = b1
	d.packet[d.packetLen+1] = b2
	d.packetLen += 2
}

func (d *Decoder) declaredLen() int {
	n := int(d.packet[0]&0x3F) * 2
	if n == 0 {
		return maxPacketLen
	}
	return n
}

func (d *Decoder) clearPacket() {
	d.packetLen = 0
	d.headerParsed = false
}

func (d *Decoder) processPacket(n int) {
	var pkt [maxPacketLen]byte
	copy(pkt[:], d.packet[:n])
	d.clearPacket()
	data := pkt[:n]

	seq := int(data[0]&0xC0) >> 6
	if d.lastSeq != noSequence && (d.lastSeq+1)%4 != seq {
		if d.cfg.ResetOnSequenceGap {
			d.log.Warn("packet sequence discontinuity, resetting", "last", d.lastSeq, "seq", seq)
			d.Reset()
		} else {
			d.log.Warn("packet sequence discontinuity", "last", d.lastSeq, "seq", seq)
		}
	}
	d.lastSeq = seq

	blocks, ok := splitBlocks(data[1:])
	if !ok {
		d.log.Warn("service blocks do not match packet length, resetting", "len", n)
		d.Reset()
		return
	}
	for _, b := range blocks {
		if len(b.data) == 0 {
			continue
		}
		d.report.Services[b.service] = true
		s := d.services[b.service]
		if s == nil {
			continue
		}
		s.ProcessBlock(b.data)
	}
}

// splitBlocks walks the service blocks of a packet body. ok is false if
// the last block runs past the end of the packet. A block for service 0
// with a nonzero size ends the walk.
func splitBlocks(body []byte) (blocks []block, ok bool) {
	for i := 0; i < len(body); {
		service := int(body[i] >> 5)
		size := int(body[i] & 0x1F)
		i++
		if service == extendedServiceHeader {
			if i >= len(body) {
				return nil, false
			}
			service = int(body[i] & 0x3F)
			i++
		}
		if service == 0 && size != 0 {
			return blocks, true
		}
		if i+size > len(body) {
			return nil, false
		}
		if service > 0 {
			blocks = append(blocks, block{service: service, data: body[i : i+size]})
		}
		i += size
	}
	return blocks, true
}

// Flush emits and hides the visible windows of every service.
func (d *Decoder) Flush() {
	for _, s := range d.services {
		if s != nil {
			s.flush()
		}
	}
}

// Reset discards the state of every service and any partial packet.
func (d *Decoder) Reset() {
	for _, s := range d.services {
		if s != nil {
			s.reset()
		}
	}
	d.clearPacket()
	d.lastSeq = noSequence
	d.report.Resets++
}
