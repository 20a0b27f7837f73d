package demux

import (
	"github.com/zsiec/ccx"

	"github.com/zsiec/ccextract/internal/bits"
)

// cc_data marker bytes rebuilt from extracted pairs: marker bits set,
// cc_valid set, cc_type in the low two bits.
const (
	markerField1     = 0xFC
	markerField2     = 0xFD
	markerDTVCCData  = 0xFE
	markerDTVCCStart = 0xFF
)

// seiTriples returns the cc_data triples carried by an H.264 or HEVC SEI
// NAL unit, or nil if it holds no captions. Line 21 bytes come back from
// the extractor without parity; it is restored so the triples look as they
// did on the wire.
func seiTriples(nal []byte) []byte {
	cd := ccx.ExtractCaptions(nal)
	if cd == nil {
		return nil
	}
	out := make([]byte, 0, 3*(len(cd.CC608Pairs)+len(cd.DTVCC)))
	for _, p := range cd.CC608Pairs {
		marker := byte(markerField1)
		if p.Field == 1 {
			marker = markerField2
		}
		out = append(out, marker, bits.AddParity(p.Data[0]), bits.AddParity(p.Data[1]))
	}
	for _, t := range cd.DTVCC {
		marker := byte(markerDTVCCData)
		if t.Start {
			marker = markerDTVCCStart
		}
		out = append(out, marker, t.Data[0], t.Data[1])
	}
	return out
}

// accessUnitTriples collects the caption triples of every SEI NAL unit in
// an Annex B access unit and reports whether it starts a random access
// point.
func accessUnitTriples(data []byte, hevc bool) (triples []byte, keyframe bool) {
	if hevc {
		for _, nal := range ParseAnnexBHEVC(data) {
			switch {
			case IsHEVCKeyframe(nal.Type):
				keyframe = true
			case nal.Type == HEVCNALSEIPrefix && len(nal.Data) > 2:
				triples = append(triples, seiTriples(nal.Data)...)
			}
		}
		return triples, keyframe
	}
	for _, nal := range ParseAnnexB(data) {
		switch {
		case IsKeyframe(nal.Type):
			keyframe = true
		case nal.Type == NALTypeSEI:
			triples = append(triples, seiTriples(nal.Data)...)
		}
	}
	return triples, keyframe
}
