package demux

// H.264 NAL unit types used for caption extraction.
const (
	NALTypeSlice = 1
	NALTypeIDR   = 5
	NALTypeSEI   = 6
)

// H.265 NAL unit types as defined in ITU-T H.265 Table 7-1.
const (
	HEVCNALBlaWLP    = 16
	HEVCNALCraNut    = 21
	HEVCNALSEIPrefix = 39
)

// NALUnit is one NAL unit of an Annex B stream.
type NALUnit struct {
	Type byte   // 5-bit for H.264, 6-bit for H.265
	Data []byte // NAL header and payload, without start code
}

// HEVCNALType extracts the NAL unit type from the first byte of an HEVC
// 2-byte NAL header: forbidden(1) | type(6) | layerID_high(1).
func HEVCNALType(firstByte byte) byte {
	return (firstByte >> 1) & 0x3F
}

// IsKeyframe reports whether an H.264 NAL type is an IDR slice.
func IsKeyframe(nalType byte) bool {
	return nalType == NALTypeIDR
}

// IsHEVCKeyframe reports whether an HEVC NAL type is a random access point
// (BLA, IDR or CRA).
func IsHEVCKeyframe(nalType byte) bool {
	return nalType >= HEVCNALBlaWLP && nalType <= HEVCNALCraNut
}

// ParseAnnexB splits an H.264 Annex B byte stream into NAL units. Both
// 3-byte and 4-byte start codes are recognized.
func ParseAnnexB(data []byte) []NALUnit {
	return parseAnnexB(data, 1, func(d []byte) byte { return d[0] & 0x1F })
}

// ParseAnnexBHEVC splits an HEVC Annex B byte stream into NAL units.
func ParseAnnexBHEVC(data []byte) []NALUnit {
	return parseAnnexB(data, 2, func(d []byte) byte { return HEVCNALType(d[0]) })
}

// parseAnnexB finds start codes and returns the units between them.
// minNALBytes is the NAL header size of the codec.
func parseAnnexB(data []byte, minNALBytes int, nalType func([]byte) byte) []NALUnit {
	var units []NALUnit
	starts := startCodes(data)
	for idx, sc := range starts {
		end := len(data)
		if idx+1 < len(starts) {
			end = starts[idx+1].at
		}
		if sc.payload >= end {
			continue
		}
		nal := data[sc.payload:end]
		if len(nal) < minNALBytes {
			continue
		}
		units = append(units, NALUnit{Type: nalType(nal), Data: nal})
	}
	return units
}

type startCode struct {
	at      int // first zero byte
	payload int // first byte after 0x01
}

// startCodes returns the positions of every 00 00 01 and 00 00 00 01
// prefix in data.
func startCodes(data []byte) []startCode {
	var out []startCode
	n := len(data)
	for i := 0; i < n-2; {
		if data[i] == 0 && data[i+1] == 0 {
			if i < n-3 && data[i+2] == 0 && data[i+3] == 1 {
				out = append(out, startCode{at: i, payload: i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				out = append(out, startCode{at: i, payload: i + 3})
				i += 3
				continue
			}
		}
		i++
	}
	return out
}
