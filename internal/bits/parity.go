package bits

import mbits "math/bits"

// OddParity reports whether b carries odd parity, which is what every
// CEA-608 byte must have on the wire.
func OddParity(b byte) bool {
	return mbits.OnesCount8(b)%2 == 1
}

// StripParity clears the parity bit of a line-21 byte.
func StripParity(b byte) byte {
	return b & 0x7F
}

// AddParity sets bit 7 so that b has odd parity.
func AddParity(b byte) byte {
	b &= 0x7F
	if !OddParity(b) {
		b |= 0x80
	}
	return b
}

// ReverseByte mirrors the bit order of b. Teletext transmits LSB first.
func ReverseByte(b byte) byte {
	return mbits.Reverse8(b)
}
