package bits

import (
	"errors"
	mbits "math/bits"
)

// ErrUncorrectable is returned when a Hamming-protected value carries more
// errors than the code can correct.
var ErrUncorrectable = errors.New("bits: uncorrectable hamming error")

// hamming84Codewords holds the Hamming(8,4) codeword for each nibble as it
// appears in a received byte (ETS 300 706, 8.2).
var hamming84Codewords = [16]byte{
	0x15, 0x02, 0x49, 0x5E, 0x64, 0x73, 0x38, 0x2F,
	0xD0, 0xC7, 0x8C, 0x9B, 0xA1, 0xB6, 0xFD, 0xEA,
}

const hamming84Invalid = 0xFF

// hamming84Table maps every received byte to its nibble, or to
// hamming84Invalid when no codeword lies within distance one.
var hamming84Table = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = hamming84Invalid
		for n, cw := range hamming84Codewords {
			if mbits.OnesCount8(byte(i)^cw) <= 1 {
				t[i] = byte(n)
				break
			}
		}
	}
	return t
}()

// EncodeHamming84 returns the Hamming(8,4) codeword for the low nibble of n.
func EncodeHamming84(n byte) byte {
	return hamming84Codewords[n&0x0F]
}

// DecodeHamming84 decodes a Hamming(8,4) byte, correcting a single bit
// error. Two or more errors yield ErrUncorrectable.
func DecodeHamming84(b byte) (byte, error) {
	v := hamming84Table[b]
	if v == hamming84Invalid {
		return 0, ErrUncorrectable
	}
	return v, nil
}

// DecodeHamming2418 decodes a Hamming(24,18) triplet (ETS 300 706, 8.3)
// and returns its 18 data bits. A single error is corrected in place.
func DecodeHamming2418(v uint32) (uint32, error) {
	var test uint8
	// Tests A-F correspond to bits 0-5 of test.
	for i := uint8(0); i < 23; i++ {
		test ^= uint8((v>>i)&0x01) * (i + 33)
	}
	// Bit 24 only takes part in the overall parity check.
	test ^= uint8((v>>23)&0x01) * 32

	if test&0x1F != 0x1F {
		if test&0x20 == 0x20 {
			return 0, ErrUncorrectable
		}
		v ^= 1 << (30 - uint32(test))
	}

	return (v&0x000004)>>2 |
		(v&0x000070)>>3 |
		(v&0x007F00)>>4 |
		(v&0x7F0000)>>5, nil
}
