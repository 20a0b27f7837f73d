package bits

import "errors"

// CRC errors.
var (
	ErrCRCShort    = errors.New("bits: data too short for CRC32")
	ErrCRCMismatch = errors.New("bits: CRC32 mismatch")
)

// MPEG-2 CRC32 with polynomial 0x04C11DB7, no reflection.
var crc32Table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		crc32Table[i] = crc
	}
}

// CRC32 computes the MPEG-2 CRC of data.
func CRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}

// VerifyCRC32 checks a section that ends with its own big-endian CRC32.
// Running the CRC over such a section leaves a zero remainder.
func VerifyCRC32(data []byte) error {
	if len(data) < 4 {
		return ErrCRCShort
	}
	if CRC32(data) != 0 {
		return ErrCRCMismatch
	}
	return nil
}
