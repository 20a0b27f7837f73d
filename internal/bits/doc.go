// Package bits holds the byte-level primitives used to validate and
// correct raw caption bytes before they reach the decoders: odd parity
// for line-21 bytes, Hamming(8,4) and Hamming(24,18) decoding as used by
// Teletext, and the MPEG-2 CRC32 that guards PSI sections.
package bits
