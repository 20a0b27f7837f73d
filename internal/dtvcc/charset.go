package dtvcc

const (
	musicalNote = '♬'
	unmapped    = '_'
)

// g0 is ASCII except 0x7F, which is a musical note.
func g0(c byte) rune {
	if c == 0x7F {
		return musicalNote
	}
	return rune(c)
}

// g1 is ISO 8859-1, whose code points equal Unicode's.
func g1(c byte) rune {
	return rune(c)
}

var g2Table = map[byte]rune{
	0x20: ' ',      // transparent space
	0x21: '\u00A0', // non-breaking transparent space
	0x25: '…',
	0x2A: 'Š',
	0x2C: 'Œ',
	0x30: '█',
	0x31: '‘',
	0x32: '’',
	0x33: '“',
	0x34: '”',
	0x35: '•',
	0x39: '™',
	0x3A: 'š',
	0x3C: 'œ',
	0x3D: '℠',
	0x3F: 'Ÿ',
	0x76: '⅛',
	0x77: '⅜',
	0x78: '⅝',
	0x79: '⅞',
	0x7A: '│',
	0x7B: '┐',
	0x7C: '└',
	0x7D: '─',
	0x7E: '┘',
	0x7F: '┌',
}

func g2(c byte) rune {
	if r, ok := g2Table[c]; ok {
		return r
	}
	return unmapped
}

// g3 only defines the [CC] icon at 0xA0, which has no text form.
func g3(byte) rune {
	return unmapped
}
