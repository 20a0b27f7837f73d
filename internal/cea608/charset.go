package cea608

// charset is indexed by basic character code - 0x20 (0..95), then the
// special set (96..111), then the extended sets: 0x12 lo 0x20-0x3F
// (112..143) and 0x13 lo 0x20-0x3F (144..175).
var charset = [...]rune{
	// Basic North American set.
	' ', '!', '"', '#', '$', '%', '&', '’', '(', ')', 'á', '+', ',', '-', '.', '/',
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', ':', ';', '<', '=', '>', '?',
	'@', 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O',
	'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z', '[', 'é', ']', 'í', 'ó',
	'ú', 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o',
	'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z', 'ç', '÷', 'Ñ', 'ñ', '█',
	// Special North American set.
	'®', '°', '½', '¿', '™', '¢', '£', '♪', 'à', ' ', 'è', 'â', 'ê', 'î', 'ô', 'û',
	// Extended Spanish and miscellaneous.
	'Á', 'É', 'Ó', 'Ú', 'Ü', 'ü', '‘', '¡', '*', '\'', '—', '©', '℠', '•', '“', '”',
	// Extended French.
	'À', 'Â', 'Ç', 'È', 'Ê', 'Ë', 'ë', 'Î', 'Ï', 'ï', 'Ô', 'Ù', 'ù', 'Û', '«', '»',
	// Extended Portuguese.
	'Ã', 'ã', 'Í', 'Ì', 'ì', 'Ò', 'ò', 'Õ', 'õ', '{', '}', '\\', '^', '_', '|', '~',
	// Extended German and Danish.
	'Ä', 'ä', 'Ö', 'ö', 'ß', '¥', '¤', '¦', 'Å', 'å', 'Ø', 'ø', '┌', '┐', '└', '┘',
}

const (
	specialBase   = 0x60
	extended2Base = 0x70
	extended3Base = 0x90
)

// basicRune maps a standard character byte (0x20-0x7F).
func basicRune(c byte) rune {
	if c < 0x20 || c > 0x7F {
		return '?'
	}
	return charset[c-0x20]
}

// specialRune maps the second byte of a 0x11 0x30-0x3F pair.
func specialRune(lo byte) rune {
	return charset[specialBase+int(lo&0x0F)]
}

// extendedRune maps a 0x12/0x13 pair with lo in 0x20-0x3F.
func extendedRune(hi, lo byte) rune {
	base := extended2Base
	if hi == 0x13 {
		base = extended3Base
	}
	return charset[base+int(lo-0x20)]
}
