// Package cea608 decodes CEA-608 (line 21) caption byte pairs.
//
// A Decoder follows one caption channel on one field. It keeps the two
// caption memories the standard defines, displayed and non-displayed, and
// hands a Screen to its Sink whenever displayed memory is replaced,
// scrolled or erased. Field 2 decoders also recognise XDS packets and pass
// their bytes to an XDSHandler.
package cea608
