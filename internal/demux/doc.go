// Package demux pulls closed caption data out of video carried in an
// MPEG-TS. It follows the PMT of each program to its video elementary
// stream and turns every coded picture into a [CaptionUnit] holding the
// ATSC cc_data triples that picture carried.
//
// H.264 and H.265 captions are read from SEI NAL units ([ParseAnnexB],
// [ParseAnnexBHEVC]); MPEG-2 captions from picture user data
// ([ParseATSCUserData]), together with picture and GOP headers that drive
// caption timing.
package demux
