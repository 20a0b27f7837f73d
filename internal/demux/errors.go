package demux

import (
	"errors"
	"fmt"
)

// Sentinel errors for caption data extraction.
var (
	ErrNotATSC       = errors.New("demux: user data is not ATSC A/53 caption data")
	ErrNoCCData      = errors.New("demux: process_cc_data_flag not set")
	ErrNoVideoStream = errors.New("demux: no video stream with captions found")
)

// ParseError records which syntax element was being read when caption
// data turned out to be malformed.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("demux: parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
