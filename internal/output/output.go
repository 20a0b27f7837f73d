// Package output encodes caption.Subtitle cues as SRT, WebVTT or a pipe
// separated transcript.
package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zsiec/ccextract/internal/caption"
)

// ErrUnknownFormat is returned by ParseFormat and New for an unsupported
// format name.
var ErrUnknownFormat = errors.New("output: unknown format")

// Format names an output encoding.
type Format string

// Supported formats.
const (
	FormatSRT        Format = "srt"
	FormatWebVTT     Format = "vtt"
	FormatTranscript Format = "txt"
)

// ParseFormat maps a user supplied name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "srt":
		return FormatSRT, nil
	case "vtt", "webvtt":
		return FormatWebVTT, nil
	case "txt", "transcript":
		return FormatTranscript, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Ext returns the file extension for f, without the dot.
func (f Format) Ext() string { return string(f) }

// Writer encodes cues in arrival order. Implementations buffer; Flush
// must be called before the underlying writer is closed.
type Writer interface {
	WriteSubtitle(sub caption.Subtitle) error
	Flush() error
	// Count returns the number of cues written.
	Count() int
}

// New returns a writer for format f on w.
func New(f Format, w io.Writer) (Writer, error) {
	bw := bufio.NewWriter(w)
	switch f {
	case FormatSRT:
		return &srtWriter{w: bw}, nil
	case FormatWebVTT:
		return &vttWriter{w: bw}, nil
	case FormatTranscript:
		return &transcriptWriter{w: bw}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Timestamp formats ms as hh:mm:ss followed by sep and milliseconds.
// Negative values clamp to zero.
func Timestamp(ms int64, sep byte) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms%1000)
}

// cueEnd keeps consecutive cues from overlapping by ending one
// millisecond early.
func cueEnd(sub caption.Subtitle) int64 {
	return max(sub.End-1, sub.Start)
}

type srtWriter struct {
	w *bufio.Writer
	n int
}

func (s *srtWriter) WriteSubtitle(sub caption.Subtitle) error {
	if sub.Source == caption.SourceXDS || sub.Empty() {
		return nil
	}
	s.n++
	_, err := fmt.Fprintf(s.w, "%d\n%s --> %s\n%s\n\n",
		s.n, Timestamp(sub.Start, ','), Timestamp(cueEnd(sub), ','), sub.Text())
	return err
}

func (s *srtWriter) Flush() error { return s.w.Flush() }
func (s *srtWriter) Count() int   { return s.n }

var vttEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

type vttWriter struct {
	w      *bufio.Writer
	n      int
	header bool
}

func (v *vttWriter) writeHeader() error {
	if v.header {
		return nil
	}
	v.header = true
	_, err := v.w.WriteString("WEBVTT\n\n")
	return err
}

func (v *vttWriter) WriteSubtitle(sub caption.Subtitle) error {
	if sub.Source == caption.SourceXDS || sub.Empty() {
		return nil
	}
	if err := v.writeHeader(); err != nil {
		return err
	}
	v.n++
	_, err := fmt.Fprintf(v.w, "%s --> %s\n%s\n\n",
		Timestamp(sub.Start, '.'), Timestamp(cueEnd(sub), '.'), vttEscaper.Replace(sub.Text()))
	return err
}

// Flush writes the header even when no cue was written, so an empty
// stream still yields a valid file.
func (v *vttWriter) Flush() error {
	if err := v.writeHeader(); err != nil {
		return err
	}
	return v.w.Flush()
}

func (v *vttWriter) Count() int { return v.n }

// transcriptWriter prints one line per caption row:
// start|end|label|mode|text.
type transcriptWriter struct {
	w *bufio.Writer
	n int
}

func (t *transcriptWriter) WriteSubtitle(sub caption.Subtitle) error {
	if sub.Empty() {
		return nil
	}
	t.n++
	prefix := fmt.Sprintf("%s|%s|%s|%s|",
		Timestamp(sub.Start, ','), Timestamp(sub.End, ','), sub.Label(), sub.Mode)
	for _, line := range sub.Lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, err := t.w.WriteString(prefix + line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

func (t *transcriptWriter) Flush() error { return t.w.Flush() }
func (t *transcriptWriter) Count() int   { return t.n }
