// Package caption holds the format-neutral cue that output writers consume,
// and converts decoder snapshots into it.
package caption

import (
	"fmt"
	"strings"

	"github.com/zsiec/ccextract/internal/cea608"
	"github.com/zsiec/ccextract/internal/dtvcc"
	"github.com/zsiec/ccextract/internal/xds"
)

// Source identifies the decoder a Subtitle came from.
type Source int

// Subtitle sources.
const (
	SourceCEA608 Source = iota
	SourceCEA708
	SourceXDS
)

func (s Source) String() string {
	switch s {
	case SourceCEA608:
		return "608"
	case SourceCEA708:
		return "708"
	case SourceXDS:
		return "XDS"
	}
	return "unknown"
}

// Subtitle is one timed cue. Start and End are milliseconds on the
// stream's caption timeline.
type Subtitle struct {
	Source Source
	Start  int64
	End    int64
	Lines  []string

	// Mode is the 608 captioning mode tag (POP, RU2, ...) or the XDS class
	// tag (CUR, FUT, ...). Empty for 708.
	Mode string
	// Channel is the 608 channel 1-4 (CC1-CC4) or the 708 service number.
	Channel int
}

// Text joins the lines with newlines.
func (s Subtitle) Text() string {
	return strings.Join(s.Lines, "\n")
}

// Empty reports whether the cue has no visible text.
func (s Subtitle) Empty() bool {
	for _, l := range s.Lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

// Label names the caption channel, e.g. "CC1", "S2" or "XDS".
func (s Subtitle) Label() string {
	switch s.Source {
	case SourceCEA608:
		return fmt.Sprintf("CC%d", s.Channel)
	case SourceCEA708:
		return fmt.Sprintf("S%d", s.Channel)
	}
	return "XDS"
}

// From608 converts a 608 screen. Field 2 channels map to CC3 and CC4.
func From608(scr *cea608.Screen) Subtitle {
	ch := scr.Channel
	if scr.Field == 2 {
		ch += 2
	}
	return Subtitle{
		Source:  SourceCEA608,
		Start:   scr.Start,
		End:     scr.End,
		Lines:   scr.Lines(),
		Mode:    scr.Mode.String(),
		Channel: ch,
	}
}

// From708 converts a composed 708 screen.
func From708(tv *dtvcc.TVScreen) Subtitle {
	return Subtitle{
		Source:  SourceCEA708,
		Start:   tv.Start,
		End:     tv.End,
		Lines:   tv.Lines(),
		Channel: tv.Service,
	}
}

// FromXDS converts a decoded XDS event.
func FromXDS(e xds.Event) Subtitle {
	return Subtitle{
		Source: SourceXDS,
		Start:  e.Start,
		End:    e.End,
		Lines:  []string{e.Text},
		Mode:   e.Class.Short(),
	}
}

// SinkFunc receives every snapshot a decoder set emits as a Subtitle. It
// satisfies the cea608, dtvcc and xds sink interfaces.
type SinkFunc func(Subtitle)

// Emit608 implements cea608.Sink.
func (f SinkFunc) Emit608(scr *cea608.Screen) { f(From608(scr)) }

// Emit708 implements dtvcc.Sink.
func (f SinkFunc) Emit708(tv *dtvcc.TVScreen) { f(From708(tv)) }

// EmitXDS implements xds.Sink.
func (f SinkFunc) EmitXDS(e xds.Event) { f(FromXDS(e)) }
