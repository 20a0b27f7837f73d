// Package timing maps presentation timestamps onto the millisecond
// timeline that caption decoders stamp their output with. A Context is
// owned by one decoder set and passed explicitly to every decoder that
// reads or adjusts it; there is no process-wide timing state.
package timing

import (
	"errors"
	"fmt"
	"log/slog"
)

// MPEGClockFreq is the 90 kHz MPEG system clock.
const MPEGClockFreq = 90000

// ErrNoPTS is returned by SetFTS when no timestamp has been supplied yet.
var ErrNoPTS = errors.New("timing: no PTS set")

// Field selects which caption block counter FTS adds to the base time.
type Field int

// Caption sources, numbered the way CEA-608 fields are.
const (
	Field1     Field = 1
	Field2     Field = 2
	FieldDTVCC Field = 3
)

// FrameType is the coding type of the picture that carried the PTS.
type FrameType int

// Picture coding types.
const (
	FrameUnknown FrameType = iota
	FrameI
	FrameP
	FrameB
)

type ptsState int

const (
	ptsNone ptsState = iota
	ptsReceived
	ptsSynced
)

// Config tunes reference clock handling.
type Config struct {
	// MaxDif is the PTS jump, in seconds, treated as a reference clock change.
	MaxDif int
	// NoSync keeps the old time base across clock jumps.
	NoSync bool
	// DisableSyncCheck turns jump detection off entirely.
	DisableSyncCheck bool
	// ElementaryStream marks inputs without PTS unless GOP timing is used.
	ElementaryStream bool
	// GOPTiming selects when GOP time codes drive fts_now.
	GOPTiming GOPMode
	// FPS is the video frame rate used to convert frame counts to time.
	FPS float64
}

// DefaultConfig returns the settings used for broadcast transport streams.
func DefaultConfig() Config {
	return Config{
		MaxDif: 5,
		FPS:    30000.0 / 1001,
	}
}

// Context tracks the current PTS, the derived frame time stamp (fts) and
// the minimum_fts watermark that keeps consecutive screens from overlapping.
type Context struct {
	log *slog.Logger
	cfg Config

	ptsSet         ptsState
	minPTSAdjusted bool
	currentPTS     int64
	minPTS         int64
	syncPTS        int64
	currentTref    int
	frameType      FrameType

	minimumFTS int64
	ftsNow     int64
	ftsOffset  int64
	ftsMax     int64
	ftsGlobal  int64

	syncPTS2FTSSet bool
	syncPTS2FTSPTS int64
	syncPTS2FTSFTS int64

	framesSinceRefTime int
	totalFrames        int

	cbField1 int
	cbField2 int
	cb708    int

	gop         GOPTimeCode
	firstGOP    GOPTimeCode
	gopRollover bool
}

// New creates a Context. If log is nil, slog.Default() is used.
func New(cfg Config, log *slog.Logger) *Context {
	if log == nil {
		log = slog.Default()
	}
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultConfig().FPS
	}
	if cfg.MaxDif <= 0 {
		cfg.MaxDif = DefaultConfig().MaxDif
	}
	return &Context{
		log:    log.With("component", "timing"),
		cfg:    cfg,
		minPTS: 0x01FFFFFFFF,
	}
}

// SetCurrentPTS records the PTS (90 kHz) of the picture being processed.
func (c *Context) SetCurrentPTS(pts int64) {
	c.currentPTS = pts
	if c.ptsSet == ptsNone {
		c.ptsSet = ptsReceived
	}
}

// AddCurrentPTS advances the current PTS by delta ticks.
func (c *Context) AddCurrentPTS(delta int64) {
	c.SetCurrentPTS(c.currentPTS + delta)
}

// HasPTS reports whether a PTS has been supplied since the context was
// created or since the last NextFile.
func (c *Context) HasPTS() bool {
	return c.ptsSet != ptsNone
}

// CurrentPTS returns the last PTS supplied.
func (c *Context) CurrentPTS() int64 {
	return c.currentPTS
}

// SetPicture records the temporal reference and coding type of the
// current picture; both influence how a clock jump is handled.
func (c *Context) SetPicture(tref int, ft FrameType) {
	c.currentTref = tref
	c.frameType = ft
}

// CountFrame advances the frame counters used to derive fts_offset.
func (c *Context) CountFrame(refPicture bool) {
	c.totalFrames++
	if refPicture {
		c.framesSinceRefTime = 0
		return
	}
	c.framesSinceRefTime++
}

// SetFTS converts the current PTS into fts_now and resets the per-field
// caption block counters. It must be called once per picture, before the
// caption data carried by that picture is decoded.
func (c *Context) SetFTS() error {
	if c.ptsSet == ptsNone && c.cfg.ElementaryStream {
		return nil
	}
	// The GOP header set fts_now; block counters run on until the next one.
	if c.cfg.GOPTiming == GOPAlways && c.firstGOP.inited {
		return nil
	}

	ptsJump := false
	if c.ptsSet == ptsSynced {
		dif := int((c.currentPTS - c.syncPTS) / MPEGClockFreq)
		if c.cfg.DisableSyncCheck {
			dif = 0
		}
		if dif < 0 || dif >= c.cfg.MaxDif {
			c.log.Warn("reference clock changed abruptly, resynchronizing",
				"seconds", dif, "sync_pts", c.syncPTS, "current_pts", c.currentPTS)
			ptsJump = true

			// A jump that does not land on an I-frame or tref 0 is most
			// likely a broken GOP; hold the clock.
			if c.currentTref != 0 && c.frameType != FrameI {
				c.ftsNow = c.ftsMax
				c.log.Warn("clock change not on first frame, probably a broken GOP")
				return nil
			}
		}
	}

	if c.ptsSet == ptsSynced && !c.minPTSAdjusted {
		// Watch the three bits below the top so a rollover is caught
		// before it happens.
		minBig := (c.minPTS >> 30) & 7
		curBig := (c.currentPTS >> 30) & 7
		switch {
		case curBig == 7 && minBig == 0:
			c.minPTS = c.currentPTS
			c.minPTSAdjusted = true
		case curBig >= 1 && curBig <= 6:
			c.minPTSAdjusted = true
		}
	}

	if c.ptsSet != ptsNone {
		c.ptsSet = ptsSynced

		if c.currentPTS < c.minPTS && !ptsJump {
			c.minPTS = c.currentPTS
			c.syncPTS = c.trefAdjustedPTS()

			switch {
			case c.currentTref == 0:
				c.ftsOffset = 0
			case c.totalFrames-c.framesSinceRefTime == 0:
				c.ftsOffset = 0
			default:
				// +1 because the current frame is not yet counted.
				c.ftsOffset = int64(float64(c.totalFrames-c.framesSinceRefTime+1) * 1000.0 / c.cfg.FPS)
			}
			c.log.Debug("first sync time", "min_pts", FormatMS(c.minPTS/(MPEGClockFreq/1000)), "fts_offset", c.ftsOffset)
		}

		if ptsJump && !c.cfg.NoSync {
			c.ftsOffset = c.ftsOffset +
				(c.syncPTS-c.minPTS)/(MPEGClockFreq/1000) +
				int64(float64(c.framesSinceRefTime)*1000/c.cfg.FPS)
			c.ftsMax = c.ftsOffset

			c.ptsSet = ptsReceived
			c.syncPTS2FTSSet = false
			c.syncPTS = c.trefAdjustedPTS()
			c.minPTS = c.syncPTS
			c.log.Debug("new min PTS", "min_pts", FormatMS(c.minPTS/(MPEGClockFreq/1000)), "fts_offset", c.ftsOffset)
		}
	}

	if c.currentTref == 0 {
		c.syncPTS = c.currentPTS
	}

	c.cbField1, c.cbField2, c.cb708 = 0, 0, 0

	if c.ptsSet == ptsNone {
		return ErrNoPTS
	}
	c.ftsNow = (c.currentPTS-c.minPTS)/(MPEGClockFreq/1000) + c.ftsOffset
	if !c.syncPTS2FTSSet {
		c.syncPTS2FTSPTS = c.currentPTS
		c.syncPTS2FTSFTS = c.ftsNow
		c.syncPTS2FTSSet = true
	}
	if c.ftsNow > c.ftsMax {
		c.ftsMax = c.ftsNow
	}
	return nil
}

func (c *Context) trefAdjustedPTS() int64 {
	return int64(float64(c.currentPTS) - float64(c.currentTref)*1000.0/c.cfg.FPS*(MPEGClockFreq/1000))
}

// SetFTSNow sets the base time directly, for sources that carry no PTS.
// Caption block counters are reset as SetFTS would.
func (c *Context) SetFTSNow(ms int64) {
	c.ftsNow = ms
	if ms > c.ftsMax {
		c.ftsMax = ms
	}
	c.cbField1, c.cbField2, c.cb708 = 0, 0, 0
}

// NextFile folds the current file's duration into fts_global so that a
// following input continues the same timeline.
func (c *Context) NextFile() {
	c.ftsGlobal += c.ftsMax
	c.ftsNow, c.ftsMax, c.ftsOffset = 0, 0, 0
	c.ptsSet = ptsNone
	c.minPTSAdjusted = false
	c.minPTS = 0x01FFFFFFFF
	c.syncPTS2FTSSet = false
	c.cbField1, c.cbField2, c.cb708 = 0, 0, 0
}

// CountField records one caption block of the given field so that later
// blocks in the same picture are spaced one field period apart.
func (c *Context) CountField(f Field) {
	switch f {
	case Field1:
		c.cbField1++
	case Field2:
		c.cbField2++
	case FieldDTVCC:
		c.cb708++
	}
}

// FTS returns fts_now + fts_global plus the field's caption block offset,
// converted from 1/30 s ticks with NTSC 1001/30 ms scaling.
func (c *Context) FTS(f Field) int64 {
	var cb int
	switch f {
	case Field1:
		cb = c.cbField1
	case Field2:
		cb = c.cbField2
	case FieldDTVCC:
		cb = c.cb708
	default:
		panic(fmt.Sprintf("timing: FTS called with unknown field %d", f))
	}
	return c.ftsNow + c.ftsGlobal + int64(cb)*1001/30
}

// FTSMax returns the largest frame time seen, without block offsets.
func (c *Context) FTSMax() int64 {
	return c.ftsMax + c.ftsGlobal
}

// MinimumFTS returns the visible-end watermark.
func (c *Context) MinimumFTS() int64 {
	return c.minimumFTS
}

// VisibleEnd returns the end time for a screen leaving the display and
// raises the watermark to it.
func (c *Context) VisibleEnd(f Field) int64 {
	fts := c.FTS(f)
	if fts > c.minimumFTS {
		c.minimumFTS = fts
	}
	c.log.Debug("visible end", "time", FormatMS(fts))
	return fts
}

// RaiseMinimumFTS moves the watermark up to ms if it is below it.
func (c *Context) RaiseMinimumFTS(ms int64) {
	if ms > c.minimumFTS {
		c.minimumFTS = ms
	}
}

// VisibleStart returns the start time for a screen entering the display.
// It is always at least 1 ms after the last visible end so consecutive
// screens never share an instant.
func (c *Context) VisibleStart(f Field) int64 {
	fts := c.FTS(f)
	if fts <= c.minimumFTS {
		fts = c.minimumFTS + 1
	}
	c.log.Debug("visible start", "time", FormatMS(fts))
	return fts
}

// FormatMS renders a millisecond time as hh:mm:ss:mmm, with a leading
// minus sign for negative values.
func FormatMS(ms int64) string {
	sign := ""
	if ms < 0 {
		sign = "-"
		ms = -ms
	}
	hh := ms / 1000 / 60 / 60
	mm := ms/1000/60 - 60*hh
	ss := ms/1000 - 60*(mm+60*hh)
	rest := ms - 1000*(ss+60*(mm+60*hh))
	return fmt.Sprintf("%s%02d:%02d:%02d:%03d", sign, hh, mm, ss, rest)
}
