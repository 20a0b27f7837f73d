package timing

import (
	"fmt"
	"strings"
)

// GOPMode selects when GOP time codes drive the caption clock.
type GOPMode int

const (
	// GOPAuto uses GOP time codes only for elementary streams that
	// have not supplied a PTS.
	GOPAuto GOPMode = iota
	// GOPAlways derives fts_now from every GOP header and ignores PTS.
	GOPAlways
	// GOPNever ignores GOP time codes for timing.
	GOPNever
)

func (m GOPMode) String() string {
	switch m {
	case GOPAlways:
		return "always"
	case GOPNever:
		return "never"
	default:
		return "auto"
	}
}

// ParseGOPMode maps "auto", "always" or "never" to a GOPMode.
func ParseGOPMode(s string) (GOPMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return GOPAuto, nil
	case "always":
		return GOPAlways, nil
	case "never":
		return GOPNever, nil
	}
	return GOPAuto, fmt.Errorf("timing: unknown GOP timing mode %q", s)
}

// GOPTimeCode is the time code carried in an MPEG-2 group of pictures
// header.
type GOPTimeCode struct {
	DropFrame bool
	Hours     int
	Minutes   int
	Seconds   int
	Pictures  int
	// MS is filled in by SetGOPTime.
	MS     int64
	inited bool
}

func (g GOPTimeCode) String() string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", g.Hours, g.Minutes, g.Seconds, g.Pictures)
}

func (g GOPTimeCode) valid() bool {
	return g.Hours >= 0 && g.Hours <= 23 &&
		g.Minutes >= 0 && g.Minutes <= 59 &&
		g.Seconds >= 0 && g.Seconds <= 59 &&
		g.Pictures >= 0 && g.Pictures <= 59
}

func (c *Context) gopMS(g GOPTimeCode) int64 {
	seconds := g.Hours*3600 + g.Minutes*60 + g.Seconds
	ms := int64(1000 * (float64(seconds) + float64(g.Pictures)/c.cfg.FPS))
	if c.gopRollover {
		ms += 24 * 60 * 60 * 1000
	}
	return ms
}

// SetGOPTime accepts g as the current GOP time unless it is out of range
// or goes back in time. Crossing from 23:59 to 00:00 is a day rollover:
// it is accepted and every later GOP time is shifted by 24 hours.
func (c *Context) SetGOPTime(g GOPTimeCode) bool {
	if !g.valid() {
		c.log.Debug("rejecting out of range GOP time", "gop", g.String())
		return false
	}
	g.MS = c.gopMS(g)

	if c.gop.Hours == 23 && c.gop.Minutes == 59 && g.Hours == 0 && g.Minutes == 0 {
		c.gopRollover = true
		g.MS = c.gopMS(g)
	} else if c.gop.inited && c.gop.MS > g.MS {
		c.log.Debug("rejecting GOP time going back in time", "gop", g.String(), "previous", c.gop.String())
		return false
	}

	g.inited = true
	c.gop = g
	if !c.firstGOP.inited {
		c.firstGOP = g
		if c.totalFrames > 0 {
			// Frames decoded before the first GOP header still take time;
			// +1 because the frame count starts at 0.
			offset := int64(float64(c.totalFrames+1) * 1000 / c.cfg.FPS)
			c.firstGOP.MS -= offset
			c.log.Debug("first GOP time", "gop", g.String(), "offset_ms", offset)
		}
	}

	if c.gopDriven() {
		c.currentTref = 0
		c.framesSinceRefTime = 0
		c.SetFTSNow(g.MS - c.firstGOP.MS)
	}
	return true
}

// gopDriven reports whether accepted GOP times set fts_now.
func (c *Context) gopDriven() bool {
	switch c.cfg.GOPTiming {
	case GOPAlways:
		return true
	case GOPNever:
		return false
	}
	return c.cfg.ElementaryStream && c.ptsSet == ptsNone
}

// GOPTime returns the last accepted GOP time code.
func (c *Context) GOPTime() (GOPTimeCode, bool) {
	return c.gop, c.gop.inited
}

// FirstGOPTime returns the first accepted GOP time code.
func (c *Context) FirstGOPTime() (GOPTimeCode, bool) {
	return c.firstGOP, c.firstGOP.inited
}
