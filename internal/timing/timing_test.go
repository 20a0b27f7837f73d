package timing

import (
	"errors"
	"testing"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	return New(DefaultConfig(), nil)
}

func TestSetFTSWithoutPTS(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	if err := c.SetFTS(); !errors.Is(err, ErrNoPTS) {
		t.Fatalf("SetFTS: got %v, want ErrNoPTS", err)
	}

	es := New(Config{ElementaryStream: true}, nil)
	if err := es.SetFTS(); err != nil {
		t.Fatalf("elementary stream SetFTS: %v", err)
	}
}

func TestSetFTSFromPTS(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	c.SetCurrentPTS(900000) // 10 s
	if err := c.SetFTS(); err != nil {
		t.Fatalf("SetFTS: %v", err)
	}
	if got := c.FTS(Field1); got != 0 {
		t.Errorf("first FTS = %d, want 0", got)
	}

	c.AddCurrentPTS(3003) // one frame at 29.97
	if err := c.SetFTS(); err != nil {
		t.Fatalf("SetFTS: %v", err)
	}
	if got := c.FTS(Field1); got != 33 {
		t.Errorf("FTS after one frame = %d, want 33", got)
	}
	if got := c.FTSMax(); got != 33 {
		t.Errorf("FTSMax = %d, want 33", got)
	}
}

func TestFTSFieldCounters(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	c.SetFTSNow(1000)

	c.CountField(Field1)
	c.CountField(Field1)
	c.CountField(Field2)
	c.CountField(FieldDTVCC)

	tests := []struct {
		f    Field
		want int64
	}{
		{Field1, 1000 + 2*1001/30},
		{Field2, 1000 + 1001/30},
		{FieldDTVCC, 1000 + 1001/30},
	}
	for _, tc := range tests {
		if got := c.FTS(tc.f); got != tc.want {
			t.Errorf("FTS(%d) = %d, want %d", tc.f, got, tc.want)
		}
	}

	// A new picture resets the counters.
	c.SetCurrentPTS(0)
	if err := c.SetFTS(); err != nil {
		t.Fatalf("SetFTS: %v", err)
	}
	if got := c.FTS(Field1); got != c.FTS(Field2) {
		t.Errorf("counters not reset: field1 %d, field2 %d", got, c.FTS(Field2))
	}
}

func TestFTSUnknownFieldPanics(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown field")
		}
	}()
	c.FTS(Field(7))
}

func TestVisibleStartAfterEnd(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	c.SetFTSNow(5000)

	end := c.VisibleEnd(Field1)
	start := c.VisibleStart(Field1)
	if start <= end {
		t.Fatalf("VisibleStart %d not after VisibleEnd %d", start, end)
	}
	if c.MinimumFTS() != end {
		t.Errorf("MinimumFTS = %d, want %d", c.MinimumFTS(), end)
	}

	// The watermark never moves backwards.
	c.SetFTSNow(4000)
	c.VisibleEnd(Field1)
	if c.MinimumFTS() != end {
		t.Errorf("MinimumFTS regressed to %d", c.MinimumFTS())
	}
	if got := c.VisibleStart(Field1); got != end+1 {
		t.Errorf("VisibleStart after regress = %d, want %d", got, end+1)
	}
}

func TestPTSJumpRebases(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	c.SetCurrentPTS(90000)
	if err := c.SetFTS(); err != nil {
		t.Fatal(err)
	}
	c.SetCurrentPTS(90000 + 90000) // +1 s
	if err := c.SetFTS(); err != nil {
		t.Fatal(err)
	}
	before := c.FTS(Field1)
	if before != 1000 {
		t.Fatalf("FTS before jump = %d, want 1000", before)
	}

	// The clock jumps forward an hour; the timeline continues instead.
	c.SetCurrentPTS(90000 + 3600*90000)
	if err := c.SetFTS(); err != nil {
		t.Fatal(err)
	}
	after := c.FTS(Field1)
	if after < before || after > before+1000 {
		t.Errorf("FTS after jump = %d, want close to %d", after, before)
	}
}

func TestPTSJumpNoSync(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.NoSync = true
	c := New(cfg, nil)
	c.SetCurrentPTS(90000)
	if err := c.SetFTS(); err != nil {
		t.Fatal(err)
	}
	c.SetCurrentPTS(90000 + 60*90000)
	if err := c.SetFTS(); err != nil {
		t.Fatal(err)
	}
	if got := c.FTS(Field1); got != 60000 {
		t.Errorf("FTS = %d, want 60000", got)
	}
}

func TestPTSJumpWithinMaxDif(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"max dif", Config{MaxDif: 120}},
		{"sync check disabled", Config{DisableSyncCheck: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := New(tc.cfg, nil)
			c.SetCurrentPTS(90000)
			if err := c.SetFTS(); err != nil {
				t.Fatal(err)
			}
			c.SetCurrentPTS(90000 + 60*90000)
			if err := c.SetFTS(); err != nil {
				t.Fatal(err)
			}
			if got := c.FTS(Field1); got != 60000 {
				t.Errorf("FTS = %d, want 60000", got)
			}
		})
	}
}

func TestHasPTS(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	if c.HasPTS() {
		t.Fatal("HasPTS before any PTS")
	}
	c.SetCurrentPTS(0)
	if !c.HasPTS() {
		t.Fatal("HasPTS false after a zero PTS")
	}
	c.NextFile()
	if c.HasPTS() {
		t.Error("HasPTS still set after NextFile")
	}
}

func TestNextFileContinuesTimeline(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	c.SetFTSNow(12000)
	c.NextFile()
	c.SetCurrentPTS(450000)
	if err := c.SetFTS(); err != nil {
		t.Fatal(err)
	}
	if got := c.FTS(Field1); got != 12000 {
		t.Errorf("FTS at start of second file = %d, want 12000", got)
	}
}

func TestSetGOPTime(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	if c.SetGOPTime(GOPTimeCode{Hours: 24}) {
		t.Error("accepted hour 24")
	}
	if c.SetGOPTime(GOPTimeCode{Pictures: 60}) {
		t.Error("accepted picture 60")
	}
	if !c.SetGOPTime(GOPTimeCode{Hours: 1, Minutes: 2, Seconds: 3}) {
		t.Fatal("rejected valid GOP time")
	}
	g, ok := c.GOPTime()
	if !ok || g.MS != 3723000 {
		t.Errorf("GOP ms = %d (ok %v), want 3723000", g.MS, ok)
	}
	if c.SetGOPTime(GOPTimeCode{Hours: 1}) {
		t.Error("accepted GOP time going back")
	}

	first, _ := c.FirstGOPTime()
	if first.MS != 3723000 {
		t.Errorf("first GOP ms = %d", first.MS)
	}
}

func TestSetGOPTimeMidnightRollover(t *testing.T) {
	t.Parallel()

	c := newTestContext(t)
	if !c.SetGOPTime(GOPTimeCode{Hours: 23, Minutes: 59, Seconds: 58}) {
		t.Fatal("rejected 23:59:58")
	}
	if !c.SetGOPTime(GOPTimeCode{Seconds: 1}) {
		t.Fatal("rejected rollover to 00:00:01")
	}
	g, _ := c.GOPTime()
	if want := int64(24*3600*1000 + 1000); g.MS != want {
		t.Errorf("rollover ms = %d, want %d", g.MS, want)
	}
}

func TestGOPTimingElementaryStream(t *testing.T) {
	t.Parallel()

	c := New(Config{ElementaryStream: true}, nil)
	for _, want := range []struct {
		gop GOPTimeCode
		fts int64
	}{
		{GOPTimeCode{}, 0},
		{GOPTimeCode{Seconds: 10}, 10000},
	} {
		if !c.SetGOPTime(want.gop) {
			t.Fatalf("rejected %s", want.gop)
		}
		if err := c.SetFTS(); err != nil {
			t.Fatal(err)
		}
		if got := c.FTS(Field1); got != want.fts {
			t.Errorf("FTS after GOP %s = %d, want %d", want.gop, got, want.fts)
		}
	}
}

func TestGOPTimingIgnoredWithPTS(t *testing.T) {
	t.Parallel()

	for _, cfg := range []Config{
		{GOPTiming: GOPAuto},
		{GOPTiming: GOPNever, ElementaryStream: true},
	} {
		c := New(cfg, nil)
		c.SetCurrentPTS(90000)
		c.SetGOPTime(GOPTimeCode{})
		if err := c.SetFTS(); err != nil {
			t.Fatal(err)
		}
		c.SetCurrentPTS(90000 + 3003)
		c.SetGOPTime(GOPTimeCode{Seconds: 10})
		if err := c.SetFTS(); err != nil {
			t.Fatal(err)
		}
		if got := c.FTS(Field1); got != 33 {
			t.Errorf("%s: FTS = %d, want 33 from PTS", cfg.GOPTiming, got)
		}
	}
}

func TestGOPTimingAlways(t *testing.T) {
	t.Parallel()

	c := New(Config{GOPTiming: GOPAlways}, nil)
	c.SetCurrentPTS(900000)
	if err := c.SetFTS(); err != nil {
		t.Fatal(err)
	}
	if !c.SetGOPTime(GOPTimeCode{Hours: 1}) {
		t.Fatal("rejected first GOP")
	}

	// Pictures within the GOP leave fts_now alone and block counters run on.
	c.CountField(Field1)
	c.CountField(Field1)
	c.SetCurrentPTS(900000 + 5*90000)
	if err := c.SetFTS(); err != nil {
		t.Fatal(err)
	}
	if got := c.FTS(Field1); got != 66 {
		t.Errorf("FTS within GOP = %d, want 66", got)
	}

	c.SetGOPTime(GOPTimeCode{Hours: 1, Seconds: 1})
	if got := c.FTS(Field1); got != 1000 {
		t.Errorf("FTS at second GOP = %d, want 1000", got)
	}
}

func TestFirstGOPAfterFrames(t *testing.T) {
	t.Parallel()

	c := New(Config{ElementaryStream: true}, nil)
	for range 14 {
		c.CountFrame(false)
	}
	c.SetGOPTime(GOPTimeCode{Seconds: 10})
	if got := c.FTS(Field1); got != 500 {
		t.Errorf("FTS at first GOP = %d, want 500 for the 15 frames before it", got)
	}
}

func TestParseGOPMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]GOPMode{"": GOPAuto, "auto": GOPAuto, "Always": GOPAlways, " never ": GOPNever} {
		got, err := ParseGOPMode(in)
		if err != nil || got != want {
			t.Errorf("ParseGOPMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseGOPMode("sometimes"); err == nil {
		t.Error("unknown mode accepted")
	}
}

func TestFormatMS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{0, "00:00:00:000"},
		{1, "00:00:00:001"},
		{61001, "00:01:01:001"},
		{3723004, "01:02:03:004"},
		{-1500, "-00:00:01:500"},
	}
	for _, tc := range tests {
		if got := FormatMS(tc.in); got != tc.want {
			t.Errorf("FormatMS(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
