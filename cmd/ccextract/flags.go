package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/zsiec/ccextract/internal/decoder"
	"github.com/zsiec/ccextract/internal/dtvcc"
	"github.com/zsiec/ccextract/internal/output"
	"github.com/zsiec/ccextract/internal/timing"
)

// decodeFlags holds the decoder settings shared by every command.
type decodeFlags struct {
	format       string
	field        string
	channel      int
	services     string
	startMs      int64
	endMs        int64
	program      int
	directRollup bool
	forceRollup  int
	noRollup     bool
	fixPadding   bool
	noXDS        bool
	screens      int

	maxDif      int
	noSync      bool
	noSyncCheck bool
	ignorePTS   bool
	gopTiming   string
}

func (f *decodeFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.format, "format", "f", envOr("OUTPUT_FORMAT", "srt"), "output format: srt, vtt or txt")
	fs.StringVar(&f.field, "field", "1", "line 21 fields to decode: 1, 2, 12 or none")
	fs.IntVar(&f.channel, "channel", 1, "caption channel within each field (1 or 2)")
	fs.StringVar(&f.services, "services", "1", "CEA-708 services to decode, comma separated, \"all\" or \"none\"")
	fs.Int64Var(&f.startMs, "start", 0, "skip captions before this time in milliseconds")
	fs.Int64Var(&f.endMs, "end", 0, "stop after this time in milliseconds (0 = end of input)")
	fs.IntVar(&f.program, "program", 0, "decode only this program number (0 = all)")
	fs.BoolVar(&f.directRollup, "direct-rollup", false, "emit roll-up captions as each character arrives")
	fs.IntVar(&f.forceRollup, "force-rollup", 0, "limit roll-up captions to 1, 2 or 3 rows")
	fs.BoolVar(&f.noRollup, "no-rollup", false, "write each roll-up row once")
	fs.BoolVar(&f.fixPadding, "fix-padding", false, "treat invalid zero byte pairs as padding")
	fs.BoolVar(&f.noXDS, "no-xds", false, "do not decode extended data services")
	fs.IntVar(&f.screens, "screens", 0, "stop each CEA-608 decoder after this many screens")

	fs.IntVar(&f.maxDif, "max-dif", timing.DefaultConfig().MaxDif, "PTS jump in seconds treated as a reference clock change")
	fs.BoolVar(&f.noSync, "no-sync", false, "keep the old time base when the reference clock jumps")
	fs.BoolVar(&f.noSyncCheck, "no-sync-check", false, "do not look for reference clock jumps")
	fs.BoolVar(&f.ignorePTS, "ignore-pts", false, "ignore PTS and time captions from GOP time codes")
	fs.StringVar(&f.gopTiming, "gop-timing", "auto", "when GOP time codes set the clock: auto, always or never")
}

func (f *decodeFlags) outputFormat() (output.Format, error) {
	return output.ParseFormat(f.format)
}

// config builds the decoder configuration from the flags.
func (f *decodeFlags) config() (decoder.Config, error) {
	cfg := decoder.DefaultConfig()

	fields, err := parseFields(f.field)
	if err != nil {
		return cfg, err
	}
	cfg.Fields = fields

	if f.channel != 1 && f.channel != 2 {
		return cfg, fmt.Errorf("--channel must be 1 or 2, got %d", f.channel)
	}
	cfg.Channel = f.channel

	services, err := parseServices(f.services)
	if err != nil {
		return cfg, err
	}
	cfg.DTVCC.Services = services
	cfg.DTVCC.NoRollup = f.noRollup

	if f.forceRollup < 0 || f.forceRollup > 3 {
		return cfg, fmt.Errorf("--force-rollup must be 1, 2 or 3, got %d", f.forceRollup)
	}
	if f.startMs < 0 || f.endMs < 0 {
		return cfg, fmt.Errorf("--start and --end must not be negative")
	}
	if f.endMs != 0 && f.endMs <= f.startMs {
		return cfg, fmt.Errorf("--end (%d) must be after --start (%d)", f.endMs, f.startMs)
	}
	if f.screens < 0 {
		return cfg, fmt.Errorf("--screens must not be negative")
	}
	if f.maxDif <= 0 {
		return cfg, fmt.Errorf("--max-dif must be positive, got %d", f.maxDif)
	}
	gop, err := timing.ParseGOPMode(f.gopTiming)
	if err != nil {
		return cfg, fmt.Errorf("--gop-timing: %w", err)
	}

	cfg.CEA608.DirectRollup = f.directRollup
	cfg.CEA608.ForceRollup = f.forceRollup
	cfg.CEA608.NoRollup = f.noRollup
	cfg.CEA608.ScreensToProcess = f.screens
	if format, err := f.outputFormat(); err == nil && format == output.FormatTranscript {
		cfg.CEA608.Transcript = true
	}
	cfg.FixPadding = f.fixPadding
	cfg.XDS = !f.noXDS
	cfg.StartAt = f.startMs
	cfg.EndAt = f.endMs

	cfg.Timing.MaxDif = f.maxDif
	cfg.Timing.NoSync = f.noSync
	cfg.Timing.DisableSyncCheck = f.noSyncCheck
	cfg.Timing.ElementaryStream = f.ignorePTS
	cfg.Timing.GOPTiming = gop
	return cfg, nil
}

func parseFields(s string) (int, error) {
	switch strings.TrimSpace(s) {
	case "1":
		return 1, nil
	case "2":
		return 2, nil
	case "12", "both":
		return 12, nil
	case "none", "0":
		return 0, nil
	}
	return 0, fmt.Errorf("--field must be 1, 2, 12 or none, got %q", s)
}

func parseServices(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "none":
		return nil, nil
	case "all":
		out := make([]int, 0, dtvcc.MaxServices)
		for n := 1; n <= dtvcc.MaxServices; n++ {
			out = append(out, n)
		}
		return out, nil
	}
	seen := make(map[int]bool)
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 || n > dtvcc.MaxServices {
			return nil, fmt.Errorf("--services: invalid service %q", part)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}
