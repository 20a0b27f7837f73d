// Package pipeline runs the caption extraction flow for a single stream:
// demuxed caption units go through one decoder set per program, and the
// resulting subtitles are handed to a Sink.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/ccextract/internal/caption"
	"github.com/zsiec/ccextract/internal/decoder"
	"github.com/zsiec/ccextract/internal/demux"
	"github.com/zsiec/ccextract/internal/timing"
)

// Sink receives decoded subtitles in emission order. output.Writer
// satisfies it.
type Sink interface {
	WriteSubtitle(sub caption.Subtitle) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(sub caption.Subtitle) error

// WriteSubtitle calls f(sub).
func (f SinkFunc) WriteSubtitle(sub caption.Subtitle) error { return f(sub) }

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Units     int64
	Triples   int64
	Subtitles int64
	Programs  int64
	UptimeMs  int64
	Demux     demux.Stats
}

// Pipeline bridges a stream's Demuxer and a subtitle Sink. The decoder
// state is owned by the goroutine running Run.
type Pipeline struct {
	log       *slog.Logger
	streamKey string
	cfg       decoder.Config
	demuxers  []*demux.Demuxer
	program   int
	sink      Sink
	startTime time.Time

	arena    *decoder.Arena
	programs map[int]decoder.Handle
	sinkErr  error

	frameTicks int64

	units     atomic.Int64
	triples   atomic.Int64
	subtitles atomic.Int64
	nprograms atomic.Int64

	mu      sync.Mutex
	reports map[int]decoder.Report
}

// New creates a Pipeline that extracts captions from the MPEG-TS in input.
// More inputs can be queued with Append.
func New(streamKey string, input io.Reader, cfg decoder.Config, sink Sink, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("stream", streamKey)
	fps := cfg.Timing.FPS
	if fps <= 0 {
		fps = timing.DefaultConfig().FPS
	}
	return &Pipeline{
		log:        log.With("component", "pipeline"),
		streamKey:  streamKey,
		cfg:        cfg,
		demuxers:   []*demux.Demuxer{demux.NewDemuxer(input, log)},
		sink:       sink,
		startTime:  time.Now(),
		arena:      decoder.NewArena(),
		programs:   make(map[int]decoder.Handle),
		frameTicks: int64(math.Round(timing.MPEGClockFreq / fps)),
	}
}

// SelectProgram restricts extraction to one program number. Must be
// called before Run.
func (p *Pipeline) SelectProgram(n int) {
	p.program = n
	for _, d := range p.demuxers {
		d.SelectProgram(n)
	}
}

// Append queues another MPEG-TS input to be read after the previous one
// ends. Its captions continue the timeline of the inputs before it. Must
// be called before Run.
func (p *Pipeline) Append(input io.Reader) {
	d := demux.NewDemuxer(input, p.log)
	d.SelectProgram(p.program)
	p.demuxers = append(p.demuxers, d)
}

// StreamKey returns the key the pipeline was created with.
func (p *Pipeline) StreamKey() string { return p.streamKey }

// Stats returns a snapshot of the pipeline counters. Safe for concurrent use.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Units:     p.units.Load(),
		Triples:   p.triples.Load(),
		Subtitles: p.subtitles.Load(),
		Programs:  p.nprograms.Load(),
		UptimeMs:  time.Since(p.startTime).Milliseconds(),
		Demux:     p.demuxStats(),
	}
}

func (p *Pipeline) demuxStats() demux.Stats {
	var st demux.Stats
	for _, d := range p.demuxers {
		ds := d.Stats()
		st.Pictures += ds.Pictures
		st.WithCaptions += ds.WithCaptions
		st.ParseErrors += ds.ParseErrors
	}
	return st
}

// Reports returns the decoder report of every program seen, keyed by
// program number. It is filled in when Run returns.
func (p *Pipeline) Reports() map[int]decoder.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reports
}

// Run demuxes and decodes each input in turn until the last one ends, the
// context is cancelled, or every program has passed the end of its
// extraction window. Decoders are flushed before Run returns, so held
// captions reach the sink.
func (p *Pipeline) Run(ctx context.Context) error {
	for i, d := range p.demuxers {
		if i > 0 {
			p.nextFile(i)
		}
		stop, err := p.runInput(ctx, d)
		if err != nil || stop {
			p.finish()
			if p.sinkErr != nil {
				return p.sinkErr
			}
			return err
		}
	}
	p.finish()
	return p.sinkErr
}

// runInput consumes one demuxer. stop is set when nothing more should be
// read: the context ended, the sink failed, or every window is complete.
func (p *Pipeline) runInput(ctx context.Context, d *demux.Demuxer) (stop bool, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	demuxErr := make(chan error, 1)
	go func() {
		demuxErr <- d.Run(ctx)
	}()

	units := d.Captions()
	for {
		select {
		case <-ctx.Done():
			return true, nil

		case u, ok := <-units:
			if !ok {
				err := <-demuxErr
				if errors.Is(err, context.Canceled) {
					return true, nil
				}
				p.log.Info("demuxer finished", "error", err)
				return false, err
			}
			p.handle(u)
			if p.sinkErr != nil {
				p.log.Error("subtitle sink failed, stopping", "error", p.sinkErr)
				return true, p.sinkErr
			}
			if p.allDone() {
				p.log.Info("extraction window complete")
				return true, nil
			}
		}
	}
}

// nextFile moves every program's clock past the inputs already read.
func (p *Pipeline) nextFile(input int) {
	for _, s := range p.arena.All() {
		s.Timing().NextFile()
	}
	p.log.Info("continuing timeline with next input", "input", input)
}

func (p *Pipeline) set(program int) *decoder.Set {
	if h, ok := p.programs[program]; ok {
		return p.arena.Get(h)
	}
	h := p.arena.New(program, p.cfg, caption.SinkFunc(p.emit), p.log)
	p.programs[program] = h
	p.nprograms.Add(1)
	p.log.Info("decoding program", "program", program)
	return p.arena.Get(h)
}

func (p *Pipeline) handle(u demux.CaptionUnit) {
	p.units.Add(1)
	s := p.set(u.Program)
	if s.Done() {
		return
	}

	tc := s.Timing()
	if u.GOP != nil {
		tc.SetGOPTime(*u.GOP)
	}
	tc.SetPicture(u.TemporalRef, u.FrameType)
	switch {
	case u.HasPTS && !p.cfg.Timing.ElementaryStream:
		tc.SetCurrentPTS(u.PTS)
	case tc.HasPTS():
		tc.AddCurrentPTS(p.frameTicks)
	}
	if err := tc.SetFTS(); err != nil {
		p.log.Debug("picture without timestamp", "program", u.Program, "error", err)
	}

	if len(u.Triples) > 0 {
		p.triples.Add(int64(len(u.Triples) / 3))
		if err := s.ProcessCCData(u.Triples); err != nil {
			p.log.Warn("malformed cc_data", "program", u.Program, "error", err)
		}
	}
	tc.CountFrame(u.FrameType != timing.FrameB)
}

func (p *Pipeline) emit(sub caption.Subtitle) {
	if p.sinkErr != nil || p.sink == nil {
		return
	}
	if err := p.sink.WriteSubtitle(sub); err != nil {
		p.sinkErr = err
		return
	}
	p.subtitles.Add(1)
}

func (p *Pipeline) allDone() bool {
	if p.arena.Len() == 0 {
		return false
	}
	for _, s := range p.arena.All() {
		if !s.Done() {
			return false
		}
	}
	return true
}

func (p *Pipeline) finish() {
	p.arena.Flush()

	reports := make(map[int]decoder.Report, p.arena.Len())
	for _, s := range p.arena.All() {
		reports[s.Program] = s.Report()
	}
	p.mu.Lock()
	p.reports = reports
	p.mu.Unlock()

	st := p.Stats()
	p.log.Info("pipeline finished",
		"units", st.Units, "triples", st.Triples, "subtitles", st.Subtitles, "programs", st.Programs)
}

// RunAll runs pipelines concurrently and returns the first error. The
// others are cancelled when one fails.
func RunAll(ctx context.Context, pipelines ...*Pipeline) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range pipelines {
		g.Go(func() error {
			return p.Run(ctx)
		})
	}
	return g.Wait()
}
