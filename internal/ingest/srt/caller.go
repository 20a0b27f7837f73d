package srt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/ccextract/internal/ingest"
)

// Caller errors.
var (
	ErrMissingAddress   = errors.New("srt: address is required")
	ErrMissingStreamKey = errors.New("srt: stream key is required")
	ErrPullActive       = errors.New("srt: pull already active for stream key")
	ErrNoPull           = errors.New("srt: no active pull for stream key")
)

const dialTimeout = 10 * time.Second

// PullRequest describes a remote SRT source to pull from.
type PullRequest struct {
	Address   string `json:"address"`
	StreamKey string `json:"streamKey"`
	StreamID  string `json:"streamId,omitempty"`
}

func (r PullRequest) validate() error {
	if r.Address == "" {
		return ErrMissingAddress
	}
	if r.StreamKey == "" {
		return ErrMissingStreamKey
	}
	return nil
}

// streamID returns the stream ID sent to the remote listener.
func (r PullRequest) streamID() string {
	if r.StreamID != "" {
		return r.StreamID
	}
	return "live/" + r.StreamKey
}

type activePull struct {
	req    PullRequest
	cancel context.CancelFunc
	done   chan struct{}
}

// Caller dials remote SRT sources and streams their data into the ingest
// registry.
type Caller struct {
	log      *slog.Logger
	registry *ingest.Registry

	mu    sync.Mutex
	pulls map[string]*activePull
}

// NewCaller creates a Caller. If log is nil, slog.Default() is used.
func NewCaller(registry *ingest.Registry, log *slog.Logger) *Caller {
	if log == nil {
		log = slog.Default()
	}
	return &Caller{
		log:      log.With("component", "srt-caller"),
		registry: registry,
		pulls:    make(map[string]*activePull),
	}
}

// Pull dials the remote SRT listener synchronously, with a timeout, and
// on success keeps receiving in a background goroutine. The returned
// channel is closed when the pull ends.
func (c *Caller) Pull(ctx context.Context, req PullRequest) (<-chan struct{}, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	_, exists := c.pulls[req.StreamKey]
	c.mu.Unlock()
	if exists {
		return nil, fmt.Errorf("%w: %q", ErrPullActive, req.StreamKey)
	}

	c.log.Info("dialing", "address", req.Address, "stream_key", req.StreamKey)

	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	cfg.StreamID = req.streamID()

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(req.Address, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()

	// Drain the dial result in the background and close any leaked connection.
	abandon := func() {
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("SRT dial failed: %w", res.err)
		}
		return c.startStreaming(ctx, req, res.conn)
	case <-timer.C:
		abandon()
		return nil, fmt.Errorf("SRT dial timed out after %s", dialTimeout)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}
}

func (c *Caller) startStreaming(ctx context.Context, req PullRequest, conn *srtgo.Conn) (<-chan struct{}, error) {
	pullCtx, cancel := context.WithCancel(ctx)
	ap := &activePull{req: req, cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	if _, exists := c.pulls[req.StreamKey]; exists {
		c.mu.Unlock()
		cancel()
		conn.Close()
		return nil, fmt.Errorf("%w: %q", ErrPullActive, req.StreamKey)
	}
	c.pulls[req.StreamKey] = ap
	c.mu.Unlock()

	stream, writer, err := c.registry.Register(req.StreamKey)
	if err != nil {
		c.mu.Lock()
		delete(c.pulls, req.StreamKey)
		c.mu.Unlock()
		cancel()
		conn.Close()
		return nil, err
	}
	stream.SetRemoteAddr(req.Address)
	c.log.Info("connected", "address", req.Address, "stream_key", req.StreamKey)

	go func() {
		defer func() {
			conn.Close()
			stats := stream.Stats()
			c.registry.Unregister(req.StreamKey)
			c.mu.Lock()
			delete(c.pulls, req.StreamKey)
			c.mu.Unlock()
			cancel()
			close(ap.done)
			c.log.Info("pull ended", "stream_key", req.StreamKey,
				"bytes", stats.BytesReceived, "reads", stats.ReadCount,
				"uptime_ms", stats.UptimeMs)
		}()
		// Cancelling the pull must unblock a pending Read.
		go func() {
			<-pullCtx.Done()
			conn.Close()
		}()
		receive(pullCtx, c.log, conn, stream, writer)
	}()

	return ap.done, nil
}

// Stop cancels the pull for streamKey.
func (c *Caller) Stop(streamKey string) error {
	c.mu.Lock()
	ap, ok := c.pulls[streamKey]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrNoPull, streamKey)
	}
	ap.cancel()
	return nil
}

// ActivePulls returns the running pulls sorted by stream key.
func (c *Caller) ActivePulls() []PullRequest {
	c.mu.Lock()
	out := make([]PullRequest, 0, len(c.pulls))
	for _, ap := range c.pulls {
		out = append(out, ap.req)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StreamKey < out[j].StreamKey })
	return out
}
