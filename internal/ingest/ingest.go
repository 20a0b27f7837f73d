// Package ingest hands live transport streams from network receivers to
// caption extraction. Each stream is a named pipe: the receiver writes
// MPEG-TS bytes into it and an extraction session reads them out.
package ingest

import (
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Registry errors.
var (
	ErrDuplicateKey  = errors.New("ingest: stream key already registered")
	ErrConsumerEnded = errors.New("ingest: extraction for stream ended")
)

// Stats captures connection-level metrics for an ingest stream.
type Stats struct {
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr"`
}

// Stream is one live input. Bytes written to its pipe by the receiver
// are read by the extraction session started for it.
type Stream struct {
	Key       string
	StartedAt time.Time
	input     *io.PipeReader
	pw        *io.PipeWriter
	done      chan struct{}

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	remoteAddr    atomic.Value
}

// RecordRead counts one successful socket read of n bytes.
func (s *Stream) RecordRead(n int) {
	s.bytesReceived.Add(int64(n))
	s.readCount.Add(1)
}

// SetRemoteAddr stores the remote address of the connection.
func (s *Stream) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// Done is closed when the stream is unregistered.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Stats returns a snapshot of connection metrics.
func (s *Stream) Stats() Stats {
	addr, _ := s.remoteAddr.Load().(string)
	return Stats{
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		ConnectedAt:   s.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// Registry tracks live streams by key and starts an extraction session
// for each new one through the onStream callback.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*Stream

	onStream func(key string, input io.Reader)
}

// NewRegistry creates a Registry. onStream runs in its own goroutine for
// every registered stream; when it returns, the stream's pipe is closed
// so the receiver stops writing.
func NewRegistry(onStream func(key string, input io.Reader)) *Registry {
	return &Registry{
		streams:  make(map[string]*Stream),
		onStream: onStream,
	}
}

// Register creates a stream and returns it with the Writer the receiver
// should copy into. It fails with ErrDuplicateKey if key is in use.
func (r *Registry) Register(key string) (*Stream, io.Writer, error) {
	pr, pw := io.Pipe()
	stream := &Stream{
		Key:       key,
		StartedAt: time.Now(),
		input:     pr,
		pw:        pw,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if _, ok := r.streams[key]; ok {
		r.mu.Unlock()
		return nil, nil, ErrDuplicateKey
	}
	r.streams[key] = stream
	r.mu.Unlock()

	if r.onStream != nil {
		go func() {
			r.onStream(key, pr)
			pr.CloseWithError(ErrConsumerEnded)
		}()
	}
	return stream, pw, nil
}

// Unregister removes a stream, closing its pipe so the reader sees EOF.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	stream, ok := r.streams[key]
	if ok {
		delete(r.streams, key)
	}
	r.mu.Unlock()

	if ok {
		stream.pw.Close()
		close(stream.done)
	}
}

// Get returns the stream registered under key.
func (r *Registry) Get(key string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[key]
	return s, ok
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// List returns the registered streams sorted by key.
func (r *Registry) List() []*Stream {
	r.mu.RLock()
	out := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Close unregisters every stream.
func (r *Registry) Close() {
	for _, s := range r.List() {
		r.Unregister(s.Key)
	}
}
