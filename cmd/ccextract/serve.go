package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/ccextract/internal/decoder"
	"github.com/zsiec/ccextract/internal/ingest"
	srtingest "github.com/zsiec/ccextract/internal/ingest/srt"
	"github.com/zsiec/ccextract/internal/output"
	"github.com/zsiec/ccextract/internal/stream"
)

const statusInterval = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		df     decodeFlags
		addr   string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept SRT publishers and decode each stream to a subtitle file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := df.outputFormat()
			if err != nil {
				return err
			}
			cfg, err := df.config()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			s := &server{
				mgr:    stream.NewManager(nil),
				df:     &df,
				cfg:    cfg,
				format: format,
				outDir: outDir,
			}

			slog.Info("ccextract serving", "version", version, "srt", addr, "output_dir", outDir, "format", string(format))

			g, ctx := errgroup.WithContext(cmd.Context())

			// Create the registry after the errgroup so sessions stop when any
			// component fails.
			s.registry = ingest.NewRegistry(func(key string, input io.Reader) {
				s.handleStream(ctx, key, input)
			})
			srtSrv := srtingest.NewServer(addr, s.registry, nil)

			g.Go(func() error {
				return srtSrv.Start(ctx)
			})
			g.Go(func() error {
				s.logStatus(ctx)
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				s.registry.Close()
				return nil
			})
			return g.Wait()
		},
	}
	df.register(cmd.Flags())
	cmd.Flags().StringVar(&addr, "addr", envOr("SRT_ADDR", ":6000"), "SRT listen address")
	cmd.Flags().StringVar(&outDir, "output-dir", envOr("OUTPUT_DIR", "."), "directory subtitle files are written to")
	return cmd
}

type server struct {
	mgr      *stream.Manager
	registry *ingest.Registry
	df       *decodeFlags
	cfg      decoder.Config
	format   output.Format
	outDir   string
}

func (s *server) handleStream(ctx context.Context, key string, input io.Reader) {
	slog.Info("new stream from ingest", "key", key)

	path := filepath.Join(s.outDir, sessionFileName(key)+"."+s.format.Ext())
	sess, created := s.mgr.Create(key, path)
	if !created {
		slog.Warn("rejecting duplicate stream connection", "key", key)
		return
	}
	defer s.mgr.Remove(key)

	f, err := os.Create(path)
	if err != nil {
		slog.Error("create output", "key", key, "error", err)
		return
	}
	defer f.Close()

	j, err := newJob(key, input, f, s.format, s.df, s.cfg)
	if err != nil {
		slog.Error("create pipeline", "key", key, "error", err)
		return
	}
	sess.Attach(j.p)

	if err := j.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("pipeline error", "stream", key, "error", err)
	}
	slog.Info("stream ended", "key", key, "output", path)
}

func (s *server) logStatus(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, sess := range s.mgr.List() {
			attrs := []any{"key", sess.Key, "output", sess.Output}
			if st, ok := sess.Stats(); ok {
				attrs = append(attrs, "units", st.Units, "subtitles", st.Subtitles)
			}
			if in, ok := s.registry.Get(sess.Key); ok {
				is := in.Stats()
				attrs = append(attrs, "bytes", is.BytesReceived, "remote", is.RemoteAddr)
			}
			slog.Info("session status", attrs...)
		}
	}
}

// sessionFileName turns a stream key into a file name.
func sessionFileName(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	if name := r.Replace(key); name != "" {
		return name
	}
	return "default"
}
