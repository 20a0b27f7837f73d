package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zsiec/ccextract/internal/ingest"
	srtingest "github.com/zsiec/ccextract/internal/ingest/srt"
)

func newPullCmd() *cobra.Command {
	var (
		df        decodeFlags
		out       string
		streamKey string
		streamID  string
	)
	cmd := &cobra.Command{
		Use:   "pull [flags] <srt-address>",
		Short: "Pull MPEG-TS from a remote SRT listener and decode its captions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := df.outputFormat()
			if err != nil {
				return err
			}
			cfg, err := df.config()
			if err != nil {
				return err
			}

			dst := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				dst = f
			}

			ctx := cmd.Context()
			result := make(chan error, 1)
			registry := ingest.NewRegistry(func(key string, input io.Reader) {
				j, err := newJob(key, input, dst, format, &df, cfg)
				if err != nil {
					result <- err
					return
				}
				result <- j.run(ctx)
			})
			caller := srtingest.NewCaller(registry, nil)

			done, err := caller.Pull(ctx, srtingest.PullRequest{
				Address:   args[0],
				StreamKey: streamKey,
				StreamID:  streamID,
			})
			if err != nil {
				return err
			}

			select {
			case <-done:
			case <-ctx.Done():
				slog.Info("stopping pull", "stream_key", streamKey)
				if err := caller.Stop(streamKey); err != nil && !errors.Is(err, srtingest.ErrNoPull) {
					return err
				}
				<-done
			}

			err = <-result
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	df.register(cmd.Flags())
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&streamKey, "stream-key", "pull", "local key for the pulled stream")
	cmd.Flags().StringVar(&streamID, "stream-id", "", "SRT stream ID sent to the listener (default live/<stream-key>)")
	return cmd
}
