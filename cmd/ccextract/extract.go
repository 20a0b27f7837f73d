package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zsiec/ccextract/internal/output"
	"github.com/zsiec/ccextract/internal/pipeline"
)

func newExtractCmd() *cobra.Command {
	var (
		df     decodeFlags
		out    string
		report bool
		concat bool
	)
	cmd := &cobra.Command{
		Use:   "extract [flags] <input.ts> [input.ts...]",
		Short: "Decode captions from MPEG-TS files",
		Long: "Decode captions from one or more MPEG-TS files. With a single input,\n" +
			"subtitles go to --output or stdout. With several, each input is written\n" +
			"next to itself, or into the --output directory, with the format's extension.\n" +
			"With --concat the inputs are read in order as one timeline into one output.\n" +
			"Use - to read standard input.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := df.outputFormat()
			if err != nil {
				return err
			}
			cfg, err := df.config()
			if err != nil {
				return err
			}

			var (
				jobs    []*job
				closers []io.Closer
			)
			defer func() {
				for _, c := range closers {
					c.Close()
				}
			}()

			// Each group of inputs shares one pipeline and one output.
			groups := make([][]string, 0, len(args))
			if concat {
				groups = append(groups, args)
			} else {
				for _, in := range args {
					groups = append(groups, []string{in})
				}
			}

			for _, inputs := range groups {
				readers := make([]io.Reader, 0, len(inputs))
				for _, in := range inputs {
					r, err := openInput(cmd, in)
					if err != nil {
						return err
					}
					closers = append(closers, r)
					readers = append(readers, r)
				}

				var dst io.Writer = cmd.OutOrStdout()
				if len(groups) > 1 || out != "" {
					path := out
					if len(groups) > 1 {
						path = outputPath(inputs[0], out, format)
					}
					f, err := os.Create(path)
					if err != nil {
						return fmt.Errorf("create output: %w", err)
					}
					closers = append(closers, f)
					dst = f
				}

				j, err := newJob(inputs[0], readers[0], dst, format, &df, cfg)
				if err != nil {
					return err
				}
				for _, r := range readers[1:] {
					j.p.Append(r)
				}
				jobs = append(jobs, j)
			}

			pipelines := make([]*pipeline.Pipeline, len(jobs))
			for i, j := range jobs {
				pipelines[i] = j.p
			}
			runErr := pipeline.RunAll(cmd.Context(), pipelines...)

			for _, j := range jobs {
				if err := j.finish(); err != nil && runErr == nil {
					runErr = err
				}
				if report {
					writeReport(cmd.ErrOrStderr(), j.key, j.p.Reports())
				}
			}
			return runErr
		},
	}
	df.register(cmd.Flags())
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file, or directory when several inputs are given")
	cmd.Flags().BoolVar(&report, "report", false, "print the caption services found in each program to stderr")
	cmd.Flags().BoolVar(&concat, "concat", false, "treat all inputs as one continuous recording written to one output")
	return cmd
}

func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// outputPath places the subtitles for input in dir, or next to input
// when dir is empty, replacing its extension with the format's.
func outputPath(input, dir string, format output.Format) string {
	if input == "-" {
		input = "stdin"
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, base+"."+format.Ext())
}
