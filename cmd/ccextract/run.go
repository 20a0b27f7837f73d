package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/zsiec/ccextract/internal/decoder"
	"github.com/zsiec/ccextract/internal/dtvcc"
	"github.com/zsiec/ccextract/internal/output"
	"github.com/zsiec/ccextract/internal/pipeline"
)

// job is one input decoded into one subtitle writer.
type job struct {
	key    string
	writer output.Writer
	p      *pipeline.Pipeline
}

func newJob(key string, input io.Reader, dst io.Writer, format output.Format, f *decodeFlags, cfg decoder.Config) (*job, error) {
	w, err := output.New(format, dst)
	if err != nil {
		return nil, err
	}
	p := pipeline.New(key, input, cfg, w, slog.Default())
	if f.program != 0 {
		p.SelectProgram(f.program)
	}
	return &job{key: key, writer: w, p: p}, nil
}

// finish flushes buffered subtitles after the pipeline has returned.
func (j *job) finish() error {
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("%s: flush output: %w", j.key, err)
	}
	st := j.p.Stats()
	slog.Info("extraction finished", "input", j.key,
		"subtitles", j.writer.Count(), "pictures", st.Demux.Pictures,
		"with_captions", st.Demux.WithCaptions, "programs", st.Programs)
	return nil
}

func (j *job) run(ctx context.Context) error {
	err := j.p.Run(ctx)
	if ferr := j.finish(); err == nil {
		err = ferr
	}
	return err
}

// writeReport prints what each program's decoders saw.
func writeReport(w io.Writer, key string, reports map[int]decoder.Report) {
	for _, program := range slices.Sorted(maps.Keys(reports)) {
		r := reports[program]
		fmt.Fprintf(w, "%s program %d: %s\n", key, program, describeReport(r))
	}
}

func describeReport(r decoder.Report) string {
	if !r.SawCaptions {
		return "no captions"
	}
	var parts []string
	var cc []string
	for i := range 4 {
		if r.Field1.Channels[i] || r.Field2.Channels[i] {
			cc = append(cc, fmt.Sprintf("CC%d", i+1))
		}
	}
	if len(cc) > 0 {
		parts = append(parts, "608 "+strings.Join(cc, ","))
	}
	var svc []string
	for n := 1; n <= dtvcc.MaxServices; n++ {
		if r.DTVCC.Services[n] {
			svc = append(svc, fmt.Sprintf("S%d", n))
		}
	}
	if len(svc) > 0 {
		parts = append(parts, "708 "+strings.Join(svc, ","))
	}
	if r.DTVCC.Resets > 0 {
		parts = append(parts, fmt.Sprintf("708 resets %d", r.DTVCC.Resets))
	}
	if r.Field1.XDS || r.Field2.XDS {
		xds := "XDS"
		if r.XDS.NetworkName != "" {
			xds += fmt.Sprintf(" network=%q", r.XDS.NetworkName)
		}
		if r.XDS.ProgramName != "" {
			xds += fmt.Sprintf(" program=%q", r.XDS.ProgramName)
		}
		parts = append(parts, xds)
	}
	if len(parts) == 0 {
		return "caption data without text"
	}
	return strings.Join(parts, "; ")
}
