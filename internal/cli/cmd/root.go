package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trace2tools/trace2fold/internal/cli"
	"github.com/trace2tools/trace2fold/pkg/flamegraph/collapsed"
	"github.com/trace2tools/trace2fold/pkg/flamegraph/convert"
	"github.com/trace2tools/trace2fold/pkg/trace2"
)

var (
	rootCmd = &cobra.Command{
		Use:           "trace2fold [trace file]",
		Short:         "Fold a trace2 event stream into flame graph input",
		Long:          "Correlate trace2 lifecycle events into per-invocation records and emit aggregated stack-path durations for flame graph renderers",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, args []string) error {
			return run(args)
		},
	}

	outputPath string
	format     string
	dump       bool
	verbose    int
	logLevel   string
)

func init() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write output to file instead of stdout")
	rootCmd.Flags().StringVarP(&format, "format", "f", "collapsed", "output format, one of `collapsed`, `pprof`")
	rootCmd.Flags().BoolVar(&dump, "dump", false, "dump the intermediate record collection instead of folding (unstable format)")
	rootCmd.Flags().CountVarP(&verbose, "verbose", "v", "echo unrecognized events, twice to echo every event")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "log level, one of `debug`, `info`, `warn`, `error`")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	if verbose > 0 && level > zapcore.DebugLevel {
		level = zapcore.DebugLevel
	}
	l, err := cli.NewLogger(level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	in := os.Stdin
	if len(args) == 1 {
		in, err = os.Open(args[0])
		if err != nil {
			return err
		}
		defer in.Close()
	}

	out := io.Writer(os.Stdout)
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	start := time.Now()
	session := trace2.NewSession()
	lines, bytes, err := consume(l, session, in)
	if err != nil {
		return err
	}

	if err := session.Reconcile(); err != nil {
		return err
	}

	l.Info("processed event stream",
		zap.Int64("lines", lines),
		zap.String("bytes", humanize.Bytes(uint64(bytes))),
		zap.Int("invocations", session.Invocations()),
		zap.Int("regions", session.Regions()),
		zap.Duration("elapsed", time.Since(start)),
	)

	if dump {
		return session.Dump(out)
	}

	prof := session.Fold()
	switch format {
	case "collapsed":
		return collapsed.Encode(prof, out)
	case "pprof":
		pprof, err := convert.CollapsedToPProf(prof)
		if err != nil {
			return err
		}
		return pprof.Write(out)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// consume runs the single decode pass: one line, one state-machine update.
func consume(l *zap.Logger, session *trace2.Session, in io.Reader) (lines, bytes int64, err error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		lines++
		bytes += int64(len(line)) + 1

		ev, ok, err := trace2.DecodeLine(line)
		if err != nil {
			l.Error("unattributable event record", zap.ByteString("line", line))
			return lines, bytes, err
		}
		if !ok {
			if verbose >= 1 {
				l.Debug("skipping undecodable line", zap.ByteString("line", line))
			}
			continue
		}
		if verbose >= 2 {
			l.Debug("event", zap.String("kind", trace2.EventKind(ev)), zap.ByteString("line", line))
		} else if verbose >= 1 {
			if _, unknown := ev.(*trace2.Unknown); unknown {
				l.Debug("unrecognized event", zap.String("kind", trace2.EventKind(ev)), zap.ByteString("line", line))
			}
		}

		if err := session.Apply(ev); err != nil {
			l.Error("malformed event stream", zap.ByteString("line", line))
			return lines, bytes, err
		}
	}
	return lines, bytes, scanner.Err()
}
