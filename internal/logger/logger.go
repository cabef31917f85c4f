// Package logger configures the process-wide zerolog logger.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const service = "routesort"

type Options struct {
	Level  string
	Pretty bool

	// File enables a rotated log file next to the console output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	SendToAxiom  bool
	AxiomAPIKey  string
	AxiomOrgID   string
	AxiomDataset string
	AxiomFlush   time.Duration
}

var remote *axiomSink

// Init replaces log.Logger and the default context logger.
func Init(opts Options) error {
	sinks, err := openSinks(opts)
	if err != nil {
		return err
	}
	zerolog.TimeFieldFormat = time.RFC3339

	l := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(opts.Level)).
		With().Timestamp().Str("service", service).
		Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &l
	return nil
}

func openSinks(opts Options) ([]io.Writer, error) {
	var sinks []io.Writer
	if opts.Pretty {
		sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		sinks = append(sinks, os.Stderr)
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create logs dir: %w", err)
		}
		sinks = append(sinks, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}

	if opts.SendToAxiom && opts.AxiomAPIKey != "" {
		s, err := dialAxiom(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "axiom forwarding disabled: %v\n", err)
		} else {
			remote = s
			sinks = append(sinks, s)
		}
	}
	return sinks, nil
}

func parseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Close sends whatever the remote sink still holds.
func Close() {
	if remote != nil {
		remote.Close()
		remote = nil
	}
}

// WithJob returns a context carrying a logger tagged with the job id.
func WithJob(ctx context.Context, jobID string) context.Context {
	l := log.Ctx(ctx).With().Str("job_id", jobID).Logger()
	return l.WithContext(ctx)
}
