// Package partition writes one PDF per route group of a classified document.
package partition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/local/routesort/internal/classify"
	"github.com/local/routesort/internal/metrics"
)

const defaultConcurrency = 4

// Output describes one written partition file.
type Output struct {
	Route string `json:"route"`
	File  string `json:"file"`
	Path  string `json:"path"`
	Pages []int  `json:"pages"`
	URL   string `json:"url,omitempty"`
}

// Publisher copies a written file to remote storage and returns its location.
type Publisher interface {
	Publish(ctx context.Context, localPath, name string) (string, error)
}

// Options configures a Partitioner.
type Options struct {
	Dir         string
	Concurrency int
	Publisher   Publisher
}

// Partitioner writes partition files into a directory.
type Partitioner struct {
	opts Options
}

// New creates a Partitioner. Concurrency <= 0 uses the default of 4.
func New(opts Options) *Partitioner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Partitioner{opts: opts}
}

// Failure is one partition file that could not be written.
type Failure struct {
	Route string
	File  string
	Err   error
}

// OutputWriteError reports the partition files that failed. Files that were
// written stay in place.
type OutputWriteError struct {
	Failures []Failure
}

func (e *OutputWriteError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.File, f.Err)
	}
	return fmt.Sprintf("failed to write %d output file(s): %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *OutputWriteError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Plan lists the outputs for g without writing anything: route groups in
// first-seen order, then Unassigned when it has pages.
func Plan(dir string, g *classify.Grouping) []Output {
	var out []Output
	add := func(route string, pages []int) {
		if len(pages) == 0 {
			return
		}
		name := FileName(route)
		out = append(out, Output{Route: route, File: name, Path: filepath.Join(dir, name), Pages: pages})
	}
	for _, grp := range g.Groups {
		add(grp.Route, grp.Pages)
	}
	add(classify.Unassigned, g.Unassigned)
	return out
}

// Write extracts each group's pages from srcPath into its own file. Writes
// are independent: every planned file is attempted, and failures are
// returned together as an *OutputWriteError once all writes have finished.
func (p *Partitioner) Write(ctx context.Context, srcPath string, g *classify.Grouping) ([]Output, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grouping: %w", err)
	}
	if err := os.MkdirAll(p.opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	planned := Plan(p.opts.Dir, g)
	errs := make([]error, len(planned))

	var eg errgroup.Group
	eg.SetLimit(p.opts.Concurrency)
	for i := range planned {
		eg.Go(func() error {
			errs[i] = p.writeOne(ctx, srcPath, &planned[i])
			return nil
		})
	}
	_ = eg.Wait()

	var (
		written  []Output
		failures []Failure
	)
	for i, o := range planned {
		if errs[i] != nil {
			failures = append(failures, Failure{Route: o.Route, File: o.File, Err: errs[i]})
			continue
		}
		written = append(written, o)
	}
	if len(failures) > 0 {
		return written, &OutputWriteError{Failures: failures}
	}
	return written, nil
}

func (p *Partitioner) writeOne(ctx context.Context, srcPath string, o *Output) (err error) {
	logger := log.Ctx(ctx).With().Str("route", o.Route).Str("file", o.File).Logger()
	defer func() {
		if err != nil {
			metrics.IncPartition("failed")
			logger.Error().Err(err).Msg("failed to write partition")
			return
		}
		metrics.IncPartition("written")
		logger.Info().Int("pages", len(o.Pages)).Msg("partition written")
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := extractPages(srcPath, o.Path, o.Pages); err != nil {
		return err
	}

	if p.opts.Publisher != nil {
		url, err := p.opts.Publisher.Publish(ctx, o.Path, o.File)
		if err != nil {
			return fmt.Errorf("publish %s: %w", o.File, err)
		}
		o.URL = url
	}
	return nil
}

var configOnce sync.Once

// newConf builds an in-memory pdfcpu configuration; pdfcpu's on-disk config
// directory is never created.
func newConf() *model.Configuration {
	configOnce.Do(func() { model.ConfigPath = "disable" })
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// extractPages writes the 0-based pages of src into dst via a temp file in
// dst's directory, so a partial file never appears under dst.
func extractPages(src, dst string, pages []int) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".partition-*.pdf")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	selected := make([]string, len(pages))
	for i, pg := range pages {
		selected[i] = strconv.Itoa(pg + 1)
	}
	if err := api.TrimFile(src, tmpPath, selected, newConf()); err != nil {
		return fmt.Errorf("pdf page selection failed: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

// IsOutputWriteError reports whether err carries partition write failures.
func IsOutputWriteError(err error) bool {
	var owe *OutputWriteError
	return errors.As(err, &owe)
}
