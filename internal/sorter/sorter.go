// Package sorter runs one sorting job end to end: load the reference table,
// fetch and open the document, classify its pages and write the partitions.
package sorter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/routesort/internal/classify"
	"github.com/local/routesort/internal/extract"
	"github.com/local/routesort/internal/filetype"
	"github.com/local/routesort/internal/logger"
	"github.com/local/routesort/internal/metrics"
	"github.com/local/routesort/internal/partition"
	"github.com/local/routesort/internal/recognize"
	"github.com/local/routesort/internal/reftable"
	"github.com/local/routesort/internal/source"
)

// Fetcher resolves a document reference to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*source.Local, error)
}

// PublisherFactory returns the publisher for a job, or nil to skip publishing.
type PublisherFactory func(jobID string) partition.Publisher

// Options wires a Sorter.
type Options struct {
	TablePath         string
	Opener            extract.Opener
	Extractor         classify.Extractor
	Fetcher           Fetcher
	OutputConcurrency int
	Publishers        PublisherFactory
	// KeepPageText includes extracted text in report page records.
	KeepPageText bool
}

// Sorter runs sorting jobs. It holds no per-run state and is safe to reuse.
type Sorter struct {
	opts     Options
	detector *filetype.Detector
}

func New(opts Options) *Sorter {
	if opts.Fetcher == nil {
		opts.Fetcher = &source.Fetcher{}
	}
	return &Sorter{opts: opts, detector: filetype.New()}
}

// Request is one sorting job.
type Request struct {
	// JobID tags logs and published objects; generated when empty.
	JobID     string
	Document  string
	OutputDir string
	Progress  classify.ProgressFunc
}

// Report summarises a finished run.
type Report struct {
	JobID            string                `json:"job_id"`
	Document         string                `json:"document"`
	TotalPages       int                   `json:"total_pages"`
	Routes           []string              `json:"routes"`
	MatchedCustomers int                   `json:"matched_customers"`
	Unassigned       []int                 `json:"unassigned"`
	Outputs          []partition.Output    `json:"outputs"`
	CustomerRoutes   map[string]string     `json:"customer_routes"`
	Pages            []classify.PageRecord `json:"pages"`
	Duration         time.Duration         `json:"duration_ns"`
}

// Summary is the one-line human summary of the run.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d pages processed: %d routes, %d customers matched, %d pages unassigned",
		r.TotalPages, len(r.Routes), r.MatchedCustomers, len(r.Unassigned))
}

// Run executes req. A reference table problem returns *FatalConfigError
// before the document is touched. Partition write failures return the
// report together with a *partition.OutputWriteError.
func (s *Sorter) Run(ctx context.Context, req Request) (rep *Report, err error) {
	start := time.Now()
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	ctx = logger.WithJob(ctx, req.JobID)
	l := log.Ctx(ctx)

	defer func() {
		metrics.ObserveRun(runResult(err), time.Since(start))
	}()

	table, err := reftable.Load(s.opts.TablePath)
	if err != nil {
		l.Error().Err(err).Str("table", s.opts.TablePath).Msg("reference table could not be loaded")
		return nil, &FatalConfigError{Path: s.opts.TablePath, Err: err}
	}
	if table.Len() == 0 {
		l.Warn().Str("table", s.opts.TablePath).Msg("reference table is empty; every page will be unassigned")
	}

	local, err := s.opts.Fetcher.Fetch(ctx, req.Document)
	if err != nil {
		return nil, &DocumentError{Ref: req.Document, Reason: "fetch failed", Err: err}
	}
	defer local.Close()

	info, err := s.detector.Detect(local.Path)
	if err != nil {
		return nil, &DocumentError{Ref: req.Document, Reason: "type detection failed", Err: err}
	}
	if info.Kind != filetype.KindPDF {
		return nil, &DocumentError{Ref: req.Document, Reason: "not a PDF (" + info.MIMEType + ")"}
	}

	doc, err := s.opts.Opener.Open(local.Path)
	if err != nil {
		return nil, &DocumentError{Ref: req.Document, Reason: "open failed", Err: err}
	}
	defer doc.Close()

	l.Info().
		Str("document", req.Document).
		Int("pages", doc.NumPage()).
		Int("table_entries", table.Len()).
		Msg("sorting started")

	grouper := classify.NewGrouper(
		s.opts.Extractor,
		recognize.New(recognize.DefaultRules(table)...),
		table,
		classify.WithProgress(req.Progress),
		classify.WithPageText(s.opts.KeepPageText),
	)
	grouping, err := grouper.Group(ctx, doc)
	if err != nil {
		return nil, err
	}

	var pub partition.Publisher
	if s.opts.Publishers != nil {
		pub = s.opts.Publishers(req.JobID)
	}
	outputs, werr := partition.New(partition.Options{
		Dir:         req.OutputDir,
		Concurrency: s.opts.OutputConcurrency,
		Publisher:   pub,
	}).Write(ctx, local.Path, grouping)
	if werr != nil && !partition.IsOutputWriteError(werr) {
		return nil, werr
	}

	rep = &Report{
		JobID:            req.JobID,
		Document:         req.Document,
		TotalPages:       grouping.TotalPages,
		Routes:           grouping.Routes(),
		MatchedCustomers: len(grouping.CustomerRoutes),
		Unassigned:       grouping.Unassigned,
		Outputs:          outputs,
		CustomerRoutes:   grouping.CustomerRoutes,
		Pages:            grouping.Pages,
		Duration:         time.Since(start),
	}
	l.Info().
		Int("pages", rep.TotalPages).
		Int("routes", len(rep.Routes)).
		Int("customers", rep.MatchedCustomers).
		Int("unassigned", len(rep.Unassigned)).
		Int("outputs", len(rep.Outputs)).
		Dur("duration", rep.Duration).
		Msg("sorting finished")
	return rep, werr
}

func runResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsFatalConfig(err):
		return "fatal_config"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case partition.IsOutputWriteError(err):
		return "partial"
	default:
		return "failed"
	}
}

// FormatRoutes renders route -> file lines for CLI output.
func (r *Report) FormatRoutes() string {
	var b strings.Builder
	for _, o := range r.Outputs {
		fmt.Fprintf(&b, "%-24s %3d page(s)  %s\n", o.Route, len(o.Pages), o.File)
	}
	return b.String()
}
