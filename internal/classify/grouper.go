package classify

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/local/routesort/internal/extract"
	"github.com/local/routesort/internal/metrics"
	"github.com/local/routesort/internal/recognize"
)

// Extractor yields best-effort text for a page.
type Extractor interface {
	Extract(ctx context.Context, doc extract.Document, page int) extract.Outcome
}

// Recognizer finds an identifier in page text.
type Recognizer interface {
	Recognize(text string) (recognize.Match, bool)
}

// Resolver maps an identifier to a route.
type Resolver interface {
	Resolve(id string) (string, bool)
}

// ProgressFunc is called after each page with the pages done so far.
type ProgressFunc func(done, total int)

// Option configures a Grouper.
type Option func(*Grouper)

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(g *Grouper) { g.progress = fn }
}

// WithPageText keeps extracted text on each PageRecord.
func WithPageText(keep bool) Option {
	return func(g *Grouper) { g.keepText = keep }
}

// Grouper runs the sequential extract, recognize, resolve, assign pass.
type Grouper struct {
	extractor  Extractor
	recognizer Recognizer
	resolver   Resolver
	progress   ProgressFunc
	keepText   bool
}

// NewGrouper wires the pipeline stages. The resolver is read-only for the
// duration of Group.
func NewGrouper(ex Extractor, rec Recognizer, res Resolver, opts ...Option) *Grouper {
	g := &Grouper{extractor: ex, recognizer: rec, resolver: res}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Group classifies pages 0..N-1 in order. Page-level failures never abort the
// pass; they land in Unassigned. Cancellation is checked before each page.
func (g *Grouper) Group(ctx context.Context, doc extract.Document) (*Grouping, error) {
	total := doc.NumPage()
	out := newGrouping(total)
	logger := log.Ctx(ctx)

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			logger.Warn().Int("page", i).Int("total", total).Msg("grouping stopped")
			return nil, err
		}

		rec := g.classifyPage(ctx, doc, i)
		out.assign(rec)
		metrics.IncPage(string(rec.Outcome))

		ev := logger.Debug().Int("page", i).Str("outcome", string(rec.Outcome))
		if rec.Identifier != "" {
			ev = ev.Str("identifier", rec.Identifier).Str("rule", rec.Rule)
		}
		ev.Str("route", rec.Route).Msg("page classified")

		if g.progress != nil {
			g.progress(i+1, total)
		}
	}

	logger.Info().
		Int("pages", total).
		Int("routes", len(out.Groups)).
		Int("unassigned", len(out.Unassigned)).
		Msg("grouping complete")
	return out, nil
}

func (g *Grouper) classifyPage(ctx context.Context, doc extract.Document, page int) (rec PageRecord) {
	rec = PageRecord{Index: page, Route: Unassigned, Outcome: OutcomeFailed}
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).Error().
				Int("page", page).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("page classification panicked")
			rec = PageRecord{
				Index:   page,
				Route:   Unassigned,
				Outcome: OutcomeFailed,
				Err:     fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	res := g.extractor.Extract(ctx, doc, page)
	rec.Strategy = string(res.Strategy)
	rec.HasText = res.Text != ""
	if g.keepText {
		rec.Text = res.Text
	}
	if err := res.Err(); err != nil {
		rec.Err = err.Error()
	}

	m, ok := g.recognizer.Recognize(res.Text)
	if !ok {
		if rec.Err == "" {
			rec.Outcome = OutcomeUnrecognized
		}
		return rec
	}
	rec.Identifier, rec.Rule = m.Identifier, m.Rule
	metrics.IncRecognized(m.Rule)

	route, ok := g.resolver.Resolve(m.Identifier)
	if !ok {
		rec.Outcome = OutcomeUnresolved
		return rec
	}
	rec.Route, rec.Outcome = route, OutcomeMatched
	return rec
}
