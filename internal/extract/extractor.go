// Package extract produces best-effort plain text for a single PDF page,
// trying embedded text first and OCR second (or the reverse), and never
// failing the caller: a page whose strategies all fail yields empty text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/routesort/internal/metrics"
)

// Strategy names a way of getting text off a page.
type Strategy string

const (
	StrategyEmbedded Strategy = "embedded"
	StrategyOCR      Strategy = "ocr"
	// StrategyNone marks an outcome where no strategy produced text.
	StrategyNone Strategy = "none"
)

// ErrOCRDisabled is the attempt error when no OCR engine is configured.
var ErrOCRDisabled = errors.New("ocr is not configured")

const (
	defaultDPI = 300
	sampleLen  = 200
)

// whitespaceRegex matches any whitespace; used to count visible characters.
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Attempt records one strategy run.
type Attempt struct {
	Strategy Strategy
	Chars    int
	Err      error
}

// Outcome is the result of extracting one page.
type Outcome struct {
	Text     string
	Strategy Strategy
	Attempts []Attempt
}

// Err joins attempt errors when no strategy produced text.
func (o Outcome) Err() error {
	if o.Strategy != StrategyNone {
		return nil
	}
	var errs []error
	for _, a := range o.Attempts {
		if a.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Strategy, a.Err))
		}
	}
	return errors.Join(errs...)
}

// Options tunes the extractor.
type Options struct {
	// PreferOCR makes OCR the primary strategy.
	PreferOCR bool
	// MinChars is the visible-character count below which the primary
	// strategy's text is judged insufficient and the secondary is tried.
	MinChars int
	// DPI used when rasterising a page for OCR.
	DPI float64
	// PageTimeout bounds OCR recognition of one page; zero disables the
	// bound. Document reads are not interruptible and always complete.
	PageTimeout time.Duration
}

// Extractor runs the two-step primary/secondary attempt.
type Extractor struct {
	opts Options
	ocr  OCR
}

// New creates an extractor. A nil ocr disables the OCR strategy.
func New(opts Options, ocr OCR) *Extractor {
	if opts.DPI <= 0 {
		opts.DPI = defaultDPI
	}
	return &Extractor{opts: opts, ocr: ocr}
}

// Extract returns the text of page. An out-of-range page yields an empty
// outcome without attempts.
func (e *Extractor) Extract(ctx context.Context, doc Document, page int) Outcome {
	if doc == nil || page < 0 || page >= doc.NumPage() {
		return Outcome{Strategy: StrategyNone}
	}
	logger := log.Ctx(ctx).With().Int("page", page).Logger()

	order := []Strategy{StrategyEmbedded, StrategyOCR}
	if e.opts.PreferOCR {
		order = []Strategy{StrategyOCR, StrategyEmbedded}
	}

	out := Outcome{Strategy: StrategyNone}
	var candidate *Attempt
	var candidateText string
	for _, s := range order {
		if ctx.Err() != nil {
			break
		}
		text, err := e.attempt(ctx, doc, page, s)
		a := Attempt{Strategy: s, Chars: visibleChars(text), Err: err}
		out.Attempts = append(out.Attempts, a)

		switch {
		case errors.Is(err, ErrOCRDisabled) || errors.Is(err, ErrUnsupported):
			metrics.ObserveExtraction(string(s), "unavailable")
			logger.Debug().Str("strategy", string(s)).Err(err).Msg("extraction strategy unavailable")
			continue
		case err != nil:
			metrics.ObserveExtraction(string(s), "error")
			logger.Warn().Str("strategy", string(s)).Err(err).Msg("extraction strategy failed")
			continue
		case a.Chars < e.opts.MinChars:
			metrics.ObserveExtraction(string(s), "insufficient")
			logger.Debug().Str("strategy", string(s)).Int("chars", a.Chars).Msg("extracted text insufficient")
			if candidate == nil || a.Chars > candidate.Chars {
				candidate, candidateText = &out.Attempts[len(out.Attempts)-1], text
			}
			continue
		}

		metrics.ObserveExtraction(string(s), "ok")
		out.Text, out.Strategy = text, s
		logSample(logger, s, text)
		return out
	}

	if candidate != nil {
		out.Text, out.Strategy = candidateText, candidate.Strategy
		logSample(logger, candidate.Strategy, candidateText)
		return out
	}
	logger.Warn().Err(out.Err()).Msg("no extraction strategy produced text; using empty text")
	return out
}

// attempt runs one strategy on the caller's goroutine, so the document is
// never touched after attempt returns. PageTimeout bounds OCR recognition,
// which works on an encoded copy of the page.
func (e *Extractor) attempt(ctx context.Context, doc Document, page int, s Strategy) (text string, err error) {
	if s == StrategyOCR && e.ocr == nil {
		return "", ErrOCRDisabled
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("panic: %v", r)
		}
	}()

	switch s {
	case StrategyEmbedded:
		return doc.Text(page)
	case StrategyOCR:
		return e.ocrPage(ctx, doc, page)
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

func (e *Extractor) ocrPage(ctx context.Context, doc Document, page int) (string, error) {
	img, err := doc.Image(page, e.opts.DPI)
	if err != nil {
		return "", err
	}
	data, err := encodeGrayPNG(img)
	if err != nil {
		return "", err
	}
	if e.opts.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.PageTimeout)
		defer cancel()
	}
	return e.ocr.Text(ctx, data)
}

func visibleChars(s string) int {
	return len([]rune(whitespaceRegex.ReplaceAllString(s, "")))
}

func logSample(logger zerolog.Logger, s Strategy, text string) {
	logger.Debug().
		Str("strategy", string(s)).
		Int("chars", len(text)).
		Str("sample", Sample(text, sampleLen)).
		Msg("page text extracted")
}

// Sample returns at most n runes of s.
func Sample(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
