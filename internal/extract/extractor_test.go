package extract

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct {
	text    string
	textErr error
	imgErr  error
	delay   time.Duration
}

// fakeDoc records how many calls overlap and whether any call arrives
// after Close.
type fakeDoc struct {
	pages []fakePage

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	closed      atomic.Bool
	afterClose  atomic.Int32
}

func (d *fakeDoc) enter() func() {
	if d.closed.Load() {
		d.afterClose.Add(1)
	}
	n := d.inFlight.Add(1)
	for {
		m := d.maxInFlight.Load()
		if n <= m || d.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	return func() { d.inFlight.Add(-1) }
}

func (d *fakeDoc) NumPage() int { return len(d.pages) }

func (d *fakeDoc) Text(page int) (string, error) {
	defer d.enter()()
	p := d.pages[page]
	time.Sleep(p.delay)
	return p.text, p.textErr
}

func (d *fakeDoc) Image(page int, dpi float64) (image.Image, error) {
	defer d.enter()()
	if err := d.pages[page].imgErr; err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)
	return img, nil
}

func (d *fakeDoc) Close() error {
	d.closed.Store(true)
	return nil
}

type fakeOCR struct {
	text  string
	err   error
	calls int
	// wait blocks until ctx is done, like a recognition that overruns.
	wait bool
}

func (o *fakeOCR) Text(ctx context.Context, img []byte) (string, error) {
	o.calls++
	if o.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return o.text, o.err
}

func TestExtract_EmbeddedSufficient(t *testing.T) {
	ocr := &fakeOCR{text: "from ocr"}
	e := New(Options{MinChars: 1}, ocr)
	doc := &fakeDoc{pages: []fakePage{{text: "Customer Ref: ABC123"}}}

	out := e.Extract(context.Background(), doc, 0)

	assert.Equal(t, "Customer Ref: ABC123", out.Text)
	assert.Equal(t, StrategyEmbedded, out.Strategy)
	assert.Len(t, out.Attempts, 1)
	assert.Zero(t, ocr.calls, "OCR must not run when embedded text suffices")
	assert.NoError(t, out.Err())
}

func TestExtract_FallsBackToOCRWhenEmbeddedEmpty(t *testing.T) {
	ocr := &fakeOCR{text: "KSG1234 scanned"}
	e := New(Options{MinChars: 1}, ocr)
	doc := &fakeDoc{pages: []fakePage{{text: "  \n\t "}}}

	out := e.Extract(context.Background(), doc, 0)

	assert.Equal(t, "KSG1234 scanned", out.Text)
	assert.Equal(t, StrategyOCR, out.Strategy)
	require.Len(t, out.Attempts, 2)
	assert.Equal(t, StrategyEmbedded, out.Attempts[0].Strategy)
	assert.Equal(t, 0, out.Attempts[0].Chars)
	assert.Equal(t, 1, ocr.calls)
}

func TestExtract_FallsBackToOCRWhenEmbeddedFails(t *testing.T) {
	ocr := &fakeOCR{text: "ARAM001"}
	e := New(Options{MinChars: 1}, ocr)
	doc := &fakeDoc{pages: []fakePage{{textErr: errors.New("broken stream")}}}

	out := e.Extract(context.Background(), doc, 0)

	assert.Equal(t, "ARAM001", out.Text)
	assert.Equal(t, StrategyOCR, out.Strategy)
	require.Len(t, out.Attempts, 2)
	assert.Error(t, out.Attempts[0].Err)
}

func TestExtract_InsufficientPrimaryKeptWhenSecondaryFails(t *testing.T) {
	ocr := &fakeOCR{err: errors.New("tesseract crashed")}
	e := New(Options{MinChars: 10}, ocr)
	doc := &fakeDoc{pages: []fakePage{{text: "ab"}}}

	out := e.Extract(context.Background(), doc, 0)

	assert.Equal(t, "ab", out.Text)
	assert.Equal(t, StrategyEmbedded, out.Strategy)
	assert.NoError(t, out.Err())
}

func TestExtract_BothFailYieldsEmptyText(t *testing.T) {
	ocr := &fakeOCR{}
	e := New(Options{MinChars: 1}, ocr)
	doc := &fakeDoc{pages: []fakePage{{
		textErr: errors.New("no text layer"),
		imgErr:  errors.New("render failed"),
	}}}

	out := e.Extract(context.Background(), doc, 0)

	assert.Empty(t, out.Text)
	assert.Equal(t, StrategyNone, out.Strategy)
	require.Len(t, out.Attempts, 2)
	err := out.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text layer")
	assert.Contains(t, err.Error(), "render failed")
	assert.Zero(t, ocr.calls)
}

func TestExtract_PreferOCR(t *testing.T) {
	ocr := &fakeOCR{text: "ocr text"}
	e := New(Options{MinChars: 1, PreferOCR: true}, ocr)
	doc := &fakeDoc{pages: []fakePage{{text: "embedded text"}}}

	out := e.Extract(context.Background(), doc, 0)

	assert.Equal(t, "ocr text", out.Text)
	assert.Equal(t, StrategyOCR, out.Strategy)
	assert.Len(t, out.Attempts, 1)
}

func TestExtract_NoOCRConfigured(t *testing.T) {
	e := New(Options{MinChars: 1}, nil)
	doc := &fakeDoc{pages: []fakePage{{text: ""}}}

	out := e.Extract(context.Background(), doc, 0)

	assert.Empty(t, out.Text)
	assert.Equal(t, StrategyEmbedded, out.Strategy)
	require.Len(t, out.Attempts, 2)
	assert.ErrorIs(t, out.Attempts[1].Err, ErrOCRDisabled)
}

func TestExtract_OutOfRange(t *testing.T) {
	e := New(Options{MinChars: 1}, &fakeOCR{text: "x"})
	doc := &fakeDoc{pages: []fakePage{{text: "only page"}}}

	for _, page := range []int{-1, 1, 42} {
		out := e.Extract(context.Background(), doc, page)
		assert.Empty(t, out.Text, "page %d", page)
		assert.Equal(t, StrategyNone, out.Strategy)
		assert.Empty(t, out.Attempts)
	}
}

func TestExtract_PageTimeoutBoundsOCR(t *testing.T) {
	ocr := &fakeOCR{wait: true}
	e := New(Options{MinChars: 1, PageTimeout: 20 * time.Millisecond}, ocr)
	doc := &fakeDoc{pages: []fakePage{{text: ""}}}

	out := e.Extract(context.Background(), doc, 0)

	assert.Empty(t, out.Text)
	require.Len(t, out.Attempts, 2)
	assert.ErrorIs(t, out.Attempts[1].Err, context.DeadlineExceeded)
}

func TestExtract_SlowDocumentReadsStaySequential(t *testing.T) {
	e := New(Options{MinChars: 1, PageTimeout: 20 * time.Millisecond}, &fakeOCR{text: "unused"})
	doc := &fakeDoc{pages: []fakePage{
		{text: "KSG101", delay: 150 * time.Millisecond},
		{text: "KSG102", delay: 150 * time.Millisecond},
		{text: "KSG103", delay: 150 * time.Millisecond},
	}}

	var texts []string
	for page := 0; page < doc.NumPage(); page++ {
		out := e.Extract(context.Background(), doc, page)
		texts = append(texts, out.Text)
	}
	require.NoError(t, doc.Close())
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, []string{"KSG101", "KSG102", "KSG103"}, texts)
	assert.EqualValues(t, 1, doc.maxInFlight.Load())
	assert.Zero(t, doc.afterClose.Load())
	assert.Zero(t, doc.inFlight.Load())
}

func TestTesseract_TextHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTesseract(300, "eng").Text(ctx, []byte("not an image"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVisibleChars(t *testing.T) {
	assert.Equal(t, 0, visibleChars(" \n\t\r "))
	assert.Equal(t, 6, visibleChars("ab c\nd ef"))
	assert.Equal(t, 3, visibleChars("äöü"))
}

func TestSample(t *testing.T) {
	long := strings.Repeat("é", 250)
	assert.Len(t, []rune(Sample(long, 200)), 200)
	assert.Equal(t, "short", Sample("short", 200))
}

func TestEncodeGrayPNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	data, err := encodeGrayPNG(img)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])
}

func TestNewOpener(t *testing.T) {
	for _, name := range []string{"", "fitz", "MuPDF", "pure", "ledongthuc"} {
		_, err := NewOpener(name)
		assert.NoError(t, err, name)
	}
	_, err := NewOpener("poppler")
	assert.Error(t, err)
}
