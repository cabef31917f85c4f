package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// OCR recognizes text in an encoded page image.
type OCR interface {
	Text(ctx context.Context, img []byte) (string, error)
}

// Tesseract runs OCR through gosseract. Page segmentation mode 6 treats the
// page as a single uniform block, which suits delivery notes and invoices.
//
// Text returns when ctx is done, but the engine cannot be interrupted: the
// abandoned recognition keeps the single slot until it finishes, so a
// later call waits for it or times out itself.
type Tesseract struct {
	Languages []string
	DPI       int

	slot chan struct{}
}

// NewTesseract creates a Tesseract OCR for languages (e.g. "eng").
func NewTesseract(dpi int, languages ...string) *Tesseract {
	return &Tesseract{Languages: languages, DPI: dpi, slot: make(chan struct{}, 1)}
}

// Version reports the linked Tesseract version.
func (t *Tesseract) Version() string { return gosseract.Version() }

func (t *Tesseract) Text(ctx context.Context, img []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if t.slot == nil {
		return t.recognize(img)
	}
	select {
	case t.slot <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() { <-t.slot }()
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("tesseract panic: %v", r)}
			}
		}()
		text, err := t.recognize(img)
		ch <- result{text, err}
	}()

	select {
	case r := <-ch:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// recognize touches only its own client and img.
func (t *Tesseract) recognize(img []byte) (string, error) {
	c := gosseract.NewClient()
	defer c.Close()

	if len(t.Languages) > 0 {
		if err := c.SetLanguage(t.Languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return "", fmt.Errorf("set page segmentation: %w", err)
	}
	if t.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(t.DPI)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// encodeGrayPNG converts a rendered page to grayscale PNG for OCR input.
func encodeGrayPNG(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, fmt.Errorf("encode page image: %w", err)
	}
	return buf.Bytes(), nil
}
