package extract

import (
	"fmt"
	"image"
	"os"

	"github.com/ledongthuc/pdf"
)

// pureOpener reads embedded text without cgo. It cannot rasterise, so the
// OCR strategy is unavailable on documents it opens.
type pureOpener struct{}

func (pureOpener) Open(path string) (Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &pureDoc{file: f, reader: r}, nil
}

type pureDoc struct {
	file   *os.File
	reader *pdf.Reader
}

func (d *pureDoc) NumPage() int { return d.reader.NumPage() }

func (d *pureDoc) Text(page int) (text string, err error) {
	// The parser panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("text page %d: %v", page+1, r)
		}
	}()
	p := d.reader.Page(page + 1)
	if p.V.IsNull() {
		return "", nil
	}
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("text page %d: %w", page+1, err)
	}
	return text, nil
}

func (d *pureDoc) Image(int, float64) (image.Image, error) { return nil, ErrUnsupported }

func (d *pureDoc) Close() error { return d.file.Close() }
