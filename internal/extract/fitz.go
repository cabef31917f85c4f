package extract

import (
	"fmt"
	"image"

	fitz "github.com/gen2brain/go-fitz"
)

// fitzOpener opens documents with go-fitz (MuPDF), which can both extract
// embedded text and rasterise pages.
type fitzOpener struct{}

func (fitzOpener) Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return fitzDoc{doc}, nil
}

type fitzDoc struct{ doc *fitz.Document }

func (d fitzDoc) NumPage() int { return d.doc.NumPage() }

func (d fitzDoc) Text(page int) (string, error) {
	text, err := d.doc.Text(page)
	if err != nil {
		return "", fmt.Errorf("text page %d: %w", page+1, err)
	}
	return text, nil
}

func (d fitzDoc) Image(page int, dpi float64) (image.Image, error) {
	img, err := d.doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page+1, err)
	}
	return img, nil
}

func (d fitzDoc) Close() error { return d.doc.Close() }
