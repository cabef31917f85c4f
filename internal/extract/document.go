package extract

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// ErrUnsupported is returned by a backend that lacks a capability, e.g.
// rasterisation on the pure-Go backend.
var ErrUnsupported = errors.New("not supported by this PDF backend")

// Document abstracts an opened, paginated PDF. Page indices are 0-based.
type Document interface {
	NumPage() int
	Text(page int) (string, error)
	Image(page int, dpi float64) (image.Image, error)
	Close() error
}

// Opener abstracts opening a PDF path into a Document.
type Opener interface {
	Open(path string) (Document, error)
}

// Backend names accepted by NewOpener.
const (
	BackendFitz = "fitz"
	BackendPure = "pure"
)

// NewOpener returns the opener for backend; empty selects go-fitz.
func NewOpener(backend string) (Opener, error) {
	switch strings.ToLower(backend) {
	case "", BackendFitz, "mupdf":
		return fitzOpener{}, nil
	case BackendPure, "ledongthuc":
		return pureOpener{}, nil
	default:
		return nil, fmt.Errorf("unknown PDF backend %q", backend)
	}
}
