package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the role a file can play in a sorting run.
type Kind string

const (
	KindPDF Kind = "pdf"
	// KindSpreadsheet is readable directly (.xlsx).
	KindSpreadsheet Kind = "spreadsheet"
	// KindLegacySpreadsheet needs conversion to .xlsx first (.xls, .ods).
	KindLegacySpreadsheet Kind = "legacy_spreadsheet"
	KindUnsupported       Kind = "unsupported"
)

const (
	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeXLS  = "application/vnd.ms-excel"
	mimeODS  = "application/vnd.oasis.opendocument.spreadsheet"
)

// Info contains detected file type information.
type Info struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Description string
}

// Detector detects file types from magic bytes, falling back to the file
// extension for container formats (ZIP, OLE) that share a signature.
type Detector struct{}

// New creates a new file type detector.
func New() *Detector {
	return &Detector{}
}

// Detect inspects the file at filePath.
func (d *Detector) Detect(filePath string) (*Info, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	return d.classify(mtype.String(), mtype.Extension(), filePath), nil
}

// DetectBytes inspects an in-memory header, e.g. the start of an upload.
func (d *Detector) DetectBytes(data []byte, name string) *Info {
	mtype := mimetype.Detect(data)
	return d.classify(mtype.String(), mtype.Extension(), name)
}

func (d *Detector) classify(mimeType, extension, name string) *Info {
	ext := strings.ToLower(filepath.Ext(name))
	log.Debug().Str("mime", mimeType).Str("ext", extension).Str("file", name).Msg("detected file type")

	switch {
	case mimeType == "application/zip" || strings.Contains(mimeType, "application/x-zip"):
		// Some producers write xlsx/ods without the expected first entry.
		switch ext {
		case ".xlsx":
			mimeType, extension = mimeXLSX, ".xlsx"
		case ".ods":
			mimeType, extension = mimeODS, ".ods"
		default:
			log.Warn().Str("ext", ext).Msg("ZIP file with unrecognized extension")
		}
	case mimeType == "application/x-ole-storage" || mimeType == "application/x-cfb":
		if ext == ".xls" {
			mimeType, extension = mimeXLS, ".xls"
		} else {
			log.Warn().Str("ext", ext).Msg("OLE storage with unrecognized extension")
		}
	}

	info := &Info{MIMEType: mimeType, Extension: extension}
	switch {
	case strings.HasPrefix(mimeType, mimePDF):
		info.Kind = KindPDF
		info.Description = "PDF document"
	case mimeType == mimeXLSX:
		info.Kind = KindSpreadsheet
		info.Description = "Microsoft Excel spreadsheet"
	case mimeType == mimeXLS:
		info.Kind = KindLegacySpreadsheet
		info.Description = "Microsoft Excel spreadsheet (legacy)"
	case mimeType == mimeODS:
		info.Kind = KindLegacySpreadsheet
		info.Description = "OpenDocument spreadsheet"
	default:
		info.Kind = KindUnsupported
		info.Description = "Unsupported file type"
	}
	return info
}
