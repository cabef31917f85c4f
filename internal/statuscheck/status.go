package statuscheck

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/local/routesort/internal/reftable"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// BucketChecker verifies an S3 bucket is reachable.
type BucketChecker interface {
	HeadBucket(ctx context.Context, bucket string) error
}

// ToolChecker reports whether a local tool is usable.
type ToolChecker interface {
	IsAvailable() bool
}

// Checker aggregates readiness checks for the service's dependencies.
type Checker struct {
	redis       RedisPinger
	s3          BucketChecker
	s3Bucket    string
	tablePath   string
	libreOffice ToolChecker
	ocrVersion  func() string
}

// Options configures the Checker. Nil dependencies are reported as disabled.
type Options struct {
	Redis       RedisPinger
	S3          BucketChecker
	S3Bucket    string
	TablePath   string
	LibreOffice ToolChecker
	// OCRVersion returns the linked OCR engine version; nil when OCR is off.
	OCRVersion func() string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK       bool   `json:"ok"`
	Required bool   `json:"required"`
	Message  string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Table       Status `json:"table"`
	Redis       Status `json:"redis"`
	S3          Status `json:"s3"`
	LibreOffice Status `json:"libreoffice"`
	OCR         Status `json:"ocr"`
}

// Ready reports whether every required subsystem is OK.
func (s Summary) Ready() bool {
	for _, st := range []Status{s.Table, s.Redis, s.S3, s.LibreOffice, s.OCR} {
		if st.Required && !st.OK {
			return false
		}
	}
	return true
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{
		redis:       opts.Redis,
		s3:          opts.S3,
		s3Bucket:    opts.S3Bucket,
		tablePath:   opts.TablePath,
		libreOffice: opts.LibreOffice,
		ocrVersion:  opts.OCRVersion,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Table:       c.checkTable(),
		Redis:       c.checkRedis(ctx),
		S3:          c.checkS3(ctx),
		LibreOffice: c.checkLibreOffice(),
		OCR:         c.checkOCR(),
	}
}

func (c *Checker) checkTable() Status {
	st := Status{Required: true}
	t, err := reftable.Load(c.tablePath)
	if err != nil {
		st.Message = trimError(err)
		return st
	}
	st.OK = true
	if t.Len() == 0 {
		st.Message = "Loaded (empty)"
	} else {
		st.Message = "Loaded"
	}
	return st
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{Required: true, Message: trimError(err)}
	}
	return Status{OK: true, Required: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3 == nil || c.s3Bucket == "" {
		return Status{Message: "Bucket not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.s3.HeadBucket(ctx, c.s3Bucket); err != nil {
		return Status{Required: true, Message: trimError(err)}
	}
	return Status{OK: true, Required: true, Message: "Connected"}
}

func (c *Checker) checkLibreOffice() Status {
	if c.libreOffice == nil || !c.libreOffice.IsAvailable() {
		return Status{Message: "Binary not found (.xls/.ods import disabled)"}
	}
	return Status{OK: true, Message: "Available"}
}

func (c *Checker) checkOCR() Status {
	if c.ocrVersion == nil {
		return Status{Message: "Disabled"}
	}
	return Status{OK: true, Message: "Tesseract " + c.ocrVersion()}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, os.ErrNotExist) {
		return "not found"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
