package main

import (
	"context"
	"net/http"
	"path"
	"time"

	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/routesort/internal/config"
	"github.com/local/routesort/internal/converter"
	"github.com/local/routesort/internal/extract"
	"github.com/local/routesort/internal/partition"
	"github.com/local/routesort/internal/reftable"
	"github.com/local/routesort/internal/sorter"
	"github.com/local/routesort/internal/source"
	"github.com/local/routesort/internal/storage"
)

// app holds the pieces shared by the sort, watch and serve commands.
type app struct {
	cfg    cfgpkg.Config
	s3     *storage.S3Client
	ocr    *extract.Tesseract
	sorter *sorter.Sorter
}

func newApp(ctx context.Context, cfg cfgpkg.Config) (*app, error) {
	opener, err := extract.NewOpener(cfg.Extract.Backend)
	if err != nil {
		return nil, err
	}
	rt := &app{cfg: cfg}

	var ocr extract.OCR
	if cfg.Extract.OCREnabled {
		rt.ocr = extract.NewTesseract(cfg.Extract.OCRDPI, cfg.Extract.OCRLang)
		ocr = rt.ocr
	}
	ex := extract.New(extract.Options{
		PreferOCR:   cfg.Extract.PreferOCR,
		MinChars:    cfg.Extract.MinChars,
		DPI:         float64(cfg.Extract.OCRDPI),
		PageTimeout: cfg.Extract.PageTimeout,
	}, ocr)

	fetcher := &source.Fetcher{HTTP: &http.Client{Timeout: 5 * time.Minute}}
	if cfg.Output.S3Bucket != "" || cfg.AWS.Region != "" || cfg.AWS.Endpoint != "" {
		s3c, err := storage.NewS3Client(ctx, storage.Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Endpoint:        cfg.AWS.Endpoint,
		})
		if err != nil {
			log.Warn().Err(err).Msg("S3 disabled")
		} else {
			rt.s3 = s3c
			fetcher.S3 = s3c
		}
	}

	opts := sorter.Options{
		TablePath:         cfg.Table.Path,
		Opener:            opener,
		Extractor:         ex,
		Fetcher:           fetcher,
		OutputConcurrency: cfg.Output.Concurrency,
		KeepPageText:      cfg.Extract.KeepText,
	}
	if rt.s3 != nil && cfg.Output.S3Bucket != "" {
		opts.Publishers = func(jobID string) partition.Publisher {
			return storage.NewPublisher(rt.s3, cfg.Output.S3Bucket, path.Join(cfg.Output.S3Prefix, jobID))
		}
	}
	rt.sorter = sorter.New(opts)
	return rt, nil
}

// ocrVersion is nil when OCR is off, which readiness reports as disabled.
func (rt *app) ocrVersion() func() string {
	if rt.ocr == nil {
		return nil
	}
	return rt.ocr.Version
}

func importOptions(cfg cfgpkg.Config) reftable.ImportOptions {
	return reftable.ImportOptions{
		Sheet:       cfg.Table.Sheet,
		KeyColumn:   cfg.Table.KeyColumn,
		RouteColumn: cfg.Table.RouteColumn,
		HeaderRows:  cfg.Table.HeaderRows,
		Converter:   converter.NewLibreOffice(cfg.Converter.Binary, cfg.Converter.Timeout),
	}
}
