// Package source resolves a document reference to a local file. References
// may be filesystem paths, file:// URLs, http(s):// URLs or s3://bucket/key.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/routesort/internal/storage"
)

// Downloader fetches an S3 object into w.
type Downloader interface {
	Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
}

// Local is a fetched document. Close removes it when it was downloaded.
type Local struct {
	Path string
	Name string
	temp bool
}

// Close removes a downloaded temp file; local paths are left alone.
func (l *Local) Close() error {
	if !l.temp {
		return nil
	}
	return os.Remove(l.Path)
}

// Fetcher resolves references. HTTP is nil-safe (http.DefaultClient); S3 may
// be nil, in which case s3:// references fail.
type Fetcher struct {
	HTTP   *http.Client
	S3     Downloader
	TmpDir string
}

// Fetch returns a local copy of ref. A trailing #fragment is ignored.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*Local, error) {
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		return f.fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return f.fetchHTTP(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		return f.local(strings.TrimPrefix(ref, "file://"))
	default:
		return f.local(ref)
	}
}

func (f *Fetcher) local(path string) (*Local, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("document not accessible: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("document path is a directory: %s", path)
	}
	return &Local{Path: path, Name: filepath.Base(path)}, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string) (*Local, error) {
	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: http %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(f.TmpDir, "httpdl-*.pdf")
	if err != nil {
		return nil, err
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("download failed: %w", err)
	}

	name := filepath.Base(req.URL.Path)
	if name == "." || name == "/" {
		name = "document.pdf"
	}
	log.Ctx(ctx).Info().Str("url", url).Str("file", filepath.Base(tmp.Name())).Msg("downloaded pdf to temp")
	return &Local{Path: tmp.Name(), Name: name, temp: true}, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, ref string) (*Local, error) {
	if f.S3 == nil {
		return nil, fmt.Errorf("s3 reference %s but no S3 client configured", ref)
	}
	bucket, key, err := storage.ParseURL(ref)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(f.TmpDir, "s3pdf-*.pdf")
	if err != nil {
		return nil, err
	}
	defer tmp.Close()
	if _, err := f.S3.Download(ctx, bucket, key, tmp); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	return &Local{Path: tmp.Name(), Name: filepath.Base(key), temp: true}, nil
}
