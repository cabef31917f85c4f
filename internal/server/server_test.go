package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/local/routesort/internal/classify"
	"github.com/local/routesort/internal/queue"
	"github.com/local/routesort/internal/reftable"
	"github.com/local/routesort/internal/statuscheck"
	"github.com/local/routesort/internal/store"
	"github.com/local/routesort/internal/testpdf"
)

type fakeQueue struct {
	mu        sync.Mutex
	jobs      []queue.Job
	cancelled []string
	err       error
}

func (q *fakeQueue) Enqueue(_ context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Cancel(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, id)
	return nil
}

type fakeStatus struct {
	mu sync.Mutex
	m  map[string]store.Status
}

func newFakeStatus() *fakeStatus { return &fakeStatus{m: map[string]store.Status{}} }

func (s *fakeStatus) Set(_ context.Context, id string, st store.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = st
	return nil
}

func (s *fakeStatus) Get(_ context.Context, id string) (store.Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[id]
	return st, ok, nil
}

type fakePages map[string]classify.PageRecord

func (p fakePages) GetPage(_ context.Context, id string, page int) (classify.PageRecord, bool, error) {
	rec, ok := p[fmt.Sprintf("%s/%d", id, page)]
	return rec, ok, nil
}

type fixedReady statuscheck.Summary

func (f fixedReady) Summary(context.Context) statuscheck.Summary { return statuscheck.Summary(f) }

type fixture struct {
	srv    *httptest.Server
	queue  *fakeQueue
	status *fakeStatus
	deps   Dependencies
}

func newFixture(t *testing.T, opts ...func(*Dependencies)) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{queue: &fakeQueue{}, status: newFakeStatus()}
	f.deps = Dependencies{
		Queue:     f.queue,
		Status:    f.status,
		Pages:     fakePages{"job1/2": {Index: 2, Identifier: "XYZ1", Route: "North", Outcome: classify.OutcomeMatched}},
		TablePath: filepath.Join(dir, "driver_data.json"),
		Import:    reftable.ImportOptions{KeyColumn: "C", RouteColumn: "J", HeaderRows: 1},
		UploadDir: filepath.Join(dir, "uploads"),
		OutputDir: filepath.Join(dir, "output"),
	}
	for _, opt := range opts {
		opt(&f.deps)
	}
	f.srv = httptest.NewServer(New(f.deps).Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func multipartBody(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReady(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	deps := f.deps
	deps.Ready = fixedReady{Table: statuscheck.Status{Required: true, Message: "not found"}}
	srv := httptest.NewServer(New(deps).Handler())
	defer srv.Close()
	resp, err = http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	var sum statuscheck.Summary
	decode(t, resp, &sum)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "not found", sum.Table.Message)
}

func TestSubmitUpload(t *testing.T) {
	f := newFixture(t)
	body, ctype := multipartBody(t, "manifest.pdf", testpdf.Bytes("Customer XYZ1"))

	resp, err := http.Post(f.srv.URL+"/jobs", ctype, body)
	require.NoError(t, err)
	var out submitResp
	decode(t, resp, &out)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NotEmpty(t, out.JobID)
	require.Len(t, f.queue.jobs, 1)
	job := f.queue.jobs[0]
	assert.Equal(t, out.JobID, job.ID)
	assert.Equal(t, filepath.Join(f.deps.UploadDir, out.JobID+".pdf"), job.Document)
	assert.Equal(t, filepath.Join(f.deps.OutputDir, out.JobID), job.OutputDir)
	assert.FileExists(t, job.Document)
	assert.True(t, job.Uploaded)

	st, ok, _ := f.status.Get(context.Background(), out.JobID)
	require.True(t, ok)
	assert.Equal(t, store.StateQueued, st.State)
}

func TestSubmitRejectsNonPDF(t *testing.T) {
	f := newFixture(t)
	body, ctype := multipartBody(t, "notes.pdf", []byte("just some plain text, not a document"))

	resp, err := http.Post(f.srv.URL+"/jobs", ctype, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Empty(t, f.queue.jobs)
}

func postJSON(t *testing.T, url, body string) int {
	t.Helper()
	resp, err := http.Post(url+"/jobs", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestSubmitByReference(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusAccepted, postJSON(t, f.srv.URL, `{"file_url":"s3://in/run.pdf"}`))
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, "s3://in/run.pdf", f.queue.jobs[0].Document)
	assert.False(t, f.queue.jobs[0].Uploaded)

	inUploads := filepath.Join(f.deps.UploadDir, "batch", "run.pdf")
	body, err := json.Marshal(map[string]string{"file_path": inUploads})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, postJSON(t, f.srv.URL, string(body)))
	require.Len(t, f.queue.jobs, 2)
	assert.Equal(t, inUploads, f.queue.jobs[1].Document)

	assert.Equal(t, http.StatusBadRequest, postJSON(t, f.srv.URL, `{}`))
}

func TestSubmitRejectsExternalReferences(t *testing.T) {
	f := newFixture(t)
	escape, err := json.Marshal(map[string]string{"file_path": filepath.Join(f.deps.UploadDir, "..", "driver_data.json")})
	require.NoError(t, err)

	for _, body := range []string{
		`{"file_path":"/etc/passwd"}`,
		`{"file_path":"run.pdf"}`,
		`{"file_url":"file:///etc/passwd"}`,
		`{"file_url":"http://169.254.169.254/latest/meta-data"}`,
		`{"file_url":"https://example.com/run.pdf"}`,
		string(escape),
	} {
		assert.Equal(t, http.StatusForbidden, postJSON(t, f.srv.URL, body), body)
	}
	assert.Empty(t, f.queue.jobs)
	assert.Empty(t, f.status.m)
}

func TestSubmitExternalReferencesWhenAllowed(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.AllowExternalRefs = true })

	assert.Equal(t, http.StatusAccepted, postJSON(t, f.srv.URL, `{"file_path":"/data/run.pdf"}`))
	assert.Equal(t, http.StatusAccepted, postJSON(t, f.srv.URL, `{"file_url":"https://example.com/run.pdf"}`))
	require.Len(t, f.queue.jobs, 2)
	assert.Equal(t, "/data/run.pdf", f.queue.jobs[0].Document)
}

func TestSubmitQueueDown(t *testing.T) {
	f := newFixture(t)
	f.queue.err = errors.New("connection refused")
	body, ctype := multipartBody(t, "manifest.pdf", testpdf.Bytes("Customer XYZ1"))

	resp, err := http.Post(f.srv.URL+"/jobs", ctype, body)
	require.NoError(t, err)
	var out map[string]string
	decode(t, resp, &out)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	require.Len(t, f.status.m, 1)
	for _, st := range f.status.m {
		assert.Equal(t, store.StateFailed, st.State)
	}
	left, err := filepath.Glob(filepath.Join(f.deps.UploadDir, "*.pdf"))
	require.NoError(t, err)
	assert.Empty(t, left, "upload is removed when the job cannot be queued")
}

func TestJobStatusAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.status.Set(ctx, "job1", store.Status{State: store.StateProcessing, Progress: 40}))
	require.NoError(t, f.status.Set(ctx, "done", store.Status{State: store.StateCompleted}))

	resp, err := http.Get(f.srv.URL + "/jobs/job1")
	require.NoError(t, err)
	var st store.Status
	decode(t, resp, &st)
	assert.Equal(t, store.StateProcessing, st.State)
	assert.Equal(t, 40, st.Progress)

	resp, err = http.Get(f.srv.URL + "/jobs/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(f.srv.URL+"/jobs/job1/cancel", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"job1"}, f.queue.cancelled)

	resp, err = http.Post(f.srv.URL+"/jobs/done/cancel", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPageRecord(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/jobs/job1/pages/2")
	require.NoError(t, err)
	var rec classify.PageRecord
	decode(t, resp, &rec)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "North", rec.Route)

	resp, err = http.Get(f.srv.URL + "/jobs/job1/pages/5")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(f.deps.OutputDir, "job1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "North.pdf"), testpdf.Bytes("a"), 0o644))

	resp, err := http.Get(f.srv.URL + "/jobs/job1/files/North.pdf")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

	resp, err = http.Get(f.srv.URL + "/jobs/job1/files/South.pdf")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/jobs/job1/files/notes.txt")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSafeSegment(t *testing.T) {
	assert.True(t, safeSegment("North.pdf"))
	assert.False(t, safeSegment(".."))
	assert.False(t, safeSegment(""))
	assert.False(t, safeSegment(`a\b.pdf`))
	assert.False(t, safeSegment("a/b.pdf"))
}

func TestTableImportAndSearch(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/table")
	require.NoError(t, err)
	var empty tableResp
	decode(t, resp, &empty)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, empty.Total)

	wb := excelize.NewFile()
	rows := [][]any{
		{"A", "B", "Customer", "D", "E", "F", "G", "H", "I", "Route"},
		{"", "", "XYZ1", "", "", "", "", "", "", "North"},
		{"", "", "ARAM045", "", "", "", "", "", "", "South"},
	}
	for i, row := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow("Sheet1", ref, &row))
	}
	var xlsx bytes.Buffer
	require.NoError(t, wb.Write(&xlsx))
	require.NoError(t, wb.Close())

	body, ctype := multipartBody(t, "drivers.xlsx", xlsx.Bytes())
	resp, err = http.Post(f.srv.URL+"/table", ctype, body)
	require.NoError(t, err)
	var imported tableResp
	decode(t, resp, &imported)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, imported.Total)

	saved, err := reftable.Load(f.deps.TablePath)
	require.NoError(t, err)
	route, ok := saved.Get("ARAM045")
	assert.True(t, ok)
	assert.Equal(t, "South", route)

	resp, err = http.Get(f.srv.URL + "/table?q=north")
	require.NoError(t, err)
	var found tableResp
	decode(t, resp, &found)
	assert.Equal(t, 2, found.Total)
	assert.Equal(t, []reftable.Entry{{Key: "XYZ1", Route: "North"}}, found.Entries)
}

func TestTableImportRejectsUnsupported(t *testing.T) {
	f := newFixture(t)
	body, ctype := multipartBody(t, "drivers.csv", []byte("XYZ1,North\n"))
	resp, err := http.Post(f.srv.URL+"/table", ctype, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.NoFileExists(t, f.deps.TablePath)
}
