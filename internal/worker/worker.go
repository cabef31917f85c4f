// Package worker consumes sorting jobs from the queue and records their
// status. Jobs are processed one at a time per worker goroutine.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/routesort/internal/classify"
	"github.com/local/routesort/internal/logger"
	"github.com/local/routesort/internal/partition"
	"github.com/local/routesort/internal/queue"
	"github.com/local/routesort/internal/sorter"
	"github.com/local/routesort/internal/store"
)

type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (*queue.Delivery, error)
	Ack(ctx context.Context, msgID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	AddDLQ(ctx context.Context, payload, reason string) error
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	SetProgress(ctx context.Context, jobID string, done, total int) error
}

type PageStore interface {
	SavePages(ctx context.Context, jobID string, pages []classify.PageRecord) error
}

type Runner interface {
	Run(ctx context.Context, req sorter.Request) (*sorter.Report, error)
}

type Config struct {
	Concurrency int
	JobTimeout  time.Duration
	PollTimeout time.Duration
	Consumer    string
}

type Worker struct {
	cfg    Config
	q      Queue
	status StatusStore
	pages  PageStore
	runner Runner

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a worker. pages may be nil.
func New(cfg Config, q Queue, status StatusStore, pages PageStore, runner Runner) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	if cfg.Consumer == "" {
		host, _ := os.Hostname()
		cfg.Consumer = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	return &Worker{cfg: cfg, q: q, status: status, pages: pages, runner: runner}
}

func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
}

// Stop cancels in-flight jobs and waits for the loops to exit.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("%s-%d", w.cfg.Consumer, id)
	log.Info().Int("worker", id).Str("consumer", consumer).Msg("worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Int("worker", id).Msg("worker stopped")
			return
		default:
		}

		d, err := w.q.Dequeue(ctx, consumer, w.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if d == nil {
			continue
		}
		w.Process(ctx, d)
	}
}

// Process runs one delivered job to a terminal state and acks it.
func (w *Worker) Process(ctx context.Context, d *queue.Delivery) {
	job := d.Job
	ctx = logger.WithJob(ctx, job.ID)
	l := log.Ctx(ctx)
	defer func() {
		if err := w.q.Ack(context.WithoutCancel(ctx), d.MsgID); err != nil {
			l.Error().Err(err).Msg("failed to ack job")
		}
	}()

	if cancelled, _ := w.q.IsCancelled(ctx, job.ID); cancelled {
		l.Warn().Msg("job cancelled before processing; skipping")
		w.finish(ctx, job, store.StateCancelled, "cancelled before processing", nil, nil)
		return
	}

	start := time.Now().UTC()
	w.setStatus(ctx, job.ID, store.Status{
		State:    store.StateProcessing,
		Message:  "processing",
		Document: job.Document,
		Start:    &start,
	})

	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelJob()
	if w.cfg.JobTimeout > 0 {
		var cancelTimeout context.CancelFunc
		jobCtx, cancelTimeout = context.WithTimeout(jobCtx, w.cfg.JobTimeout)
		defer cancelTimeout()
	}

	var userCancelled atomic.Bool
	progress := func(done, total int) {
		if err := w.status.SetProgress(ctx, job.ID, done, total); err != nil {
			l.Warn().Err(err).Msg("failed to record progress")
		}
		if c, _ := w.q.IsCancelled(ctx, job.ID); c {
			userCancelled.Store(true)
			cancelJob()
		}
	}

	rep, err := w.runner.Run(jobCtx, sorter.Request{
		JobID:     job.ID,
		Document:  job.Document,
		OutputDir: job.OutputDir,
		Progress:  progress,
	})

	state, msg := classifyResult(rep, err, userCancelled.Load())
	if state == store.StateFailed {
		l.Error().Err(err).Msg("job failed")
		if payload, encErr := queue.EncodeJob(job); encErr == nil {
			_ = w.q.AddDLQ(context.WithoutCancel(ctx), string(payload), err.Error())
		}
	}
	w.finish(ctx, job, state, msg, &start, rep)
}

func classifyResult(rep *sorter.Report, err error, userCancelled bool) (store.State, string) {
	switch {
	case err == nil:
		return store.StateCompleted, rep.Summary()
	case partition.IsOutputWriteError(err) && rep != nil:
		return store.StatePartial, rep.Summary() + "; " + err.Error()
	case userCancelled && errors.Is(err, context.Canceled):
		return store.StateCancelled, "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return store.StateFailed, "timed out"
	case sorter.IsFatalConfig(err):
		return store.StateFailed, "configuration error: " + err.Error()
	default:
		return store.StateFailed, err.Error()
	}
}

func (w *Worker) finish(ctx context.Context, job queue.Job, state store.State, msg string, start *time.Time, rep *sorter.Report) {
	ctx = context.WithoutCancel(ctx)
	end := time.Now().UTC()
	st := store.Status{
		State:    state,
		Message:  msg,
		Document: job.Document,
		Start:    start,
		End:      &end,
	}
	if rep != nil {
		st.PagesDone, st.PagesTotal, st.Progress = rep.TotalPages, rep.TotalPages, 100
		if w.pages != nil {
			if err := w.pages.SavePages(ctx, job.ID, rep.Pages); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("failed to store page records")
			}
		}
		summary := *rep
		summary.Pages = nil
		if b, err := json.Marshal(summary); err == nil {
			st.Report = b
		}
	}
	w.setStatus(ctx, job.ID, st)
	log.Ctx(ctx).Info().Str("status", string(state)).Str("message", msg).Msg("job finished")
	removeUpload(ctx, job)
}

func removeUpload(ctx context.Context, job queue.Job) {
	if !job.Uploaded {
		return
	}
	if err := os.Remove(job.Document); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Ctx(ctx).Warn().Err(err).Str("document", job.Document).Msg("failed to remove uploaded document")
	}
}

func (w *Worker) setStatus(ctx context.Context, jobID string, st store.Status) {
	if err := w.status.Set(ctx, jobID, st); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("status", string(st.State)).Msg("failed to record job status")
	}
}
