package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	cfgpkg "github.com/local/routesort/internal/config"
	"github.com/local/routesort/internal/converter"
	"github.com/local/routesort/internal/metrics"
	"github.com/local/routesort/internal/queue"
	"github.com/local/routesort/internal/server"
	"github.com/local/routesort/internal/statuscheck"
	"github.com/local/routesort/internal/store"
	"github.com/local/routesort/internal/worker"
)

func serveCmd(cfg *cfgpkg.Config) *cobra.Command {
	var runWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, *cfg)
			if err != nil {
				return err
			}

			rc, err := queue.Connect(ctx, cfg.Queue.RedisURL)
			if err != nil {
				return err
			}
			defer rc.Close()
			rq, err := queue.NewRedisQueue(ctx, rc, cfg.Queue.Stream, cfg.Queue.Group)
			if err != nil {
				return err
			}
			status := store.NewRedisStatus(rc, cfg.Queue.StatusTTL)
			pages := store.NewPageStore(rc, cfg.Queue.StatusTTL)

			if runWorker {
				w := worker.New(worker.Config{
					Concurrency: cfg.Worker.Concurrency,
					JobTimeout:  cfg.Worker.JobTimeout,
					PollTimeout: cfg.Queue.PollInterval,
				}, rq, status, pages, a.sorter)
				w.Start(ctx)
				defer w.Stop()
			}
			go pollDepth(ctx, rq, 15*time.Second)

			ready := statuscheck.Options{
				Redis:       rq,
				TablePath:   cfg.Table.Path,
				LibreOffice: converter.NewLibreOffice(cfg.Converter.Binary, cfg.Converter.Timeout),
				OCRVersion:  a.ocrVersion(),
			}
			if a.s3 != nil {
				ready.S3, ready.S3Bucket = a.s3, cfg.Output.S3Bucket
			}

			api := server.New(server.Dependencies{
				Queue:          rq,
				Status:         status,
				Pages:          pages,
				Ready:          statuscheck.New(ready),
				TablePath:      cfg.Table.Path,
				Import:         importOptions(*cfg),
				UploadDir:      cfg.Server.UploadDir,
				OutputDir:      cfg.Output.Dir,
				MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,

				AllowExternalRefs: cfg.Server.AllowExternalRefs,
			})
			srv := &http.Server{
				Addr:              ":" + cfg.Server.Port,
				Handler:           api.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return listen(ctx, srv)
		},
	}
	cmd.Flags().StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "HTTP port")
	cmd.Flags().BoolVar(&runWorker, "worker", true, "consume jobs in this process")
	return cmd
}

func pollDepth(ctx context.Context, q *queue.RedisQueue, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			length, pending, err := q.Depth(ctx)
			if err != nil {
				log.Debug().Err(err).Msg("queue depth unavailable")
				continue
			}
			metrics.SetQueueDepth(length)
			log.Debug().Int64("length", length).Int64("pending", pending).Msg("queue depth")
		}
	}
}
