package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	cfgpkg "github.com/local/routesort/internal/config"
	logpkg "github.com/local/routesort/internal/logger"
	"github.com/local/routesort/internal/metrics"
	"github.com/local/routesort/internal/partition"
	"github.com/local/routesort/internal/sorter"
)

var version = "0.1.0"

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitConfig  = 2
	exitPartial = 3
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	root := &cobra.Command{
		Use:   "routesort",
		Short: "Split a delivery PDF into one file per driver route",
		Long: `routesort reads a combined delivery document, recognizes the customer
identifier on every page, looks it up in the reference table and writes one
PDF per route plus Unassigned.pdf for pages it could not place.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logpkg.Init(logOptions(cfg)); err != nil {
				return err
			}
			metrics.Init()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfg.Table.Path, "table", cfg.Table.Path, "reference table JSON file")
	root.PersistentFlags().StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "log level")

	root.AddCommand(importCmd(&cfg))
	root.AddCommand(tableCmd(&cfg))
	root.AddCommand(sortCmd(&cfg))
	root.AddCommand(watchCmd(&cfg))
	root.AddCommand(serveCmd(&cfg))
	root.AddCommand(checkCmd(&cfg))

	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	logpkg.Close()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case sorter.IsFatalConfig(err):
		return exitConfig
	case partition.IsOutputWriteError(err):
		return exitPartial
	default:
		return exitFailed
	}
}

func logOptions(cfg cfgpkg.Config) logpkg.Options {
	return logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	}
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func listen(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}
