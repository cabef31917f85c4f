package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "github.com/local/routesort/internal/config"
	"github.com/local/routesort/internal/converter"
	"github.com/local/routesort/internal/reftable"
	"github.com/local/routesort/internal/sorter"
	"github.com/local/routesort/internal/statuscheck"
	"github.com/local/routesort/internal/watch"
)

func importCmd(cfg *cfgpkg.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <spreadsheet>",
		Short: "Build the reference table from a spreadsheet",
		Long: `Reads the key and route columns (C and J by default) of a .xlsx, .xls or
.ods file and replaces the reference table. .xls and .ods need LibreOffice.

Example:
  routesort import drivers.xlsx
  routesort import drivers.ods --key-col B --route-col F --table data/table.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := reftable.ImportSpreadsheet(cmd.Context(), args[0], importOptions(*cfg))
			if err != nil {
				return err
			}
			if err := reftable.Save(cfg.Table.Path, t); err != nil {
				return err
			}
			fmt.Printf("Imported %d entries into %s (%d routes)\n", t.Len(), cfg.Table.Path, len(t.Routes()))
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.Table.Sheet, "sheet", cfg.Table.Sheet, "sheet name (default: first sheet)")
	cmd.Flags().StringVar(&cfg.Table.KeyColumn, "key-col", cfg.Table.KeyColumn, "column holding customer identifiers")
	cmd.Flags().StringVar(&cfg.Table.RouteColumn, "route-col", cfg.Table.RouteColumn, "column holding route labels")
	cmd.Flags().IntVar(&cfg.Table.HeaderRows, "header-rows", cfg.Table.HeaderRows, "rows to skip before data")
	return cmd
}

func tableCmd(cfg *cfgpkg.Config) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "table [search]",
		Short: "List reference table entries, optionally filtered",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := reftable.Load(cfg.Table.Path)
			if err != nil {
				return &sorter.FatalConfigError{Path: cfg.Table.Path, Err: err}
			}
			term := ""
			if len(args) == 1 {
				term = args[0]
			}
			entries := t.Search(term)
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			for _, e := range entries {
				fmt.Printf("%-20s %s\n", e.Key, e.Route)
			}
			fmt.Printf("\n%d of %d entries\n", len(entries), t.Len())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func sortCmd(cfg *cfgpkg.Config) *cobra.Command {
	var (
		outDir string
		jobID  string
	)
	cmd := &cobra.Command{
		Use:   "sort <document>",
		Short: "Split a PDF into one file per route",
		Long: `Classifies every page of the document and writes <out>/<route>.pdf for each
route plus <out>/Unassigned.pdf. The document may be a local path, file://,
http(s):// or s3:// reference.

Exit status is 2 when the reference table cannot be loaded and 3 when some
output files could not be written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, *cfg)
			if err != nil {
				return err
			}
			rep, err := a.sorter.Run(ctx, sorter.Request{JobID: jobID, Document: args[0], OutputDir: outDir})
			if rep != nil {
				fmt.Println(rep.Summary())
				fmt.Print(rep.FormatRoutes())
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", cfg.Output.Dir, "output directory")
	cmd.Flags().StringVar(&jobID, "job-id", "", "job id used in logs and S3 keys (default: random)")
	return cmd
}

func watchCmd(cfg *cfgpkg.Config) *cobra.Command {
	var (
		inbox  string
		outDir string
		settle time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sort every PDF dropped into an inbox directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, *cfg)
			if err != nil {
				return err
			}
			// Fail fast on a broken table rather than once per file.
			if _, err := reftable.Load(cfg.Table.Path); err != nil {
				return &sorter.FatalConfigError{Path: cfg.Table.Path, Err: err}
			}
			w := watch.New(watch.Config{Dir: inbox, OutputDir: outDir, Settle: settle},
				func(ctx context.Context, path, out string) error {
					rep, err := a.sorter.Run(ctx, sorter.Request{Document: path, OutputDir: out})
					if rep != nil {
						fmt.Printf("%s: %s\n", filepath.Base(path), rep.Summary())
					}
					return err
				})
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&inbox, "inbox", "inbox", "directory to watch")
	cmd.Flags().StringVarP(&outDir, "out", "o", cfg.Output.Dir, "output root; each document gets a subdirectory")
	cmd.Flags().DurationVar(&settle, "settle", 2*time.Second, "quiet period before a new file is picked up")
	return cmd
}

func checkCmd(cfg *cfgpkg.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report the readiness of the table, OCR and LibreOffice",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			opts := statuscheck.Options{
				TablePath:   cfg.Table.Path,
				LibreOffice: converter.NewLibreOffice(cfg.Converter.Binary, cfg.Converter.Timeout),
				OCRVersion:  a.ocrVersion(),
			}
			if a.s3 != nil {
				opts.S3, opts.S3Bucket = a.s3, cfg.Output.S3Bucket
			}
			sum := statuscheck.New(opts).Summary(cmd.Context())
			for _, row := range []struct {
				name string
				st   statuscheck.Status
			}{
				{"table", sum.Table}, {"redis", sum.Redis}, {"s3", sum.S3},
				{"libreoffice", sum.LibreOffice}, {"ocr", sum.OCR},
			} {
				mark := "ok"
				if !row.st.OK {
					mark = "--"
				}
				fmt.Printf("%-12s %s  %s\n", row.name, mark, row.st.Message)
			}
			if !sum.Ready() {
				return errors.New("a required dependency is not ready")
			}
			return nil
		},
	}
}
