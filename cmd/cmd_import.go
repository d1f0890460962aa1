// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/jcodagnone/mapimport/importer"
	"github.com/jcodagnone/mapimport/similarity"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import batches into the catalog",
}

var importOptions struct {
	reportPath string
	progress   bool
	noAddress  bool
	source     string
}

var importRunCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run, or resume, the import of a file",
	Long: `Run reads <file> (.jsonl, .geojson or .csv, optionally gzipped) and
reconciles every record against the catalog. Running the same file again
resumes the batch where it stopped; a completed batch is imported again,
which only merges tags into the records it created.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		batch, err := importer.ReadCandidates(args[0], importOptions.source)
		if err != nil {
			return err
		}

		db, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		cache, err := newCache(ctx, db)
		if err != nil {
			return err
		}

		cat, err := newCatalog(db)
		if err != nil {
			return err
		}

		scorer, err := similarity.NewScorer(cfg.Scoring)
		if err != nil {
			return err
		}

		orch := importer.New(cache, cat, scorer, importer.NewStateLog(db.DB), importer.Options{
			Retry: importer.RetryConfig{
				Attempts:  cfg.Catalog.Attempts,
				BaseDelay: cfg.Catalog.BaseDelay(),
				MaxDelay:  cfg.Catalog.MaxDelay(),
			},
			SearchRadius: cfg.Import.SearchRadiusMeters,
			AddressTags:  cfg.Import.AddressTags && !importOptions.noAddress,
			Progress:     importOptions.progress,
			Logger:       &logger,
		})

		report, runErr := orch.Run(ctx, batch)
		if report == nil {
			return runErr
		}

		if err := report.Digest(os.Stdout); err != nil {
			return errors.Join(runErr, err)
		}

		if importOptions.reportPath != "" {
			if err := writeReport(importOptions.reportPath, report); err != nil {
				return errors.Join(runErr, err)
			}

			logger.Info().Str("path", importOptions.reportPath).Msg("report written")
		}

		logger.Info().
			Int("geocode_hits", cache.Metrics.Hits).
			Int("geocode_fetched", cache.Metrics.Fetched).
			Int("geocode_errors", cache.Metrics.Errors).
			Msg("geocode cache")

		return runErr
	},
}

func writeReport(path string, report *importer.Report) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}

	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing report: %w", cerr)
		}
	}()

	return report.WriteJSON(f)
}

var importBatchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "List imported batches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openStorage(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		batches, err := importer.NewStateLog(db.DB).ListBatches(cmd.Context())
		if err != nil {
			return err
		}

		if len(batches) == 0 {
			fmt.Println("No batches imported yet.")

			return nil
		}

		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"Batch", "Input", "Status", "Started", "Created", "Merged", "Review", "Failed"})

		for _, b := range batches {
			tw.AppendRow(table.Row{
				b.BatchID,
				b.InputName,
				b.Status,
				b.StartedAt.Local().Format("2006-01-02 15:04:05"),
				strconv.Itoa(b.Counts[importer.OutcomeCreated]),
				strconv.Itoa(b.Counts[importer.OutcomeMerged]),
				strconv.Itoa(b.Counts[importer.OutcomeSkipped]),
				strconv.Itoa(b.Counts[importer.OutcomeFailed]),
			})
		}

		configs := make([]table.ColumnConfig, 0, 4)
		for n := 5; n <= 8; n++ {
			configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
		}
		tw.SetColumnConfigs(configs)

		fmt.Println(tw.Render())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importRunCmd)
	importCmd.AddCommand(importBatchesCmd)

	importRunCmd.Flags().StringVar(&importOptions.reportPath, "report", "",
		"Write the JSON report to this file")
	importRunCmd.Flags().BoolVar(&importOptions.progress, "progress", true,
		"Show a progress bar when stderr is a terminal")
	importRunCmd.Flags().StringVar(&importOptions.source, "source", "",
		"Source of the record ids that do not name one (default: the input file name)")
	importRunCmd.Flags().BoolVar(&importOptions.noAddress, "no-address-tags", false,
		"Do not add the geocoded addr:* tags to the records")
}
