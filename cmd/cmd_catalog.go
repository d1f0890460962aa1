// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/jcodagnone/mapimport/catalog"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "The catalog kept in the local database",
}

var serveAddr string

var catalogServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local catalog over HTTP",
	Long: `Serve exposes the catalog kept in the local database with the same API the
importer uses for a remote catalog (catalog.url), so other imports can be
pointed at it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		db, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		addr := cfg.Catalog.ServeAddr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		store := catalog.NewSQLCatalog(db.DB)

		n, err := store.Count(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Serving %d catalog records on http://%s\n", n, addr)

		return catalog.NewServer(store, &logger).Run(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogServeCmd)

	catalogServeCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides catalog.serve_addr)")
}
