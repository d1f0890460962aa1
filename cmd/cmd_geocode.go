// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/jcodagnone/mapimport/geocache"
	"github.com/jcodagnone/mapimport/importer"
	"github.com/jcodagnone/mapimport/spatial"
	"github.com/jcodagnone/mapimport/utils/textutils"
	"github.com/spf13/cobra"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Reverse geocoding through the local cache",
}

func parseCoordinates(args []string) (lat, lon float64, err error) {
	if lat, err = strconv.ParseFloat(args[0], 64); err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q", args[0])
	}

	if lon, err = strconv.ParseFloat(args[1], 64); err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q", args[1])
	}

	return lat, lon, nil
}

var geocodeLookupCmd = &cobra.Command{
	Use:   "lookup <lat> <lon>",
	Short: "Print the cached place for a coordinate, fetching it if needed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, lon, err := parseCoordinates(args)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		db, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		cache, err := newCache(ctx, db)
		if err != nil {
			return err
		}

		entry, err := cache.Lookup(ctx, lat, lon)
		if err != nil {
			return err
		}

		entry.RawResponse = nil

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(entry)
	},
}

var warmProgress bool

var geocodeWarmCmd = &cobra.Command{
	Use:   "warm <file>",
	Short: "Fill the cache with every coordinate of an import file",
	Long: `Warm geocodes the coordinates of <file> ahead of an import, honouring the
provider rate limit. Coordinates already cached are skipped, so an interrupted
run can simply be started again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, err := importer.ReadCandidates(args[0], "")
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		db, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		cache, err := newCache(ctx, db)
		if err != nil {
			return err
		}

		points := make([]spatial.Point, len(batch.Candidates))
		for i, c := range batch.Candidates {
			points[i] = c.Point()
		}

		m, err := cache.Warm(ctx, points, geocache.WarmOptions{Progress: warmProgress})

		n := func(v int) string { return textutils.FormatInt(int64(v)) }
		fmt.Printf("Warmed %s: %s points, %s unique keys, %s already cached, %s fetched, %s failed\n",
			batch.Name, n(m.Total), n(m.Unique), n(m.Cached), n(m.Fetched), n(m.Failed))

		return err
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
	geocodeCmd.AddCommand(geocodeLookupCmd)
	geocodeCmd.AddCommand(geocodeWarmCmd)

	geocodeWarmCmd.Flags().BoolVar(&warmProgress, "progress", true,
		"Show a progress bar when stderr is a terminal")
}
