// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package importer

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/jcodagnone/mapimport/record"
)

// Format of an input file.
type Format string

// Supported formats.
const (
	FormatJSONLines Format = "jsonl"
	FormatGeoJSON   Format = "geojson"
	FormatCSV       Format = "csv"
)

// Batch is an input file turned into candidates, in file order.
type Batch struct {
	Name   string
	Format Format
	// Digest is the hex SHA-256 of the file bytes. It identifies the batch
	// when a run is resumed.
	Digest     string
	Candidates []*record.ImportCandidate
}

// DetectFormat guesses the format from the file extension. A trailing .gz
// is ignored.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(strings.ToLower(path), ".gz")))

	switch ext {
	case ".jsonl", ".ndjson":
		return FormatJSONLines, nil
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown input format %q", ext)
	}
}

// DefaultSource names the provenance of a file's records: its base name
// without format and compression extensions.
func DefaultSource(path string) string {
	name := filepath.Base(path)
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		name = name[:len(name)-len(".gz")]
	}

	return strings.TrimSuffix(name, filepath.Ext(name))
}

// SetSource gives source to the candidates that carry an external id but no
// source. With an empty source those ids are dropped, since an id is only
// comparable within its source.
func (b *Batch) SetSource(source string) {
	source = strings.TrimSpace(source)

	for _, c := range b.Candidates {
		if c.ExternalID == "" || strings.TrimSpace(c.Source) != "" {
			continue
		}

		if source == "" {
			c.ExternalID = ""

			continue
		}

		c.Source = source
	}
}

// ReadCandidates loads every candidate from the file at path. Candidates
// with an id and no source get source, or DefaultSource(path) when it is
// empty.
func ReadCandidates(path, source string) (*Batch, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	sum := sha256.Sum256(data)

	var r io.Reader = bytes.NewReader(data)

	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening gzip input: %w", err)
		}
		defer gz.Close()

		r = gz
	}

	candidates, err := Read(r, format)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	b := &Batch{
		Name:       filepath.Base(path),
		Format:     format,
		Digest:     hex.EncodeToString(sum[:]),
		Candidates: candidates,
	}

	if source == "" {
		source = DefaultSource(path)
	}

	b.SetSource(source)

	return b, nil
}

// Read parses candidates from r. Each candidate gets its position as Index.
func Read(r io.Reader, format Format) ([]*record.ImportCandidate, error) {
	var (
		out []*record.ImportCandidate
		err error
	)

	switch format {
	case FormatJSONLines:
		out, err = readJSONLines(r)
	case FormatGeoJSON:
		out, err = readGeoJSON(r)
	case FormatCSV:
		out, err = readCSV(r)
	default:
		return nil, fmt.Errorf("unknown input format %q", format)
	}

	if err != nil {
		return nil, err
	}

	for i, c := range out {
		c.Index = i
	}

	return out, nil
}

func readJSONLines(r io.Reader) ([]*record.ImportCandidate, error) {
	var out []*record.ImportCandidate

	dec := json.NewDecoder(r)

	for line := 1; ; line++ {
		var c record.ImportCandidate

		err := dec.Decode(&c)
		if errors.Is(err, io.EOF) {
			return out, nil
		}

		if err != nil {
			return nil, fmt.Errorf("record %d: %w", line, err)
		}

		out = append(out, &c)
	}
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	ID         json.RawMessage            `json:"id"`
	Geometry   *geometry                  `json:"geometry"`
	Properties map[string]json.RawMessage `json:"properties"`
}

type geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Properties mapped to candidate fields instead of tags.
var reservedProperties = map[string]bool{
	"id": true, "external_id": true, "source": true, "title": true, "name": true, "photos": true,
}

func readGeoJSON(r io.Reader) ([]*record.ImportCandidate, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, err
	}

	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected a FeatureCollection, got %q", fc.Type)
	}

	out := make([]*record.ImportCandidate, 0, len(fc.Features))

	for _, f := range fc.Features {
		c := &record.ImportCandidate{}

		// Non point geometries leave the coordinate empty; validation rejects
		// them per record.
		if g := f.Geometry; g != nil && g.Type == "Point" && len(g.Coordinates) >= 2 {
			c.Lon, c.Lat = g.Coordinates[0], g.Coordinates[1]
		}

		c.ExternalID = firstNonEmpty(property(f.Properties, "external_id"), property(f.Properties, "id"), rawString(f.ID))
		c.Source = property(f.Properties, "source")
		c.Title = firstNonEmpty(property(f.Properties, "title"), property(f.Properties, "name"))

		if raw, ok := f.Properties["photos"]; ok {
			_ = json.Unmarshal(raw, &c.Photos)
		}

		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			keys = append(keys, k)
		}

		slices.Sort(keys)

		for _, k := range keys {
			if reservedProperties[strings.ToLower(k)] {
				continue
			}

			if v := rawString(f.Properties[k]); v != "" {
				c.Tags.Set(k, v)
			}
		}

		out = append(out, c)
	}

	return out, nil
}

func property(props map[string]json.RawMessage, key string) string {
	return rawString(props[key])
}

// rawString returns a JSON string unquoted and any other scalar as its text.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	return string(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

func readCSV(r io.Reader) ([]*record.ImportCandidate, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")))
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}

	latCol, okLat := col["lat"]
	if !okLat {
		latCol, okLat = col["latitude"]
	}

	lonCol, okLon := col["lon"]
	if !okLon {
		lonCol, okLon = col["lng"]
	}

	if !okLon {
		lonCol, okLon = col["longitude"]
	}

	if !okLat || !okLon {
		return nil, errors.New("header must name lat and lon columns")
	}

	mapped := map[int]bool{latCol: true, lonCol: true}

	for _, n := range []string{"external_id", "id", "source", "title", "name", "photos"} {
		if i, ok := col[n]; ok {
			mapped[i] = true
		}
	}

	field := func(row []string, names ...string) string {
		for _, n := range names {
			if i, ok := col[n]; ok {
				if i < len(row) && strings.TrimSpace(row[i]) != "" {
					return strings.TrimSpace(row[i])
				}
			}
		}

		return ""
	}

	var out []*record.ImportCandidate

	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}

		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		c := &record.ImportCandidate{
			ExternalID: field(row, "external_id", "id"),
			Source:     field(row, "source"),
			Title:      field(row, "title", "name"),
		}

		c.Lat = parseCoordinate(row[latCol])
		c.Lon = parseCoordinate(row[lonCol])

		if p := field(row, "photos"); p != "" {
			for _, u := range strings.Split(p, ";") {
				if u = strings.TrimSpace(u); u != "" {
					c.Photos = append(c.Photos, u)
				}
			}
		}

		for i, h := range header {
			if mapped[i] || i >= len(row) {
				continue
			}

			if v := strings.TrimSpace(row[i]); v != "" {
				c.Tags.Set(h, v)
			}
		}

		out = append(out, c)
	}
}

// parseCoordinate returns NaN for unparseable values, which validation
// rejects per record.
func parseCoordinate(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}

	return v
}
