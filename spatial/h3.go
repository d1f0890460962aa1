// Copyright 2025 The ChapaUY Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import (
	"fmt"
	"math"

	"github.com/uber/h3-go/v4"
)

// IndexResolution is the H3 resolution used to index points for vicinity
// queries. Cells at this resolution have an average edge of ~174m.
const IndexResolution = 9

const indexEdgeMeters = 174.375668

// Cell returns the H3 cell containing p at IndexResolution.
func Cell(p Point) (int64, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), IndexResolution)
	if err != nil {
		return 0, fmt.Errorf("error converting to h3 cell: %w", err)
	}

	return int64(cell), nil
}

// CoveringCells returns the cells that may contain a point within radius
// meters of p. Callers still have to filter candidates by distance.
func CoveringCells(p Point, radius float64) ([]int64, error) {
	origin, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), IndexResolution)
	if err != nil {
		return nil, fmt.Errorf("error converting to h3 cell: %w", err)
	}

	k := int(math.Ceil(radius/indexEdgeMeters)) + 1

	disk, err := h3.GridDisk(origin, k)
	if err != nil {
		return nil, fmt.Errorf("error computing h3 disk: %w", err)
	}

	cells := make([]int64, len(disk))
	for i, c := range disk {
		cells[i] = int64(c)
	}

	return cells, nil
}
