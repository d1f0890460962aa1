// Copyright 2025 The ChapaUY Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import (
	"fmt"
	"math"
)

// KeyPrecision is the number of decimal places kept in a Key.
const KeyPrecision = 6

const keyScale = 1e6

// Key is a coordinate rounded to KeyPrecision decimals, stored as integer
// micro-degrees so it can be compared and indexed exactly.
type Key struct {
	Lat int64 `json:"lat_key"`
	Lng int64 `json:"lng_key"`
}

// KeyOf rounds a point to its Key.
func KeyOf(p Point) Key {
	return Key{
		Lat: int64(math.Round(p.Lat * keyScale)),
		Lng: int64(math.Round(p.Lng * keyScale)),
	}
}

// Point returns the rounded coordinate the key stands for.
func (k Key) Point() Point {
	return Point{Lat: float64(k.Lat) / keyScale, Lng: float64(k.Lng) / keyScale}
}

func (k Key) String() string {
	p := k.Point()

	return fmt.Sprintf("%.*f,%.*f", KeyPrecision, p.Lat, KeyPrecision, p.Lng)
}
