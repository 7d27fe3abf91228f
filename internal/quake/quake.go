// Public domain.

// Package quake defines the event and record types shared by all stages of
// magcompare.
package quake

import (
	"math"
	"strings"
	"time"
)

// Origin is an estimated earthquake origin.  Depth is in meters, positive
// down, and is NaN when the catalog did not report one.
type Origin struct {
	Time      time.Time
	Latitude  float64 // degrees, south negative
	Longitude float64 // degrees, west negative
	Depth     float64 // meters
}

// HasDepth reports whether the origin carries a usable depth.
func (o Origin) HasDepth() bool {
	return !math.IsNaN(o.Depth) && !math.IsInf(o.Depth, 0)
}

// Magnitude is a single typed magnitude estimate.
type Magnitude struct {
	Type  string
	Value float64
}

// Event is one detection as reported by a catalog.  Events are not modified
// after ingestion.
type Event struct {
	ID          string
	Origin      Origin
	Magnitudes  []Magnitude
	Description string
}

// SeriesKey identifies a timeseries: one magnitude type from one catalog.
type SeriesKey struct {
	Catalog string
	MagType string
}

func (k SeriesKey) String() string {
	return k.Catalog + "/" + k.MagType
}

// Record is a flat timeseries row, an event seen through exactly one of its
// magnitude types.
type Record struct {
	EventID     string
	Origin      Origin
	MagType     string
	Magnitude   float64
	Description string
}

// UnknownDepth is the depth value used when a catalog reports none.
func UnknownDepth() float64 { return math.NaN() }

// ShortID returns the final path segment of a QuakeML resource identifier,
// "smi:nz.org.geonet/2016p858000" gives "2016p858000".  Identifiers without
// a slash are returned unchanged.
func ShortID(id string) string {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[i+1:]
	}
	return id
}
