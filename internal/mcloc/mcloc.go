// Public domain.

// Package mcloc relocates earthquakes from arrival time picks.
//
// The matcher treats a Locator as an opaque forward model: given the picks of
// a reference event and a trial origin taken from a candidate in another
// catalog, it returns a refined origin and the RMS misfit of the picks.  A
// small misfit means the candidate origin explains the reference event's
// arrivals, which is the evidence used to accept a match.
package mcloc

import (
	"context"
	"errors"
	"time"

	"github.com/soniakeys/magcompare/internal/quake"
)

// Pick is an arrival time observed at a station.
type Pick struct {
	Station   string
	Latitude  float64 // degrees
	Longitude float64 // degrees
	Elevation float64 // meters above sea level
	Phase     string  // P, Pg, Pn, S, Sg, ...
	Time      time.Time
}

// PickSource supplies the arrival picks of an event.  An event with no
// picks gives an empty slice and a nil error.  Implementations must be safe
// for concurrent use.
type PickSource interface {
	Picks(ctx context.Context, eventID string) ([]Pick, error)
}

// Locator relocates an event from its picks starting at a trial origin.
// Implementations must be deterministic for a given input and safe for
// concurrent use.
type Locator interface {
	Relocate(ctx context.Context, picks []Pick, trial quake.Origin) (refined quake.Origin, misfit float64, err error)
}

// ErrNoPicks is returned by a Locator given no picks it can use.
var ErrNoPicks = errors.New("no usable arrival picks")
