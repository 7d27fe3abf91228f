// Public domain.

// Package mcmatch finds the events of a comparison catalog that record the
// same earthquakes as the events of a reference catalog, and collects their
// magnitudes in a registry keyed by reference event.
//
// For each reference record, comparison records within time and distance
// thresholds are ranked by combined separation.  Candidates are then tried
// nearest first: the reference event is relocated from its own arrival
// picks using the candidate's origin as the trial origin, and the first
// candidate with a small enough misfit is accepted.
package mcmatch

import (
	"math"
	"sort"

	"github.com/soniakeys/coord"

	"github.com/soniakeys/magcompare/internal/mcgeo"
	"github.com/soniakeys/magcompare/internal/quake"
)

// Pool is the comparison side of a matching pass: the records of one
// series with their hypocenter vectors computed once.
type Pool struct {
	Key  quake.SeriesKey
	Recs []quake.Record

	pos   []coord.Cart
	depth []bool
	byID  map[string]int // first index of each event id
}

// NewPool prepares records for candidate generation.
func NewPool(key quake.SeriesKey, recs []quake.Record) *Pool {
	p := &Pool{
		Key:   key,
		Recs:  recs,
		pos:   make([]coord.Cart, len(recs)),
		depth: make([]bool, len(recs)),
		byID:  make(map[string]int, len(recs)),
	}
	for i := range recs {
		o := &recs[i].Origin
		if o.HasDepth() {
			p.depth[i] = true
			p.pos[i] = mcgeo.ToCartesian(o.Latitude, o.Longitude, o.Depth)
		}
		if _, ok := p.byID[recs[i].EventID]; !ok {
			p.byID[recs[i].EventID] = i
		}
	}
	return p
}

// Index returns the index of the first record of an event.
func (p *Pool) Index(eventID string) (int, bool) {
	i, ok := p.byID[eventID]
	return i, ok
}

// Candidate is a comparison record that passed the time and distance
// thresholds for one reference record.
type Candidate struct {
	Dt     float64 // origin time separation, s
	Dist   float64 // hypocenter separation, km
	Length float64 // sqrt(Dt² + Dist²)
	Index  int     // into Pool.Recs
}

// Candidates returns the pool records within maxDt seconds and maxDist
// kilometers of ref, nearest first by combined length.  Both thresholds
// must pass independently.  Records without depth, on either side, are not
// candidates; a reference record without depth has none.
func Candidates(ref *quake.Record, p *Pool, maxDt, maxDist float64) []Candidate {
	if !ref.Origin.HasDepth() {
		return nil
	}
	o := &ref.Origin
	h := mcgeo.ToCartesian(o.Latitude, o.Longitude, o.Depth)
	var cs []Candidate
	for i := range p.Recs {
		if !p.depth[i] {
			continue
		}
		dt := math.Abs(o.Time.Sub(p.Recs[i].Origin.Time).Seconds())
		if dt > maxDt {
			continue
		}
		dist := mcgeo.Distance(&h, &p.pos[i]) / 1000
		if dist > maxDist {
			continue
		}
		cs = append(cs, Candidate{
			Dt:     dt,
			Dist:   dist,
			Length: math.Sqrt(dt*dt + dist*dist),
			Index:  i,
		})
	}
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Length != cs[j].Length {
			return cs[i].Length < cs[j].Length
		}
		return cs[i].Index < cs[j].Index
	})
	return cs
}
