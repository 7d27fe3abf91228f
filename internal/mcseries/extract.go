// Public domain.

// Package mcseries extracts magnitude timeseries from catalog events and
// stores them as one CSV file per (catalog, magnitude type) series.
package mcseries

import (
	"github.com/soniakeys/magcompare/internal/quake"
)

// Extract returns the records of events carrying each of the requested
// magnitude types, partitioned by type.  Every requested type is present
// in the result, possibly with no records.  An event carrying the same type
// more than once contributes one record per estimate.
func Extract(events []quake.Event, magTypes []string) map[string][]quake.Record {
	out := make(map[string][]quake.Record, len(magTypes))
	for _, mt := range magTypes {
		var recs []quake.Record
		for i := range events {
			e := &events[i]
			for _, m := range e.Magnitudes {
				if m.Type != mt {
					continue
				}
				recs = append(recs, quake.Record{
					EventID:     e.ID,
					Origin:      e.Origin,
					MagType:     mt,
					Magnitude:   m.Value,
					Description: e.Description,
				})
			}
		}
		out[mt] = recs
	}
	return out
}
