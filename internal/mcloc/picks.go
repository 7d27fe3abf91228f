// Public domain.

package mcloc

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/soniakeys/magcompare/internal/quake"
)

// PickHeader is the column heading line of a pick file.
var PickHeader = []string{"eventID", "station", "latitude", "longitude",
	"elevation", "phase", "time"}

// PickStore is a PickSource holding picks read from a CSV file.  Event
// identifiers are compared by their final path segment, so picks keyed
// "2016p858000" serve the event "smi:nz.org.geonet/2016p858000".
//
// A PickStore is not modified after loading and is safe for concurrent use.
type PickStore struct {
	picks map[string][]Pick
}

// NewPickStore returns an empty store.
func NewPickStore() *PickStore {
	return &PickStore{picks: make(map[string][]Pick)}
}

// LoadPickFile reads a pick file.
func LoadPickFile(fn string) (*PickStore, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := ReadPicks(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return s, nil
}

// ReadPicks reads picks in the pick file format.
func ReadPicks(r io.Reader) (*PickStore, error) {
	s := NewPickStore()
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(PickHeader)
	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return s, nil
		}
		return nil, err
	}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return s, nil
		}
		if err != nil {
			return nil, err
		}
		p, err := parsePick(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		s.Add(row[0], p)
	}
}

// Add stores a pick for an event.
func (s *PickStore) Add(eventID string, p Pick) {
	id := quake.ShortID(eventID)
	s.picks[id] = append(s.picks[id], p)
}

// Len returns the number of events with picks.
func (s *PickStore) Len() int { return len(s.picks) }

// Picks implements PickSource.
func (s *PickStore) Picks(ctx context.Context, eventID string) ([]Pick, error) {
	p := s.picks[quake.ShortID(eventID)]
	return append([]Pick(nil), p...), nil
}

func parsePick(row []string) (p Pick, err error) {
	p.Station = row[1]
	if p.Latitude, err = strconv.ParseFloat(row[2], 64); err != nil {
		return p, fmt.Errorf("latitude: %w", err)
	}
	if p.Longitude, err = strconv.ParseFloat(row[3], 64); err != nil {
		return p, fmt.Errorf("longitude: %w", err)
	}
	if row[4] != "" {
		if p.Elevation, err = strconv.ParseFloat(row[4], 64); err != nil {
			return p, fmt.Errorf("elevation: %w", err)
		}
	}
	p.Phase = row[5]
	if p.Time, err = time.Parse(time.RFC3339Nano, row[6]); err != nil {
		return p, fmt.Errorf("time: %w", err)
	}
	return p, nil
}
