// Public domain.

package mcmatch

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/soniakeys/magcompare/internal/mcseries"
	"github.com/soniakeys/magcompare/internal/quake"
)

// Output file names.
const (
	MatchesFile     = "magnitude_matches_all.csv"
	DiagnosticsFile = "magnitude_match_diagnostics.csv"
)

// fixed leading columns of the match file
var matchHeader = []string{"eventID", "matchID", "RMS_error", "latitude", "longitude", "depth"}

// MatchRecord is the row of one reference event.
type MatchRecord struct {
	EventID   string
	MatchedID string  // empty while unmatched
	Misfit    float64 // of the confirming relocation, 0 if none
	Latitude  float64
	Longitude float64
	Depth     float64 // m, NaN if unknown

	// magnitude type to value
	Magnitudes map[string]float64

	// diagnostics of the confirmed match
	Dt          float64 // s
	Dist        float64 // hypocenter separation, km
	SurfaceDist float64 // epicentral, km
	Refined     quake.Origin
	Alternates  []string
}

// Matched reports whether a comparison event has been confirmed.
func (m *MatchRecord) Matched() bool { return m.MatchedID != "" }

func (m *MatchRecord) clone() MatchRecord {
	c := *m
	c.Magnitudes = make(map[string]float64, len(m.Magnitudes))
	for t, v := range m.Magnitudes {
		c.Magnitudes[t] = v
	}
	c.Alternates = append([]string(nil), m.Alternates...)
	return c
}

// Registry holds one MatchRecord per reference event.
//
// Methods are safe for concurrent use, but a matching run has a single
// writer, the coordinator of Matcher.Run.
type Registry struct {
	mu    sync.Mutex
	recs  map[string]*MatchRecord
	types map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		recs:  map[string]*MatchRecord{},
		types: map[string]bool{},
	}
}

// LookupOrCreate returns a copy of the row for rec's event, creating it
// with rec's hypocenter if this is the first time the event is seen.
func (g *Registry) LookupOrCreate(rec *quake.Record) MatchRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.row(rec).clone()
}

func (g *Registry) row(rec *quake.Record) *MatchRecord {
	m, ok := g.recs[rec.EventID]
	if !ok {
		m = &MatchRecord{
			EventID:    rec.EventID,
			Latitude:   rec.Origin.Latitude,
			Longitude:  rec.Origin.Longitude,
			Depth:      rec.Origin.Depth,
			Magnitudes: map[string]float64{},
		}
		g.recs[rec.EventID] = m
	}
	return m
}

// bare returns the row of refID, creating one without a hypocenter if the
// event was never seen.
func (g *Registry) bare(refID string) *MatchRecord {
	return g.row(&quake.Record{
		EventID: refID,
		Origin:  quake.Origin{Latitude: math.NaN(), Longitude: math.NaN(), Depth: quake.UnknownDepth()},
	})
}

// MatchedID returns the confirmed comparison id of a reference event.
func (g *Registry) MatchedID(refID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.recs[refID]
	if !ok || !m.Matched() {
		return "", false
	}
	return m.MatchedID, true
}

// RecordMatch confirms matchedID for refID and merges the comparison
// magnitude.
//
// A confirmed id is only replaced by a different id with a strictly lower
// misfit.  Either way the losing id is kept in Alternates and ambiguous is
// returned true.  The magnitude is merged regardless.
func (g *Registry) RecordMatch(refID, matchedID string, misfit float64, magType string, value float64) (ambiguous bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.bare(refID)
	switch {
	case !m.Matched():
		m.MatchedID = matchedID
		m.Misfit = misfit
	case m.MatchedID == matchedID:
		if misfit < m.Misfit {
			m.Misfit = misfit
		}
	default:
		ambiguous = true
		if misfit < m.Misfit {
			m.Alternates = append(m.Alternates, m.MatchedID)
			m.MatchedID = matchedID
			m.Misfit = misfit
		} else {
			m.Alternates = append(m.Alternates, matchedID)
		}
	}
	g.merge(m, magType, value)
	return ambiguous
}

// SetSeparation stores match diagnostics on a row, if the row holds
// matchedID.  refined is the reference hypocenter found by the confirming
// relocation.
func (g *Registry) SetSeparation(refID, matchedID string, dt, dist, surface float64, refined quake.Origin) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.recs[refID]
	if !ok || m.MatchedID != matchedID {
		return
	}
	m.Dt, m.Dist, m.SurfaceDist = dt, dist, surface
	m.Refined = refined
}

// RecordUnmatched notes a pass that found no match.  The row keeps any id
// confirmed earlier.
func (g *Registry) RecordUnmatched(refID string) {
	g.mu.Lock()
	g.bare(refID)
	g.mu.Unlock()
}

// MergeMagnitude sets a magnitude value without touching the match.
func (g *Registry) MergeMagnitude(refID, magType string, value float64) {
	g.mu.Lock()
	g.merge(g.bare(refID), magType, value)
	g.mu.Unlock()
}

func (g *Registry) merge(m *MatchRecord, magType string, value float64) {
	g.types[magType] = true
	if !math.IsNaN(value) {
		m.Magnitudes[magType] = value
	}
}

// DeclareTypes adds magnitude type columns, whether or not any row has a
// value for them.
func (g *Registry) DeclareTypes(types ...string) {
	g.mu.Lock()
	for _, t := range types {
		g.types[t] = true
	}
	g.mu.Unlock()
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.recs)
}

// Records returns copies of all rows sorted by event id.
func (g *Registry) Records() []MatchRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	rs := make([]MatchRecord, 0, len(g.recs))
	for _, m := range g.recs {
		rs = append(rs, m.clone())
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].EventID < rs[j].EventID })
	return rs
}

// Types returns the sorted magnitude type columns.
func (g *Registry) Types() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ts := make([]string, 0, len(g.types))
	for t := range g.types {
		ts = append(ts, t)
	}
	sort.Strings(ts)
	return ts
}

// Table returns a snapshot of the registry in the form ReadMatches gives.
func (g *Registry) Table() *Table {
	return &Table{Types: g.Types(), Rows: g.Records()}
}

// Write serializes the registry as the consolidated match file.
func (g *Registry) Write(w io.Writer) error {
	return g.Table().Write(w)
}

// DiagnosticsHeader is the column heading line of the diagnostics file.
var DiagnosticsHeader = []string{"eventID", "matchID", "RMS_error", "dt", "dist_km", "surface_km",
	"refined_latitude", "refined_longitude", "refined_depth", "alternates"}

// WriteDiagnostics writes the separations of confirmed matches, the
// relocated reference hypocenter and the alternate ids seen, one row per
// matched reference event.
func (g *Registry) WriteDiagnostics(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Write(DiagnosticsHeader)
	for _, m := range g.Records() {
		if !m.Matched() {
			continue
		}
		cw.Write([]string{m.EventID, m.MatchedID,
			mcseries.FormatFloat(m.Misfit),
			mcseries.FormatFloat(m.Dt),
			mcseries.FormatFloat(m.Dist),
			mcseries.FormatFloat(m.SurfaceDist),
			mcseries.FormatFloat(m.Refined.Latitude),
			mcseries.FormatFloat(m.Refined.Longitude),
			mcseries.FormatFloat(m.Refined.Depth),
			strings.Join(m.Alternates, ";")})
	}
	cw.Flush()
	return cw.Error()
}

// Table is the consolidated match file in memory.
type Table struct {
	Types []string // sorted
	Rows  []MatchRecord
}

// Write writes the header and rows.  Absent magnitudes and an absent
// match id are written as nan.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, matchHeader...), t.Types...)); err != nil {
		return err
	}
	row := make([]string, len(matchHeader)+len(t.Types))
	for i := range t.Rows {
		m := &t.Rows[i]
		row[0] = m.EventID
		row[1] = mcseries.NaN
		if m.Matched() {
			row[1] = m.MatchedID
		}
		row[2] = mcseries.FormatFloat(m.Misfit)
		row[3] = mcseries.FormatFloat(m.Latitude)
		row[4] = mcseries.FormatFloat(m.Longitude)
		row[5] = mcseries.FormatFloat(m.Depth)
		for j, typ := range t.Types {
			v, ok := m.Magnitudes[typ]
			if !ok {
				v = math.NaN()
			}
			row[len(matchHeader)+j] = mcseries.FormatFloat(v)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadMatches parses a consolidated match file.
func ReadMatches(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("match header: %w", err)
	}
	if len(head) < len(matchHeader) {
		return nil, fmt.Errorf("match header: %d columns", len(head))
	}
	for i, h := range matchHeader {
		if head[i] != h {
			return nil, fmt.Errorf("match header: column %d is %q, want %q", i+1, head[i], h)
		}
	}
	t := &Table{Types: append([]string{}, head[len(matchHeader):]...)}
	cr.FieldsPerRecord = len(head)
	for line := 2; ; line++ {
		f, err := cr.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		m, err := parseMatch(f, t.Types)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t.Rows = append(t.Rows, m)
	}
}

func parseMatch(f []string, types []string) (m MatchRecord, err error) {
	m.EventID = f[0]
	if f[1] != mcseries.NaN {
		m.MatchedID = f[1]
	}
	if m.Misfit, err = strconv.ParseFloat(f[2], 64); err != nil {
		return
	}
	if m.Latitude, err = mcseries.ParseOptional(f[3]); err != nil {
		return
	}
	if m.Longitude, err = mcseries.ParseOptional(f[4]); err != nil {
		return
	}
	if m.Depth, err = mcseries.ParseOptional(f[5]); err != nil {
		return
	}
	m.Magnitudes = map[string]float64{}
	for j, typ := range types {
		v, err := mcseries.ParseOptional(f[len(matchHeader)+j])
		if err != nil {
			return m, fmt.Errorf("%s: %w", typ, err)
		}
		if !math.IsNaN(v) {
			m.Magnitudes[typ] = v
		}
	}
	return m, nil
}
