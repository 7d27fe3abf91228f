// Public domain.

package mcseries

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/soniakeys/magcompare/internal/quake"
)

// Header is the column heading line of a series file.
var Header = []string{"eventID", "origin_time", "magnitude_type", "magnitude",
	"latitude", "longitude", "depth", "description"}

// TimeFormat is the origin time layout written to series files.
const TimeFormat = "2006-01-02T15:04:05.000000Z07:00"

// NaN is the token written for values a catalog did not report.
const NaN = "nan"

// Store keeps series files in a single directory.  File names are derived
// from series keys; keys are never recovered by parsing file names.
type Store struct {
	Dir string
}

// Path returns the file path for a series.
func (s *Store) Path(k quake.SeriesKey) string {
	return filepath.Join(s.Dir, k.Catalog+"_"+k.MagType+"_timeseries.csv")
}

// Reset creates or truncates the files for keys, leaving only the header.
func (s *Store) Reset(keys ...quake.SeriesKey) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	for _, k := range keys {
		f, err := os.Create(s.Path(k))
		if err != nil {
			return err
		}
		w := csv.NewWriter(f)
		w.Write(Header)
		w.Flush()
		if err = w.Error(); err != nil {
			f.Close()
			return fmt.Errorf("series %s: %w", k, err)
		}
		if err = f.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Append adds records to the series file for k and syncs the file, so
// that records already appended survive an interrupted run.
func (s *Store) Append(k quake.SeriesKey, recs []quake.Record) error {
	if len(recs) == 0 {
		return nil
	}
	f, err := os.OpenFile(s.Path(k), os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("series %s: %w", k, err)
	}
	w := csv.NewWriter(f)
	for i := range recs {
		w.Write(formatRecord(&recs[i]))
	}
	w.Flush()
	if err = w.Error(); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("series %s: %w", k, err)
	}
	return nil
}

// AppendEvents extracts the records of the catalog's magnitude types from
// one page of events and appends them.  It returns the number of records
// appended per magnitude type.
func (s *Store) AppendEvents(catalog string, magTypes []string, events []quake.Event) (map[string]int, error) {
	counts := make(map[string]int, len(magTypes))
	for mt, recs := range Extract(events, magTypes) {
		counts[mt] = len(recs)
		if err := s.Append(quake.SeriesKey{Catalog: catalog, MagType: mt}, recs); err != nil {
			return counts, err
		}
	}
	return counts, nil
}

// Load reads the series file for k, keeping records with origin times in
// [start, end].  A zero start or end leaves that side of the window open.
//
// A missing file is reported with an error satisfying
// errors.Is(err, fs.ErrNotExist).
func (s *Store) Load(k quake.SeriesKey, start, end time.Time) ([]quake.Record, error) {
	fn := s.Path(k)
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := Read(f, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return recs, nil
}

// Read parses series rows from r after the header line.  Rows written
// without the description column are accepted.
func Read(r io.Reader, start, end time.Time) ([]quake.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	var recs []quake.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		rec, err := parseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t := rec.Origin.Time
		if !start.IsZero() && t.Before(start) || !end.IsZero() && t.After(end) {
			continue
		}
		recs = append(recs, rec)
	}
}

func formatRecord(r *quake.Record) []string {
	depth := NaN
	if r.Origin.HasDepth() {
		depth = FormatFloat(r.Origin.Depth)
	}
	return []string{
		r.EventID,
		r.Origin.Time.UTC().Format(TimeFormat),
		r.MagType,
		FormatFloat(r.Magnitude),
		FormatFloat(r.Origin.Latitude),
		FormatFloat(r.Origin.Longitude),
		depth,
		r.Description,
	}
}

func parseRecord(row []string) (rec quake.Record, err error) {
	if len(row) < 7 {
		return rec, fmt.Errorf("%d fields, want at least 7", len(row))
	}
	rec.EventID = row[0]
	if rec.Origin.Time, err = time.Parse(time.RFC3339Nano, row[1]); err != nil {
		return rec, fmt.Errorf("origin time: %w", err)
	}
	rec.MagType = row[2]
	if rec.Magnitude, err = strconv.ParseFloat(row[3], 64); err != nil {
		return rec, fmt.Errorf("magnitude: %w", err)
	}
	if rec.Origin.Latitude, err = strconv.ParseFloat(row[4], 64); err != nil {
		return rec, fmt.Errorf("latitude: %w", err)
	}
	if rec.Origin.Longitude, err = strconv.ParseFloat(row[5], 64); err != nil {
		return rec, fmt.Errorf("longitude: %w", err)
	}
	if rec.Origin.Depth, err = ParseOptional(row[6]); err != nil {
		return rec, fmt.Errorf("depth: %w", err)
	}
	if len(row) > 7 {
		rec.Description = row[7]
	}
	return rec, nil
}

// FormatFloat formats v with the fewest digits that read back exactly.
// NaN is written as the "nan" token.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return NaN
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseOptional parses a value that may be absent.  Empty fields, "nan"
// and "None" give NaN.
func ParseOptional(s string) (float64, error) {
	switch s = strings.TrimSpace(s); strings.ToLower(s) {
	case "", NaN, "none":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
