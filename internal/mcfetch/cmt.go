// Public domain.

package mcfetch

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soniakeys/magcompare/internal/quake"
)

// CMTMagType is the magnitude type of moment tensor solutions.
const CMTMagType = "Mw"

// CMTIDPrefix turns a solution's PublicID into a GeoNet resource id, for
// solutions whose event the catalog service does not know.
const CMTIDPrefix = "smi:nz.org.geonet/"

// CMTSolution is one row of a moment tensor solution list.
type CMTSolution struct {
	ID        string
	Time      time.Time
	Latitude  float64
	Longitude float64
	Depth     float64 // centroid depth, m
	Mw        float64
}

// columns of GeoNet_CMT_solutions.csv that are used
var cmtColumns = []string{"PublicID", "Date", "Latitude", "Longitude", "CD", "Mw"}

// ParseCMT reads a moment tensor solution list.  Columns are found by
// header name; Date is yyyymmddhhmmss in UTC and CD is in km.
func ParseCMT(r io.Reader) ([]CMTSolution, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("cmt header: %w", err)
	}
	col := map[string]int{}
	for i, h := range head {
		col[h] = i
	}
	for _, c := range cmtColumns {
		if _, ok := col[c]; !ok {
			return nil, fmt.Errorf("cmt header: no %s column", c)
		}
	}
	var sols []CMTSolution
	for line := 2; ; line++ {
		f, err := cr.Read()
		if err == io.EOF {
			return sols, nil
		}
		if err != nil {
			return nil, fmt.Errorf("cmt line %d: %w", line, err)
		}
		if len(f) != len(head) {
			return nil, fmt.Errorf("cmt line %d: %d fields, want %d", line, len(f), len(head))
		}
		s, err := parseCMT(f, col)
		if err != nil {
			return nil, fmt.Errorf("cmt line %d: %w", line, err)
		}
		sols = append(sols, s)
	}
}

func parseCMT(f []string, col map[string]int) (s CMTSolution, err error) {
	s.ID = f[col["PublicID"]]
	if s.Time, err = time.Parse("20060102150405", f[col["Date"]]); err != nil {
		return
	}
	num := func(name string) float64 {
		if err != nil {
			return 0
		}
		var v float64
		if v, err = strconv.ParseFloat(f[col[name]], 64); err != nil {
			err = fmt.Errorf("%s: %w", name, err)
		}
		return v
	}
	s.Latitude = num("Latitude")
	s.Longitude = num("Longitude")
	s.Depth = num("CD") * 1000
	s.Mw = num("Mw")
	return
}

// OriginLookup finds one catalog event by id.  An unknown id gives
// ErrNoEvents.
type OriginLookup interface {
	Event(ctx context.Context, id string) (quake.Event, error)
}

// CMTSource is a Fetcher of moment magnitudes from a moment tensor solution
// list, GeoNet's GeoNet_CMT_solutions.csv for example.
//
// Each solution in the query window becomes an event carrying one Mw
// magnitude.  The origin is the catalog's, looked up by id, so that the
// event matches its catalog counterpart; if the catalog does not know the
// id the centroid is used instead.  Solutions are kept to the time window
// [Start, End) and the magnitude range; the bounding box is not applied.
//
// The list is downloaded once and reused for later queries.
type CMTSource struct {
	URL       string
	Origins   OriginLookup
	Client    *http.Client
	UserAgent string
	Log       *zap.Logger

	mu   sync.Mutex
	sols []CMTSolution
}

func (c *CMTSource) solutions(ctx context.Context) ([]CMTSolution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sols != nil {
		return c.sols, nil
	}
	b, err := get(ctx, c.Client, c.UserAgent, c.URL)
	if err != nil {
		return nil, err
	}
	sols, err := ParseCMT(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	c.sols = sols
	return sols, nil
}

func (c *CMTSource) Fetch(ctx context.Context, q Query) ([]quake.Event, error) {
	sols, err := c.solutions(ctx)
	if err != nil {
		return nil, err
	}
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	var evs []quake.Event
	for _, s := range sols {
		if s.Time.Before(q.Start) || !s.Time.Before(q.End) ||
			s.Mw < q.MinMagnitude || s.Mw > q.MaxMagnitude {
			continue
		}
		e, err := c.Origins.Event(ctx, s.ID)
		switch {
		case errors.Is(err, ErrNoEvents):
			log.Warn("moment tensor event not in catalog, using centroid",
				zap.String("event", s.ID))
			e = quake.Event{
				ID: CMTIDPrefix + s.ID,
				Origin: quake.Origin{
					Time:      s.Time,
					Latitude:  s.Latitude,
					Longitude: s.Longitude,
					Depth:     s.Depth,
				},
			}
		case err != nil:
			return nil, fmt.Errorf("origin of %s: %w", s.ID, err)
		}
		e.Magnitudes = []quake.Magnitude{{Type: CMTMagType, Value: s.Mw}}
		evs = append(evs, e)
	}
	if len(evs) == 0 {
		return nil, ErrNoEvents
	}
	return evs, nil
}

// Event looks up one event by id, for CMTSource.  Resource ids are
// reduced to their last segment, the form the service takes.
func (c *FDSNClient) Event(ctx context.Context, id string) (quake.Event, error) {
	base := c.Service
	if len(base) == 0 || base[len(base)-1] != '/' {
		base += "/"
	}
	b, err := get(ctx, c.Client, c.UserAgent,
		base+"query?eventid="+url.QueryEscape(quake.ShortID(id)))
	if err != nil {
		return quake.Event{}, err
	}
	evs, err := ParseQuakeML(b)
	if err != nil {
		return quake.Event{}, err
	}
	if len(evs) == 0 {
		return quake.Event{}, ErrNoEvents
	}
	return evs[0], nil
}
