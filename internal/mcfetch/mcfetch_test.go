// Public domain.

package mcfetch_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soniakeys/magcompare/internal/mcfetch"
	"github.com/soniakeys/magcompare/internal/quake"
)

const sampleQuakeML = `<?xml version="1.0" encoding="UTF-8"?>
<q:quakeml xmlns="http://quakeml.org/xmlns/bed/1.2" xmlns:q="http://quakeml.org/xmlns/quakeml/1.2">
 <eventParameters publicID="smi:nz.org.geonet/catalog/1">
  <event publicID="smi:nz.org.geonet/2016p858000">
   <description><text>25 km south-east of Hanmer Springs</text><type>region name</type></description>
   <preferredOriginID>smi:nz.org.geonet/Origin#b</preferredOriginID>
   <origin publicID="smi:nz.org.geonet/Origin#a">
    <time><value>2016-11-13T11:02:50.000000Z</value></time>
    <latitude><value>-42.0</value></latitude>
    <longitude><value>173.0</value></longitude>
   </origin>
   <origin publicID="smi:nz.org.geonet/Origin#b">
    <time><value>2016-11-13T11:02:56.346094Z</value></time>
    <latitude><value>-42.69</value></latitude>
    <longitude><value>173.02</value></longitude>
    <depth><value>15110</value></depth>
   </origin>
   <magnitude publicID="m1"><mag><value>7.8</value></mag><type>Mw</type></magnitude>
   <magnitude publicID="m2"><mag><value>7.5</value></mag><type>ML</type></magnitude>
   <magnitude publicID="m3"><type>mB</type></magnitude>
  </event>
  <event publicID="smi:nz.org.geonet/2016p858001">
   <origin publicID="o2">
    <time><value>2016-11-13T11:04:01.5</value></time>
    <latitude><value>-42.5</value></latitude>
    <longitude><value>173.3</value></longitude>
   </origin>
   <magnitude publicID="m4"><mag><value>4.1</value></mag><type>ML</type></magnitude>
  </event>
  <event publicID="no-origin"/>
 </eventParameters>
</q:quakeml>`

const noEvents = `<?xml version="1.0" encoding="UTF-8"?>
<quakeml xmlns="http://quakeml.org/xmlns/quakeml/1.2">No events were found.
</quakeml>`

func TestParseQuakeML(t *testing.T) {
	evs, err := mcfetch.ParseQuakeML([]byte(sampleQuakeML))
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 {
		t.Fatal("events", len(evs))
	}
	e := evs[0]
	want := time.Date(2016, 11, 13, 11, 2, 56, 346094000, time.UTC)
	if e.ID != "smi:nz.org.geonet/2016p858000" || !e.Origin.Time.Equal(want) ||
		e.Origin.Latitude != -42.69 || e.Origin.Depth != 15110 {
		t.Fatalf("preferred origin not used: %+v", e)
	}
	if len(e.Magnitudes) != 2 || e.Magnitudes[1] != (quake.Magnitude{Type: "ML", Value: 7.5}) {
		t.Fatal(e.Magnitudes)
	}
	if e.Description != "25 km south-east of Hanmer Springs" {
		t.Fatal(e.Description)
	}
	e = evs[1]
	if e.Origin.HasDepth() || e.Origin.Time.Nanosecond() != 5e8 {
		t.Fatalf("%+v", e.Origin)
	}
}

func TestParseNoEvents(t *testing.T) {
	if _, err := mcfetch.ParseQuakeML([]byte(noEvents)); !errors.Is(err, mcfetch.ErrNoEvents) {
		t.Fatal(err)
	}
	if _, err := mcfetch.ParseQuakeML([]byte("<quakeml><eventParameters>")); err == nil {
		t.Fatal("truncated document parsed")
	}
}

var q0 = mcfetch.Query{
	Start:        time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC),
	End:          time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
	MinLatitude:  -90,
	MaxLatitude:  90,
	MinLongitude: 0,
	MaxLongitude: -0.001,
	MinMagnitude: 3,
	MaxMagnitude: 10,
}

func TestSplit(t *testing.T) {
	parts := q0.Split(7)
	if len(parts) != 7 || !parts[0].Start.Equal(q0.Start) || !parts[6].End.Equal(q0.End) {
		t.Fatalf("%+v", parts)
	}
	for i := 1; i < len(parts); i++ {
		if !parts[i].Start.Equal(parts[i-1].End) {
			t.Fatal("gap at part", i)
		}
	}
	if parts[3].MinMagnitude != 3 {
		t.Fatal("bounds not copied")
	}
}

func TestFDSNClient(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		switch r.URL.Query().Get("minmagnitude") {
		case "9":
			w.WriteHeader(http.StatusNoContent)
		case "8":
			fmt.Fprint(w, noEvents)
		case "7":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			if r.URL.Path != "/fdsnws/event/1/query" {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, sampleQuakeML)
		}
	}))
	defer srv.Close()

	c := &mcfetch.FDSNClient{Service: srv.URL + "/fdsnws/event/1/", LongitudeWrap: true, Client: srv.Client()}
	evs, err := c.Fetch(context.Background(), q0)
	if err != nil || len(evs) != 2 {
		t.Fatal(len(evs), err)
	}
	maxLon, _ := strconv.ParseFloat(got.Get("maxlongitude"), 64)
	if math.Abs(maxLon-359.999) > 1e-9 || got.Get("starttime") != "2012-01-01T00:00:00" {
		t.Fatal(got)
	}
	for mag, want := range map[float64]error{9: mcfetch.ErrNoEvents, 8: mcfetch.ErrNoEvents, 7: mcfetch.ErrTransient} {
		q := q0
		q.MinMagnitude = mag
		if _, err := c.Fetch(context.Background(), q); !errors.Is(err, want) {
			t.Fatal(mag, err)
		}
	}
}

func TestISCClient(t *testing.T) {
	busy := true
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		if busy {
			fmt.Fprint(w, "<html>Sorry, but your request cannot be processed at the present time.</html>")
			return
		}
		fmt.Fprint(w, sampleQuakeML)
	}))
	defer srv.Close()

	c := &mcfetch.ISCClient{Service: srv.URL, Client: srv.Client()}
	q := q0
	q.Start = time.Date(2019, 3, 4, 5, 6, 7, 0, time.UTC)
	if _, err := c.Fetch(context.Background(), q); !errors.Is(err, mcfetch.ErrTransient) {
		t.Fatal(err)
	}
	if got.Get("start_year") != "2019" || got.Get("start_month") != "3" || got.Get("start_day") != "4" ||
		got.Get("start_time") != "05:06:07" || got.Get("out_format") != "CATQuakeML" {
		t.Fatal(got)
	}
	busy = false
	if evs, err := c.Fetch(context.Background(), q); err != nil || len(evs) != 2 {
		t.Fatal(len(evs), err)
	}
}

const sampleCMT = `PublicID,Date,Latitude,Longitude,strike1,ML,Mw,Mo,CD,NS
2016p858000,20161113110256,-42.6,173.05,219,7.5,7.8,5.9e+20,15,20
2016p858001,20161113110401,-42.5,173.3,100,4.1,4.3,3e15,22,5
2012p000001,20120101000000,-40,175,10,3.5,3.6,1e14,33,7
2001p000001,20010101000000,-40,175,10,3.5,4.6,1e15,33,7
`

func TestParseCMT(t *testing.T) {
	sols, err := mcfetch.ParseCMT(strings.NewReader(sampleCMT))
	if err != nil {
		t.Fatal(err)
	}
	if len(sols) != 4 {
		t.Fatal("solutions", len(sols))
	}
	want := mcfetch.CMTSolution{
		ID:        "2016p858001",
		Time:      time.Date(2016, 11, 13, 11, 4, 1, 0, time.UTC),
		Latitude:  -42.5,
		Longitude: 173.3,
		Depth:     22000,
		Mw:        4.3,
	}
	if sols[1] != want {
		t.Fatalf("%+v", sols[1])
	}
	for _, bad := range []struct{ csv, msg string }{
		{"PublicID,Date,Latitude,Longitude,CD\n", "no Mw column"},
		{"PublicID,Date,Latitude,Longitude,CD,Mw\nx,2016-11-13,1,2,3,4\n", "cmt line 2"},
		{"PublicID,Date,Latitude,Longitude,CD,Mw\nx,20161113110401,1,2,deep,4\n", "CD"},
		{"PublicID,Date,Latitude,Longitude,CD,Mw\nx,20161113110401,1,2\n", "4 fields"},
	} {
		_, err := mcfetch.ParseCMT(strings.NewReader(bad.csv))
		if err == nil || !strings.Contains(err.Error(), bad.msg) {
			t.Fatalf("%q: %v", bad.csv, err)
		}
	}
}

func TestCMTSource(t *testing.T) {
	var mu sync.Mutex
	downloads := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cmt.csv":
			mu.Lock()
			downloads++
			mu.Unlock()
			fmt.Fprint(w, sampleCMT)
		case "/fdsnws/event/1/query":
			switch r.URL.Query().Get("eventid") {
			case "2016p858000":
				fmt.Fprint(w, sampleQuakeML)
			case "2012p000001":
				w.WriteHeader(http.StatusServiceUnavailable)
			default:
				w.WriteHeader(http.StatusNoContent)
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := &mcfetch.CMTSource{
		URL:     srv.URL + "/cmt.csv",
		Origins: &mcfetch.FDSNClient{Service: srv.URL + "/fdsnws/event/1", Client: srv.Client()},
		Client:  srv.Client(),
	}
	q := q0
	q.MinMagnitude = 4
	evs, err := c.Fetch(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 {
		t.Fatalf("%+v", evs)
	}
	// origin from the catalog
	e := evs[0]
	if e.ID != "smi:nz.org.geonet/2016p858000" || e.Origin.Latitude != -42.69 || e.Origin.Depth != 15110 {
		t.Fatalf("%+v", e)
	}
	if len(e.Magnitudes) != 1 || e.Magnitudes[0] != (quake.Magnitude{Type: mcfetch.CMTMagType, Value: 7.8}) {
		t.Fatal(e.Magnitudes)
	}
	// centroid when the catalog does not know the event
	e = evs[1]
	if e.ID != mcfetch.CMTIDPrefix+"2016p858001" || e.Origin.Latitude != -42.5 || e.Origin.Depth != 22000 ||
		!e.Origin.Time.Equal(time.Date(2016, 11, 13, 11, 4, 1, 0, time.UTC)) {
		t.Fatalf("%+v", e)
	}

	q.MinMagnitude = 3
	if _, err := c.Fetch(context.Background(), q); !errors.Is(err, mcfetch.ErrTransient) {
		t.Fatal(err)
	}
	q.Start = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := c.Fetch(context.Background(), q); !errors.Is(err, mcfetch.ErrNoEvents) {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if downloads != 1 {
		t.Fatal("list downloaded", downloads, "times")
	}
}

// stubFetcher returns one event per query, named by its window, and fails
// according to fail.
type stubFetcher struct {
	mu    sync.Mutex
	fail  func(q mcfetch.Query, try int) error
	tries map[string]int
	log   []string
}

func (f *stubFetcher) Fetch(ctx context.Context, q mcfetch.Query) ([]quake.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := q.Start.Format(time.RFC3339) + "/" + q.End.Format(time.RFC3339)
	f.tries[k]++
	f.log = append(f.log, k)
	if err := f.fail(q, f.tries[k]); err != nil {
		return nil, err
	}
	return []quake.Event{{ID: k, Origin: quake.Origin{Time: q.Start, Depth: math.NaN()}}}, nil
}

func collect(t *testing.T, f *stubFetcher, q mcfetch.Query) []string {
	s := &mcfetch.Splitter{Fetcher: f, Catalog: "test", Growth: 4, MinWindow: time.Hour}
	var ids []string
	err := s.Fetch(context.Background(), q, func(evs []quake.Event) error {
		for _, e := range evs {
			ids = append(ids, e.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return ids
}

var day = mcfetch.Query{
	Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
}

// checks that pages tile the window in order with no overlap
func tiles(t *testing.T, ids []string, q mcfetch.Query) {
	at := q.Start
	for _, id := range ids {
		s, _ := time.Parse(time.RFC3339, id[:20])
		e, _ := time.Parse(time.RFC3339, id[21:])
		if !s.Equal(at) {
			t.Fatalf("page %s does not start at %s", id, at)
		}
		at = e
	}
	if !at.Equal(q.End) {
		t.Fatal("window not covered, ends", at)
	}
}

func TestSplitterFirstPartGrows(t *testing.T) {
	f := &stubFetcher{tries: map[string]int{}, fail: func(q mcfetch.Query, try int) error {
		if q.End.Sub(q.Start) > 6*time.Hour {
			return errors.New("too large")
		}
		return nil
	}}
	ids := collect(t, f, day)
	// 1 part fails, 4 parts of 6 h succeed
	if len(ids) != 4 {
		t.Fatal(ids)
	}
	tiles(t, ids, day)
}

func TestSplitterLaterPartHalves(t *testing.T) {
	bad := day.Start.Add(12 * time.Hour)
	f := &stubFetcher{tries: map[string]int{}, fail: func(q mcfetch.Query, try int) error {
		switch {
		case q.End.Sub(q.Start) == 24*time.Hour:
			return errors.New("too large")
		case q.Start.Equal(bad) && q.End.Sub(q.Start) == 6*time.Hour:
			return errors.New("timeout")
		}
		return nil
	}}
	ids := collect(t, f, day)
	// parts 1, 2 and 4 of 6 h, part 3 as two halves of 3 h
	if len(ids) != 5 {
		t.Fatal(ids)
	}
	tiles(t, ids, day)
}

func TestSplitterMinWindowRetriesSame(t *testing.T) {
	short := mcfetch.Query{Start: day.Start, End: day.Start.Add(90 * time.Minute)}
	f := &stubFetcher{tries: map[string]int{}, fail: func(q mcfetch.Query, try int) error {
		if q.Start.Equal(short.Start) && try < 3 {
			return errors.New("flaky")
		}
		return nil
	}}
	// 90 minutes cannot grow past one part of an hour, so the first part
	// is retried whole until it succeeds
	ids := collect(t, f, short)
	if len(ids) != 1 || len(f.log) != 3 {
		t.Fatal(ids, f.log)
	}
}

func TestSplitterEmptyPages(t *testing.T) {
	f := &stubFetcher{tries: map[string]int{}, fail: func(q mcfetch.Query, try int) error {
		if q.End.Sub(q.Start) > 6*time.Hour {
			return errors.New("too large")
		}
		if q.Start.Hour() == 6 {
			return fmt.Errorf("fdsn: %w", mcfetch.ErrNoEvents)
		}
		return nil
	}}
	ids := collect(t, f, day)
	if len(ids) != 3 {
		t.Fatal(ids)
	}
}

func TestSplitterSinkError(t *testing.T) {
	f := &stubFetcher{tries: map[string]int{}, fail: func(mcfetch.Query, int) error { return nil }}
	s := &mcfetch.Splitter{Fetcher: f}
	stop := errors.New("disk full")
	if err := s.Fetch(context.Background(), day, func([]quake.Event) error { return stop }); err != stop {
		t.Fatal(err)
	}
}

func TestSplitterCancel(t *testing.T) {
	f := &stubFetcher{tries: map[string]int{}, fail: func(mcfetch.Query, int) error { return errors.New("down") }}
	s := &mcfetch.Splitter{Fetcher: f, Delay: time.Hour, MinWindow: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Fetch(ctx, day, func([]quake.Event) error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal(err)
	}
}
