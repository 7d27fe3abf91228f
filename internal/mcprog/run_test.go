// Public domain.

package mcprog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/soniakeys/magcompare/internal/mcconfig"
	"github.com/soniakeys/magcompare/internal/mcgeo"
	"github.com/soniakeys/magcompare/internal/mcloc"
	"github.com/soniakeys/magcompare/internal/mcmatch"
	"github.com/soniakeys/magcompare/internal/mcstats"
)

var ot = time.Date(2016, 11, 13, 11, 2, 56, 0, time.UTC)

const qmlEvent = `<?xml version="1.0" encoding="UTF-8"?>
<q:quakeml xmlns="http://quakeml.org/xmlns/bed/1.2" xmlns:q="http://quakeml.org/xmlns/quakeml/1.2">
 <eventParameters publicID="catalog">
  <event publicID="%s">
   <origin publicID="o1">
    <time><value>%s</value></time>
    <latitude><value>%g</value></latitude>
    <longitude><value>%g</value></longitude>
    <depth><value>%g</value></depth>
   </origin>
   <magnitude publicID="m1"><mag><value>%g</value></mag><type>%s</type></magnitude>
  </event>
 </eventParameters>
</q:quakeml>`

const qmlTwoMagnitudes = `<?xml version="1.0" encoding="UTF-8"?>
<q:quakeml xmlns="http://quakeml.org/xmlns/bed/1.2" xmlns:q="http://quakeml.org/xmlns/quakeml/1.2">
 <eventParameters publicID="catalog">
  <event publicID="smi:nz.org.geonet/2016p858000">
   <origin publicID="o1">
    <time><value>2016-11-13T11:02:56Z</value></time>
    <latitude><value>-41</value></latitude>
    <longitude><value>174</value></longitude>
    <depth><value>10000</value></depth>
   </origin>
   <magnitude publicID="m1"><mag><value>5.2</value></mag><type>ML</type></magnitude>
   <magnitude publicID="m2"><mag><value>5.4</value></mag><type>Mw</type></magnitude>
  </event>
 </eventParameters>
</q:quakeml>`

const cmtList = `PublicID,Date,Latitude,Longitude,CD,Mw
2016p858000,20161113110256,-41.05,174.1,12,5.1
`

// hits counts requests by path.
type hits struct {
	mu sync.Mutex
	n  map[string]int
}

func (h *hits) add(path string) {
	h.mu.Lock()
	h.n[path]++
	h.mu.Unlock()
}

func (h *hits) get(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n[path]
}

func catalogServer() (*httptest.Server, *hits) {
	h := &hits{n: map[string]int{}}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.add(r.URL.Path)
		switch r.URL.Path {
		case "/one/query":
			fmt.Fprint(w, qmlTwoMagnitudes)
		case "/ref/cmt.csv":
			fmt.Fprint(w, cmtList)
		case "/ref/query":
			fmt.Fprintf(w, qmlEvent, "smi:nz.org.geonet/2016p858000",
				ot.Format(time.RFC3339Nano), -41., 174., 10000., 5.2, "ML")
		case "/cmp/query":
			fmt.Fprintf(w, qmlEvent, "us1000abcd",
				ot.Add(time.Second).Format(time.RFC3339Nano), -41.01, 174.02, 12000., 5.4, "mww")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})), h
}

// writePicks writes exact P and S arrivals of the reference event.
func writePicks(t *testing.T, fn string, vp, vs float64) {
	h := mcgeo.ToCartesian(-41, 174, 10000)
	var b strings.Builder
	b.WriteString(strings.Join(mcloc.PickHeader, ",") + "\n")
	for _, s := range []struct {
		code     string
		lat, lon float64
	}{
		{"WEL", -41.28, 174.77},
		{"KHZ", -42.42, 173.54},
		{"NNZ", -41.22, 173.38},
		{"BFZ", -40.68, 176.25},
		{"TUZ", -39.85, 175.87},
	} {
		p := mcgeo.ToCartesian(s.lat, s.lon, 0)
		d := mcgeo.Distance(&h, &p)
		for _, ph := range []struct {
			name string
			v    float64
		}{{"P", vp}, {"S", vs}} {
			at := ot.Add(time.Duration(d / ph.v * float64(time.Second)))
			fmt.Fprintf(&b, "2016p858000,%s,%g,%g,0,%s,%s\n",
				s.code, s.lat, s.lon, ph.name, at.Format(time.RFC3339Nano))
		}
	}
	if err := os.WriteFile(fn, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T, srv *httptest.Server) *mcconfig.Config {
	dir := t.TempDir()
	cfg := mcconfig.Default()
	cfg.Output.Dir = dir
	cfg.Window.Start = ot.Truncate(24 * time.Hour)
	cfg.Window.End = cfg.Window.Start.Add(24 * time.Hour)
	cfg.Catalogs.Reference.Service = srv.URL + "/ref/"
	cfg.Catalogs.Reference.MagTypes = []string{"ML", "MLv"}
	cfg.Catalogs.Reference.CMTURL = ""
	cfg.Catalogs.Comparison.Service = srv.URL + "/cmp/"
	cfg.Catalogs.Comparison.LongitudeWrap = false
	cfg.Locator.PicksFile = filepath.Join(dir, "picks.csv")
	cfg.Retrieval.RetryDelay = 0
	cfg.Stats = mcconfig.StatsConfig{BootstrapSamples: 10, Repeatable: true, Seed: 3}
	writePicks(t, cfg.Locator.PicksFile, cfg.Locator.Vp, cfg.Locator.Vs)
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return &cfg
}

func TestRun(t *testing.T) {
	srv, _ := catalogServer()
	defer srv.Close()
	cfg := testConfig(t, srv)

	if err := Run(context.Background(), cfg, zap.NewNop()); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(cfg.Output.Dir, mcmatch.MatchesFile))
	if err != nil {
		t.Fatal(err)
	}
	tb, err := mcmatch.ReadMatches(f)
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(tb.Types, ",") != "ML,MLv,mww" || len(tb.Rows) != 1 {
		t.Fatalf("%+v", tb)
	}
	m := tb.Rows[0]
	if m.MatchedID != "us1000abcd" || m.Misfit > cfg.Matching.RMSThreshold {
		t.Fatalf("%+v", m)
	}
	if m.Magnitudes["ML"] != 5.2 || m.Magnitudes["mww"] != 5.4 {
		t.Fatal(m.Magnitudes)
	}

	for _, fn := range []string{
		mcmatch.DiagnosticsFile,
		mcstats.AssociationsFile,
		mcstats.BinsFile,
		mcstats.FrequencyFile("GeoNet_catalog", "ML"),
		mcstats.FrequencyFile("GeoNet_catalog", "MLv"),
		mcstats.FrequencyFile("USGS_catalog", "mww"),
		"GeoNet_catalog_MLv_timeseries.csv",
	} {
		if _, err := os.Stat(filepath.Join(cfg.Output.Dir, fn)); err != nil {
			t.Fatal(err)
		}
	}

	// associate alone reads the match file back
	cfg.Stages = mcconfig.StagesConfig{Associate: true}
	if err := Run(context.Background(), cfg, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
}

func TestRunMissingSeries(t *testing.T) {
	srv, _ := catalogServer()
	defer srv.Close()
	cfg := testConfig(t, srv)
	cfg.Stages = mcconfig.StagesConfig{Match: true}
	err := Run(context.Background(), cfg, zap.NewNop())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatal(err)
	}
}

// readTable reads back the match file of a run.
func readTable(t *testing.T, cfg *mcconfig.Config) *mcmatch.Table {
	f, err := os.Open(filepath.Join(cfg.Output.Dir, mcmatch.MatchesFile))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	tb, err := mcmatch.ReadMatches(f)
	if err != nil {
		t.Fatal(err)
	}
	return tb
}

func TestRunCMT(t *testing.T) {
	srv, h := catalogServer()
	defer srv.Close()
	cfg := testConfig(t, srv)
	cfg.Catalogs.Reference.MagTypes = []string{"ML", "Mw"}
	cfg.Catalogs.Reference.CMTURL = srv.URL + "/ref/cmt.csv"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := Run(context.Background(), cfg, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	tb := readTable(t, cfg)
	if strings.Join(tb.Types, ",") != "ML,Mw,mww" || len(tb.Rows) != 1 {
		t.Fatalf("%+v", tb)
	}
	m := tb.Rows[0]
	if m.MatchedID != "us1000abcd" {
		t.Fatalf("%+v", m)
	}
	// Mw from the moment tensor list, merged onto the catalog event
	if m.Magnitudes["ML"] != 5.2 || m.Magnitudes["Mw"] != 5.1 || m.Magnitudes["mww"] != 5.4 {
		t.Fatal(m.Magnitudes)
	}
	// one list download, one window query and one origin lookup
	if h.get("/ref/cmt.csv") != 1 || h.get("/ref/query") != 2 {
		t.Fatal(h.n)
	}
}

func TestRunSingleCatalog(t *testing.T) {
	srv, h := catalogServer()
	defer srv.Close()
	cfg := testConfig(t, srv)
	one := mcconfig.CatalogConfig{
		Name:    "GeoNet_catalog",
		Kind:    mcconfig.KindFDSN,
		Service: srv.URL + "/one/",
	}
	cfg.Catalogs.Reference = one
	cfg.Catalogs.Reference.MagTypes = []string{"ML"}
	cfg.Catalogs.Comparison = one
	cfg.Catalogs.Comparison.MagTypes = []string{"Mw"}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := Run(context.Background(), cfg, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	if n := h.get("/one/query"); n != 1 {
		t.Fatal("catalog retrieved", n, "times")
	}
	tb := readTable(t, cfg)
	if strings.Join(tb.Types, ",") != "ML,Mw" || len(tb.Rows) != 1 {
		t.Fatalf("%+v", tb)
	}
	m := tb.Rows[0]
	if m.Matched() || m.Magnitudes["ML"] != 5.2 || m.Magnitudes["Mw"] != 5.4 {
		t.Fatalf("%+v", m)
	}
	for _, fn := range []string{
		mcstats.FrequencyFile("GeoNet_catalog", "ML"),
		mcstats.FrequencyFile("GeoNet_catalog", "Mw"),
	} {
		if _, err := os.Stat(filepath.Join(cfg.Output.Dir, fn)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCatalogs(t *testing.T) {
	c := mcconfig.CatalogsConfig{
		Reference:  mcconfig.CatalogConfig{Name: "a", MagTypes: []string{"ML", "Mw"}},
		Comparison: mcconfig.CatalogConfig{Name: "b", MagTypes: []string{"mww"}},
	}
	if cs := catalogs(c); len(cs) != 2 || cs[1].Name != "b" {
		t.Fatalf("%+v", cs)
	}
	c.Comparison = mcconfig.CatalogConfig{Name: "a", MagTypes: []string{"mB", "ML"}, CMTURL: "cmt.csv"}
	cs := catalogs(c)
	if len(cs) != 1 || strings.Join(cs[0].MagTypes, ",") != "ML,Mw,mB" || cs[0].CMTURL != "cmt.csv" {
		t.Fatalf("%+v", cs)
	}
	if strings.Join(c.Reference.MagTypes, ",") != "ML,Mw" {
		t.Fatal("reference types changed", c.Reference.MagTypes)
	}
}
