// Public domain.

package mcmetrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	if err := Register(reg); err != nil {
		t.Fatal("second register:", err)
	}
}

func TestObserve(t *testing.T) {
	before := testutil.ToFloat64(relocations.WithLabelValues(RelocationNoPicks))
	ObserveRelocation(RelocationNoPicks, 9999)
	if got := testutil.ToFloat64(relocations.WithLabelValues(RelocationNoPicks)); got != before+1 {
		t.Fatal("no_picks relocations", got)
	}

	ObserveExtracted("GeoNet_catalog", "ML", 3)
	ObserveExtracted("GeoNet_catalog", "ML", 2)
	if got := testutil.ToFloat64(recordsExtracted.WithLabelValues("GeoNet_catalog", "ML")); got < 5 {
		t.Fatal("records extracted", got)
	}

	ObserveAssociation("ML", "mww", 120, 1.08)
	if got := testutil.ToFloat64(associationSlope.WithLabelValues("ML", "mww")); got != 1.08 {
		t.Fatal("slope gauge", got)
	}
}

func TestPush(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	ObserveAmbiguity()
	if err := Push(context.Background(), srv.URL, "magcompare", "run-1", reg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(path, "/job/magcompare") || !strings.Contains(path, "/run/run-1") {
		t.Fatal("push path", path)
	}
}
