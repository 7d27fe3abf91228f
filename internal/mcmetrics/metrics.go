// Public domain.

// Package mcmetrics holds the Prometheus collectors of a magcompare run.
//
// A run is a batch job, so collectors are pushed to a Pushgateway when the
// run finishes rather than scraped.
package mcmetrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "magcompare"

// Relocation results.
const (
	RelocationAccepted = "accepted"
	RelocationRejected = "rejected"
	RelocationNoPicks  = "no_picks"
)

// Fetch outcomes.
const (
	FetchOK     = "ok"
	FetchEmpty  = "empty"
	FetchFailed = "failed"
)

var (
	recordsExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_extracted_total",
			Help:      "Timeseries records extracted from catalog events, by series.",
		},
		[]string{"catalog", "mag_type"},
	)

	fetchQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_queries_total",
			Help:      "Catalog queries issued, partitioned by outcome.",
		},
		[]string{"catalog", "outcome"},
	)

	candidatesPerRecord = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates_per_record",
			Help:      "Candidates passing the time and distance thresholds per searched reference record.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	relocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relocations_total",
			Help:      "Relocations of reference events at candidate origins, by result.",
		},
		[]string{"result"},
	)

	relocationMisfit = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relocation_misfit_seconds",
			Help:      "RMS misfit of relocations that ran.",
			Buckets:   []float64{.5, 1, 2, 3, 5, 8, 13, 21, 34},
		},
	)

	searchOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_outcomes_total",
			Help:      "Final state of reference records in matching passes.",
		},
		[]string{"state"},
	)

	matchTimeSeparation = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_time_separation_seconds",
			Help:      "Origin time separation of confirmed matches.",
			Buckets:   []float64{.5, 1, 2, 5, 10, 20, 50, 100},
		},
	)

	matchDistance = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_distance_km",
			Help:      "Hypocenter separation of confirmed matches.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000},
		},
	)

	ambiguousMatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ambiguous_matches_total",
			Help:      "Passes that matched an already matched reference event to a different event.",
		},
	)

	associationPairs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "association_pairs",
			Help:      "Matched magnitude pairs per magnitude type pair.",
		},
		[]string{"ref_type", "cmp_type"},
	)

	associationSlope = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "association_slope",
			Help:      "Orthogonal regression slope of reference on comparison magnitudes.",
		},
		[]string{"ref_type", "cmp_type"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		recordsExtracted,
		fetchQueries,
		candidatesPerRecord,
		relocations,
		relocationMisfit,
		searchOutcomes,
		matchTimeSeparation,
		matchDistance,
		ambiguousMatches,
		associationPairs,
		associationSlope,
	}
}

// Register attaches the magcompare collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// Push sends everything gathered by g to a Pushgateway, grouped by run id.
func Push(ctx context.Context, url, job, runID string, g prometheus.Gatherer) error {
	return push.New(url, job).
		Grouping("run", runID).
		Gatherer(g).
		PushContext(ctx)
}

// ObserveExtracted counts records extracted into a series.
func ObserveExtracted(catalog, magType string, n int) {
	recordsExtracted.WithLabelValues(catalog, magType).Add(float64(n))
}

// ObserveFetch counts a catalog query.
func ObserveFetch(catalog, outcome string) {
	fetchQueries.WithLabelValues(catalog, outcome).Inc()
}

// ObserveCandidates records the candidate count of a searched record.
func ObserveCandidates(n int) {
	candidatesPerRecord.Observe(float64(n))
}

// ObserveRelocation records one relocation.  Misfit is ignored for
// RelocationNoPicks.
func ObserveRelocation(result string, misfit float64) {
	relocations.WithLabelValues(result).Inc()
	if result != RelocationNoPicks {
		relocationMisfit.Observe(misfit)
	}
}

// ObserveSearch counts a final search state.
func ObserveSearch(state string) {
	searchOutcomes.WithLabelValues(state).Inc()
}

// ObserveMatch records the separations of a confirmed match.
func ObserveMatch(dt, distKm float64) {
	matchTimeSeparation.Observe(dt)
	matchDistance.Observe(distKm)
}

// ObserveAmbiguity counts a multi-mapping.
func ObserveAmbiguity() {
	ambiguousMatches.Inc()
}

// ObserveAssociation records the size and slope of a fitted association.
func ObserveAssociation(refType, cmpType string, n int, slope float64) {
	associationPairs.WithLabelValues(refType, cmpType).Set(float64(n))
	associationSlope.WithLabelValues(refType, cmpType).Set(slope)
}
