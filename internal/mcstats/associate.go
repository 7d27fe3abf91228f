// Public domain.

package mcstats

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"github.com/soniakeys/magcompare/internal/mcmatch"
	"github.com/soniakeys/magcompare/internal/mcmetrics"
	"github.com/soniakeys/magcompare/internal/mcseries"
)

// Output file names.
const (
	AssociationsFile = "magnitude_associations.csv"
	BinsFile         = "magnitude_bins.csv"
)

// FrequencyFile names the frequency-magnitude table of a series.
func FrequencyFile(catalog, magType string) string {
	return catalog + "_" + magType + "_frequency.csv"
}

// Options control the bootstrap.
type Options struct {
	Samples    int // 0 disables the bootstrap
	Repeatable bool
	Seed       uint64
}

// Pair is the association of one reference type with one comparison type.
type Pair struct {
	RefType, CmpType string
	Line
	Bins []Bin
}

// Associate fits every reference type against every comparison type with
// a different label, over rows of t holding both values.  Pairs with fewer
// than two points, or points that do not determine a line, are logged and
// skipped.
func Associate(t *mcmatch.Table, refTypes, cmpTypes []string, opt Options, log *zap.Logger) []Pair {
	if log == nil {
		log = zap.NewNop()
	}
	rnd := rand.New(&rand.PCGSource{})
	if !opt.Repeatable {
		rnd.Seed(uint64(time.Now().UnixNano()))
	}
	var pairs []Pair
	for _, rt := range refTypes {
		for _, ct := range cmpTypes {
			if rt == ct {
				continue
			}
			var x, y []float64
			for i := range t.Rows {
				m := t.Rows[i].Magnitudes
				rv, ok1 := m[rt]
				cv, ok2 := m[ct]
				if ok1 && ok2 {
					x = append(x, cv)
					y = append(y, rv)
				}
			}
			l, err := FitODR(x, y)
			if err != nil {
				log.Warn("association skipped",
					zap.String("ref_type", rt),
					zap.String("cmp_type", ct),
					zap.Int("pairs", len(x)),
					zap.Error(err))
				continue
			}
			if opt.Samples > 0 {
				// each pair gets the same stream in repeatable mode
				if opt.Repeatable {
					rnd.Seed(opt.Seed)
				}
				l = Bootstrap(l, x, y, opt.Samples, rnd)
			}
			log.Info("association",
				zap.String("ref_type", rt),
				zap.String("cmp_type", ct),
				zap.Int("pairs", l.N),
				zap.Float64("slope", l.Slope),
				zap.Float64("intercept", l.Intercept))
			mcmetrics.ObserveAssociation(rt, ct, l.N, l.Slope)
			pairs = append(pairs, Pair{RefType: rt, CmpType: ct, Line: l, Bins: Bins(x, y)})
		}
	}
	return pairs
}

func ff(v float64) string { return mcseries.FormatFloat(v) }

// WriteAssociations writes one row per fitted pair.
func WriteAssociations(w io.Writer, pairs []Pair) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"ref_type", "cmp_type", "n", "slope", "intercept", "slope_err", "intercept_err"})
	for _, p := range pairs {
		cw.Write([]string{p.RefType, p.CmpType, strconv.Itoa(p.N),
			ff(p.Slope), ff(p.Intercept), ff(p.SlopeErr), ff(p.InterceptErr)})
	}
	cw.Flush()
	return cw.Error()
}

// WriteBins writes the geometric-mean bins of all pairs.
func WriteBins(w io.Writer, pairs []Pair) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"ref_type", "cmp_type", "cmp_magnitude", "ref_geometric_mean", "count"})
	for _, p := range pairs {
		for _, b := range p.Bins {
			cw.Write([]string{p.RefType, p.CmpType, ff(b.Center), ff(b.GeoMean), strconv.Itoa(b.Count)})
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFrequency writes a frequency-magnitude table.
func WriteFrequency(w io.Writer, fb []FreqBin) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"magnitude", "count", "cumulative"})
	for _, b := range fb {
		cw.Write([]string{ff(b.Magnitude), strconv.Itoa(b.Count), strconv.Itoa(b.Cumulative)})
	}
	cw.Flush()
	return cw.Error()
}
