// Public domain.

package mcstats

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/soniakeys/magcompare/internal/quake"
)

// Bin summarizes the y values whose x rounds to Center.
type Bin struct {
	Center  float64
	GeoMean float64 // NaN if any value is not positive
	Count   int
}

// binKey rounds a magnitude to one decimal.  decimal rounding avoids
// float artifacts at half steps like 4.35.
func binKey(m float64) decimal.Decimal {
	return decimal.NewFromFloat(m).Round(1)
}

func groups(x []float64) (keys []decimal.Decimal, idx map[string][]int) {
	idx = map[string][]int{}
	for i, v := range x {
		k := binKey(v)
		s := k.String()
		if _, ok := idx[s]; !ok {
			keys = append(keys, k)
		}
		idx[s] = append(idx[s], i)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].LessThan(keys[j]) })
	return
}

// Bins groups y by x rounded to 0.1 and reports the geometric mean of each
// group, in increasing order of x.
func Bins(x, y []float64) []Bin {
	keys, idx := groups(x)
	bins := make([]Bin, len(keys))
	for i, k := range keys {
		members := idx[k.String()]
		ys := make([]float64, len(members))
		for j, m := range members {
			ys[j] = y[m]
		}
		bins[i] = Bin{
			Center:  k.InexactFloat64(),
			GeoMean: stat.GeometricMean(ys, nil),
			Count:   len(ys),
		}
	}
	return bins
}

// FreqBin is one row of a frequency-magnitude table.
type FreqBin struct {
	Magnitude  float64
	Count      int // events in the bin
	Cumulative int // events at or above Magnitude
}

// Frequency tabulates the magnitudes of one series in 0.1 bins.  Records
// without a magnitude value are skipped.
func Frequency(recs []quake.Record) []FreqBin {
	m := make([]float64, 0, len(recs))
	for i := range recs {
		if v := recs[i].Magnitude; !math.IsNaN(v) {
			m = append(m, v)
		}
	}
	keys, idx := groups(m)
	fb := make([]FreqBin, len(keys))
	cum := 0
	for i := len(keys) - 1; i >= 0; i-- {
		n := len(idx[keys[i].String()])
		cum += n
		fb[i] = FreqBin{Magnitude: keys[i].InexactFloat64(), Count: n, Cumulative: cum}
	}
	return fb
}
