// Public domain.

// Package mcstats relates the magnitude scales of matched events.
//
// For each pair of magnitude types a straight line ref = slope·cmp +
// intercept is fit by orthogonal distance regression, treating both
// magnitudes as equally uncertain.  Standard errors come from a bootstrap
// over matched pairs.
package mcstats

import (
	"errors"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// ErrDegenerate is returned when points do not determine a line.
var ErrDegenerate = errors.New("degenerate fit")

// Line is y = Slope·x + Intercept.
type Line struct {
	Slope, Intercept       float64
	SlopeErr, InterceptErr float64 // NaN when not estimated
	N                      int
}

// FitODR fits a line minimizing perpendicular distances, with equal error
// variance in x and y.
func FitODR(x, y []float64) (Line, error) {
	if len(x) != len(y) {
		return Line{}, errors.New("fit: length mismatch")
	}
	if len(x) < 2 {
		return Line{}, ErrDegenerate
	}
	mx, my := stat.Mean(x, nil), stat.Mean(y, nil)
	sxx := stat.Variance(x, nil)
	syy := stat.Variance(y, nil)
	sxy := stat.Covariance(x, y, nil)
	if sxy == 0 {
		return Line{}, ErrDegenerate
	}
	d := syy - sxx
	slope := (d + math.Sqrt(d*d+4*sxy*sxy)) / (2 * sxy)
	return Line{
		Slope:        slope,
		Intercept:    my - slope*mx,
		SlopeErr:     math.NaN(),
		InterceptErr: math.NaN(),
		N:            len(x),
	}, nil
}

// Bootstrap estimates standard errors of l from samples fits to pairs drawn
// with replacement.  Degenerate resamples are skipped.  l is returned
// unchanged if fewer than two resamples could be fit.
func Bootstrap(l Line, x, y []float64, samples int, rnd *rand.Rand) Line {
	n := len(x)
	bx := make([]float64, n)
	by := make([]float64, n)
	var slopes, intercepts []float64
	for s := 0; s < samples; s++ {
		for i := range bx {
			j := rnd.Intn(n)
			bx[i], by[i] = x[j], y[j]
		}
		f, err := FitODR(bx, by)
		if err != nil {
			continue
		}
		slopes = append(slopes, f.Slope)
		intercepts = append(intercepts, f.Intercept)
	}
	if len(slopes) < 2 {
		return l
	}
	l.SlopeErr = stat.StdDev(slopes, nil)
	l.InterceptErr = stat.StdDev(intercepts, nil)
	return l
}
