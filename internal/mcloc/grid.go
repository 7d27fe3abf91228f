// Public domain.

package mcloc

import (
	"context"
	"math"
	"strings"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/unit"

	"github.com/soniakeys/magcompare/internal/mcgeo"
	"github.com/soniakeys/magcompare/internal/quake"
)

// GridLocator searches a cube of trial hypocenters centred on the trial
// origin, holding origin time fixed, in a homogeneous velocity Earth.
// Straight ray paths are used, with distances from mcgeo vectors.
//
// Misfit is the RMS of arrival time residuals in seconds at the best node.
// Holding the origin time fixed makes the misfit sensitive to the trial
// origin time as well as to location.
type GridLocator struct {
	Vp, Vs    float64 // m/s
	Step      float64 // grid spacing, m
	HalfWidth float64 // half width of the cube, m
}

type station struct {
	pos coord.Cart
	v   float64
	tt  float64 // observed travel time from trial origin time, s
}

// Relocate implements Locator.
func (g *GridLocator) Relocate(ctx context.Context, picks []Pick, trial quake.Origin) (quake.Origin, float64, error) {
	sta := make([]station, 0, len(picks))
	for _, p := range picks {
		v := g.velocity(p.Phase)
		if v <= 0 || p.Time.IsZero() {
			continue
		}
		sta = append(sta, station{
			pos: mcgeo.ToCartesian(p.Latitude, p.Longitude, -p.Elevation),
			v:   v,
			tt:  p.Time.Sub(trial.Time).Seconds(),
		})
	}
	if len(sta) == 0 {
		return trial, 0, ErrNoPicks
	}
	// search from the surface when depth is unknown or above sea level
	depth := trial.Depth
	if !trial.HasDepth() || depth < 0 {
		depth = 0
	}
	n := 0
	if g.Step > 0 {
		n = int(g.HalfWidth / g.Step)
	}
	// meters to degrees of latitude, and of longitude at the trial latitude
	perLat := unit.Angle(1 / mcgeo.EarthRadius).Deg()
	perLon := perLat
	if c := unit.AngleFromDeg(trial.Latitude).Cos(); c > 1e-6 {
		perLon /= c
	}

	best := trial
	best.Depth = depth
	bestRms := math.Inf(1)
	for k := -n; k <= n; k++ {
		if err := ctx.Err(); err != nil {
			return trial, 0, err
		}
		z := depth + float64(k)*g.Step
		if z < 0 {
			continue
		}
		for i := -n; i <= n; i++ {
			lat := trial.Latitude + float64(i)*g.Step*perLat
			for j := -n; j <= n; j++ {
				lon := trial.Longitude + float64(j)*g.Step*perLon
				h := mcgeo.ToCartesian(lat, lon, z)
				if r := rms(&h, sta); r < bestRms {
					bestRms = r
					best.Latitude, best.Longitude, best.Depth = lat, lon, z
				}
			}
		}
	}
	return best, bestRms, nil
}

func rms(h *coord.Cart, sta []station) float64 {
	var sum float64
	for i := range sta {
		s := &sta[i]
		r := s.tt - mcgeo.Distance(h, &s.pos)/s.v
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(sta)))
}

func (g *GridLocator) velocity(phase string) float64 {
	switch {
	case strings.HasPrefix(phase, "P"), strings.HasPrefix(phase, "p"):
		return g.Vp
	case strings.HasPrefix(phase, "S"), strings.HasPrefix(phase, "s"):
		return g.Vs
	}
	return 0
}
