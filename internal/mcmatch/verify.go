// Public domain.

package mcmatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/soniakeys/magcompare/internal/mcloc"
	"github.com/soniakeys/magcompare/internal/mcmetrics"
	"github.com/soniakeys/magcompare/internal/quake"
)

// SentinelMisfit is reported when a relocation could not be run at all,
// because the reference event has no picks or the locator failed.  It is
// always above any sensible threshold.
const SentinelMisfit = 9999

// Verifier confirms candidates by relocating the reference event.
//
// Locator and Picks are shared by all workers of a pass and must be safe
// for concurrent use.
type Verifier struct {
	Locator      mcloc.Locator
	Picks        mcloc.PickSource
	RMSThreshold float64 // seconds
	Log          *zap.Logger
}

// Outcome is the result of verifying the candidates of one record.
type Outcome struct {
	Matched     bool
	Candidate   Candidate // the accepted candidate, if Matched
	Misfit      float64   // of the accepted candidate, else of the last try
	Refined     quake.Origin
	Relocations int  // relocations actually run
	NoPicks     bool // picks were missing or a relocation failed
}

// Verify tries cands in order and accepts the first whose relocation
// misfit is within the threshold.  Candidates are indexes into pool.
//
// An empty candidate list, or no qualifying candidate, is a normal
// unmatched outcome.  Missing picks and locator errors reject with
// SentinelMisfit and stop the search; relocation is never retried.
func (v *Verifier) Verify(ctx context.Context, ref *quake.Record, cands []Candidate, pool *Pool) Outcome {
	var out Outcome
	if len(cands) == 0 {
		return out
	}
	log := v.Log
	if log == nil {
		log = zap.NewNop()
	}
	picks, err := v.Picks.Picks(ctx, ref.EventID)
	if err == nil && len(picks) == 0 {
		err = mcloc.ErrNoPicks
	}
	if err != nil {
		log.Debug("no picks for reference event",
			zap.String("event", ref.EventID), zap.Error(err))
		mcmetrics.ObserveRelocation(mcmetrics.RelocationNoPicks, SentinelMisfit)
		out.Misfit = SentinelMisfit
		out.NoPicks = true
		return out
	}
	for _, c := range cands {
		cr := &pool.Recs[c.Index]
		refined, misfit, err := v.Locator.Relocate(ctx, picks, cr.Origin)
		if err != nil {
			log.Debug("relocation failed",
				zap.String("event", ref.EventID),
				zap.String("candidate", cr.EventID),
				zap.Error(err))
			mcmetrics.ObserveRelocation(mcmetrics.RelocationNoPicks, SentinelMisfit)
			out.Misfit = SentinelMisfit
			out.NoPicks = true
			return out
		}
		out.Relocations++
		out.Misfit = misfit
		accepted := misfit <= v.RMSThreshold
		log.Debug("relocated",
			zap.String("event", ref.EventID),
			zap.String("candidate", cr.EventID),
			zap.Float64("dt", c.Dt),
			zap.Float64("dist_km", c.Dist),
			zap.Float64("misfit", misfit),
			zap.Bool("accepted", accepted))
		if !accepted {
			mcmetrics.ObserveRelocation(mcmetrics.RelocationRejected, misfit)
			continue
		}
		mcmetrics.ObserveRelocation(mcmetrics.RelocationAccepted, misfit)
		out.Matched = true
		out.Candidate = c
		out.Refined = refined
		return out
	}
	return out
}
