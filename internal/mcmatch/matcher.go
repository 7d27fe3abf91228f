// Public domain.

package mcmatch

import (
	"context"
	"runtime"

	"go.uber.org/zap"

	"github.com/soniakeys/magcompare/internal/mcgeo"
	"github.com/soniakeys/magcompare/internal/mcmetrics"
	"github.com/soniakeys/magcompare/internal/quake"
)

// Options are the matching thresholds.
type Options struct {
	MaxDt   float64 // s
	MaxDist float64 // km
	Workers int     // <= 0 means runtime.GOMAXPROCS(0)
}

// Series is one loaded timeseries.
type Series struct {
	Key     quake.SeriesKey
	Records []quake.Record
}

// Matcher runs matching passes and accumulates a Registry.
type Matcher struct {
	opt Options
	v   *Verifier
	log *zap.Logger
}

func New(opt Options, v *Verifier, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	if opt.Workers <= 0 {
		opt.Workers = runtime.GOMAXPROCS(0)
	}
	return &Matcher{opt: opt, v: v, log: log}
}

// Run matches every reference series against every comparison series,
// one pass per pair, and returns the registry.
//
// Every reference event gets a row carrying its own magnitudes.  A pass
// between series of the same catalog merges magnitudes by event id without
// relocation.  Passes run in order; within an external pass records are
// searched concurrently and results are applied in submission order.
func (m *Matcher) Run(ctx context.Context, ref, cmp []Series) (*Registry, error) {
	reg := NewRegistry()
	for _, s := range ref {
		reg.DeclareTypes(s.Key.MagType)
		for i := range s.Records {
			r := &s.Records[i]
			reg.LookupOrCreate(r)
			reg.MergeMagnitude(r.EventID, s.Key.MagType, r.Magnitude)
		}
	}
	for _, s := range cmp {
		reg.DeclareTypes(s.Key.MagType)
	}
	for _, r := range ref {
		for _, c := range cmp {
			switch {
			case len(r.Records) == 0 || len(c.Records) == 0:
				m.log.Info("empty series, pass skipped",
					zap.Stringer("ref", r.Key), zap.Stringer("cmp", c.Key))
				continue
			case r.Key == c.Key:
				continue
			}
			if err := ctx.Err(); err != nil {
				return reg, err
			}
			if r.Key.Catalog == c.Key.Catalog {
				m.internalPass(reg, r, c)
				continue
			}
			if err := m.externalPass(ctx, reg, r, c); err != nil {
				return reg, err
			}
		}
	}
	return reg, nil
}

// internalPass merges magnitudes of the same events reported under another
// type in the reference catalog.
func (m *Matcher) internalPass(reg *Registry, r, c Series) {
	byID := make(map[string]float64, len(c.Records))
	for i := range c.Records {
		byID[c.Records[i].EventID] = c.Records[i].Magnitude
	}
	n := 0
	for i := range r.Records {
		if v, ok := byID[r.Records[i].EventID]; ok {
			reg.MergeMagnitude(r.Records[i].EventID, c.Key.MagType, v)
			n++
		}
	}
	m.log.Info("internal pass",
		zap.Stringer("ref", r.Key), zap.Stringer("cmp", c.Key), zap.Int("merged", n))
}

// ticket is a reference record queued for a pass.  A nil rch marks a
// short circuit to the already confirmed id.
type ticket struct {
	rec     *quake.Record
	matched string
	rch     chan result
}

type result struct {
	n   int // candidates
	out Outcome
}

func (m *Matcher) externalPass(ctx context.Context, reg *Registry, r, c Series) error {
	pool := NewPool(c.Key, c.Records)

	// decisions to short circuit use the registry as of the pass start
	snapshot := map[string]string{}
	for i := range r.Records {
		id := r.Records[i].EventID
		if mid, ok := reg.MatchedID(id); ok {
			if _, ok := pool.Index(mid); ok {
				snapshot[id] = mid
			}
		}
	}

	// prCh keeps tickets in submission order.  it is buffered so a fast
	// worker is not held up behind a slow one.
	prCh := make(chan *ticket, m.opt.Workers*2)
	taskCh := make(chan *ticket)

	// dispatcher.  each searched record gets a one-slot return channel,
	// is handed to a worker, and its ticket is queued for the coordinator.
	go func() {
		defer close(prCh)
		defer close(taskCh)
		seen := map[string]bool{}
		for i := range r.Records {
			rec := &r.Records[i]
			if seen[rec.EventID] {
				continue
			}
			seen[rec.EventID] = true
			tk := &ticket{rec: rec}
			if mid, ok := snapshot[rec.EventID]; ok {
				tk.matched = mid
			} else {
				tk.rch = make(chan result, 1)
				select {
				case taskCh <- tk:
				case <-ctx.Done():
					return
				}
			}
			select {
			case prCh <- tk:
			case <-ctx.Done():
				return
			}
		}
	}()

	// workers are started only as tasks call for them, up to the limit.
	go func() {
		for n := 0; n < m.opt.Workers; n++ {
			tk, ok := <-taskCh
			if !ok {
				return
			}
			go m.work(ctx, pool, tk, taskCh)
		}
	}()

	counts := map[State]int{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tk, ok := <-prCh:
			if !ok {
				// the dispatcher also stops early on cancel
				if err := ctx.Err(); err != nil {
					return err
				}
				m.log.Info("pass finished",
					zap.Stringer("ref", r.Key),
					zap.Stringer("cmp", c.Key),
					zap.Int("matched", counts[Matched]),
					zap.Int("looked_up", counts[LookedUp]),
					zap.Int("exhausted", counts[Exhausted]))
				return nil
			}
			var st State
			if tk.rch == nil {
				st = m.lookUp(reg, pool, tk)
			} else {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case res := <-tk.rch:
					st = m.apply(reg, pool, tk.rec, res)
				}
			}
			counts[st]++
			mcmetrics.ObserveSearch(st.String())
		}
	}
}

// work is a worker goroutine.  the first task is passed in, more are
// received from taskCh until it is closed.
func (m *Matcher) work(ctx context.Context, pool *Pool, tk *ticket, taskCh <-chan *ticket) {
	for ; tk != nil; tk = <-taskCh {
		cands := Candidates(tk.rec, pool, m.opt.MaxDt, m.opt.MaxDist)
		tk.rch <- result{n: len(cands), out: m.v.Verify(ctx, tk.rec, cands, pool)}
	}
}

func (m *Matcher) lookUp(reg *Registry, pool *Pool, tk *ticket) State {
	s := search{}
	s.advance(LookedUp)
	i, _ := pool.Index(tk.matched)
	reg.MergeMagnitude(tk.rec.EventID, pool.Key.MagType, pool.Recs[i].Magnitude)
	return s.state
}

// apply records the result of one search.  Only the coordinator calls it.
func (m *Matcher) apply(reg *Registry, pool *Pool, ref *quake.Record, res result) State {
	s := search{}
	mcmetrics.ObserveCandidates(res.n)
	if res.n == 0 {
		s.advance(Exhausted)
		reg.RecordUnmatched(ref.EventID)
		return s.state
	}
	s.advance(CandidatesFound)
	if !res.out.Matched {
		s.advance(Exhausted)
		reg.RecordUnmatched(ref.EventID)
		return s.state
	}
	s.advance(Matched)
	c := res.out.Candidate
	cr := &pool.Recs[c.Index]
	if reg.RecordMatch(ref.EventID, cr.EventID, res.out.Misfit, pool.Key.MagType, cr.Magnitude) {
		m.log.Warn("reference event matched to more than one event",
			zap.String("event", ref.EventID),
			zap.String("candidate", cr.EventID),
			zap.Stringer("cmp", pool.Key),
			zap.Float64("misfit", res.out.Misfit))
		mcmetrics.ObserveAmbiguity()
	}
	surf := mcgeo.SurfaceDistance(ref.Origin.Latitude, ref.Origin.Longitude,
		cr.Origin.Latitude, cr.Origin.Longitude)
	reg.SetSeparation(ref.EventID, cr.EventID, c.Dt, c.Dist, surf, res.out.Refined)
	mcmetrics.ObserveMatch(c.Dt, c.Dist)
	return s.state
}
