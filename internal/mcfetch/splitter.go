// Public domain.

package mcfetch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/soniakeys/magcompare/internal/mcmetrics"
	"github.com/soniakeys/magcompare/internal/quake"
)

// Splitter retrieves a large query as a sequence of smaller ones.
//
// A round splits the window into factor parts, starting with one.  If the
// first part of a round fails, Splitter waits Delay, multiplies factor by
// Growth and starts a new round.  If a later part fails it waits and
// retries that part as two halves, each retried the same way, until a
// half would be shorter than MinWindow.  A window that cannot be halved
// is retried as is.  Retries are unbounded; only ctx ends them.
type Splitter struct {
	Fetcher   Fetcher
	Catalog   string // for logs and metrics
	Delay     time.Duration
	Growth    int
	MinWindow time.Duration
	Log       *zap.Logger
}

// Fetch retrieves all events of q, handing each non-empty page to sink in
// time order.  An error from sink stops retrieval and is returned.
func (s *Splitter) Fetch(ctx context.Context, q Query, sink func([]quake.Event) error) error {
	log := s.log()
	factor := 1
round:
	for {
		for i, p := range q.Split(factor) {
			evs, err := s.get(ctx, p)
			if err == nil {
				if err := s.send(evs, sink); err != nil {
					return err
				}
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if i == 0 {
				next := s.grow(q, factor)
				log.Warn("first query of round failed, splitting window further",
					zap.String("catalog", s.Catalog),
					zap.Time("start", p.Start),
					zap.Time("end", p.End),
					zap.Int("parts", next),
					zap.Error(err))
				if err := s.wait(ctx); err != nil {
					return err
				}
				factor = next
				continue round
			}
			log.Warn("query failed, retrying in halves",
				zap.String("catalog", s.Catalog),
				zap.Time("start", p.Start),
				zap.Time("end", p.End),
				zap.Error(err))
			if err := s.wait(ctx); err != nil {
				return err
			}
			if err := s.halves(ctx, p, sink); err != nil {
				return err
			}
		}
		return nil
	}
}

func (s *Splitter) halves(ctx context.Context, p Query, sink func([]quake.Event) error) error {
	parts := []Query{p}
	if p.End.Sub(p.Start) >= 2*s.minWindow() {
		parts = p.Split(2)
	}
	for _, h := range parts {
		for {
			evs, err := s.get(ctx, h)
			if err == nil {
				if err := s.send(evs, sink); err != nil {
					return err
				}
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log().Warn("query failed",
				zap.String("catalog", s.Catalog),
				zap.Time("start", h.Start),
				zap.Time("end", h.End),
				zap.Error(err))
			if err := s.wait(ctx); err != nil {
				return err
			}
			if len(parts) > 1 {
				if err := s.halves(ctx, h, sink); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

// get runs one query.  ErrNoEvents is an empty page, not an error.
func (s *Splitter) get(ctx context.Context, q Query) ([]quake.Event, error) {
	evs, err := s.Fetcher.Fetch(ctx, q)
	switch {
	case errors.Is(err, ErrNoEvents):
		mcmetrics.ObserveFetch(s.Catalog, mcmetrics.FetchEmpty)
		return nil, nil
	case err != nil:
		mcmetrics.ObserveFetch(s.Catalog, mcmetrics.FetchFailed)
		return nil, err
	}
	mcmetrics.ObserveFetch(s.Catalog, mcmetrics.FetchOK)
	return evs, nil
}

func (s *Splitter) send(evs []quake.Event, sink func([]quake.Event) error) error {
	if len(evs) == 0 {
		return nil
	}
	s.log().Info("page retrieved", zap.String("catalog", s.Catalog), zap.Int("events", len(evs)))
	return sink(evs)
}

// grow returns the next factor, capped so parts are not shorter than
// MinWindow.
func (s *Splitter) grow(q Query, factor int) int {
	g := s.Growth
	if g < 2 {
		g = 2
	}
	next := factor * g
	if limit := int(q.End.Sub(q.Start) / s.minWindow()); next > limit {
		next = limit
	}
	if next < 1 {
		next = 1
	}
	return next
}

func (s *Splitter) minWindow() time.Duration {
	if s.MinWindow <= 0 {
		return time.Second
	}
	return s.MinWindow
}

func (s *Splitter) wait(ctx context.Context) error {
	select {
	case <-time.After(s.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Splitter) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
