// Public domain.

package mcprog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/zap"

	"github.com/soniakeys/magcompare/internal/mcconfig"
	"github.com/soniakeys/magcompare/internal/mcfetch"
	"github.com/soniakeys/magcompare/internal/mcloc"
	"github.com/soniakeys/magcompare/internal/mcmatch"
	"github.com/soniakeys/magcompare/internal/mcmetrics"
	"github.com/soniakeys/magcompare/internal/mcseries"
	"github.com/soniakeys/magcompare/internal/mcstats"
	"github.com/soniakeys/magcompare/internal/quake"
)

// Run runs the configured stages in order: retrieve, match, associate.
// Each stage reads what the one before it wrote to the output directory,
// so a run can resume at any stage.
func Run(ctx context.Context, cfg *mcconfig.Config, log *zap.Logger) error {
	store := &mcseries.Store{Dir: cfg.Output.Dir}
	if cfg.Stages.Retrieve {
		for _, cat := range catalogs(cfg.Catalogs) {
			if err := retrieve(ctx, cfg, cat, store, log); err != nil {
				return fmt.Errorf("retrieve %s: %w", cat.Name, err)
			}
		}
	}
	var table *mcmatch.Table
	if cfg.Stages.Match {
		var err error
		if table, err = match(ctx, cfg, store, log); err != nil {
			return fmt.Errorf("match: %w", err)
		}
	}
	if cfg.Stages.Associate {
		if err := associate(cfg, table, store, log); err != nil {
			return fmt.Errorf("associate: %w", err)
		}
	}
	return nil
}

// catalogs lists the distinct catalogs of c.  A catalog compared with
// itself is listed once with the magnitude types of both sides.
func catalogs(c mcconfig.CatalogsConfig) []mcconfig.CatalogConfig {
	ref, cmp := c.Reference, c.Comparison
	if ref.Name != cmp.Name {
		return []mcconfig.CatalogConfig{ref, cmp}
	}
	types := append([]string{}, ref.MagTypes...)
	for _, t := range cmp.MagTypes {
		if !slices.Contains(types, t) {
			types = append(types, t)
		}
	}
	ref.MagTypes = types
	if ref.CMTURL == "" {
		ref.CMTURL = cmp.CMTURL
	}
	return []mcconfig.CatalogConfig{ref}
}

func keys(cat mcconfig.CatalogConfig) []quake.SeriesKey {
	ks := make([]quake.SeriesKey, len(cat.MagTypes))
	for i, t := range cat.MagTypes {
		ks[i] = quake.SeriesKey{Catalog: cat.Name, MagType: t}
	}
	return ks
}

func newFetcher(cat mcconfig.CatalogConfig, r mcconfig.RetrievalConfig) mcfetch.Fetcher {
	client := mcfetch.NewHTTPClient(r.Timeout)
	if cat.Kind == mcconfig.KindISC {
		return &mcfetch.ISCClient{Service: cat.Service, Client: client, UserAgent: r.UserAgent}
	}
	return newFDSN(cat, r)
}

func newFDSN(cat mcconfig.CatalogConfig, r mcconfig.RetrievalConfig) *mcfetch.FDSNClient {
	return &mcfetch.FDSNClient{
		Service:       cat.Service,
		LongitudeWrap: cat.LongitudeWrap,
		Client:        mcfetch.NewHTTPClient(r.Timeout),
		UserAgent:     r.UserAgent,
	}
}

// retrieve writes the series of cat.  With a moment tensor list the Mw
// series comes from the list and the rest from the catalog service.
func retrieve(ctx context.Context, cfg *mcconfig.Config, cat mcconfig.CatalogConfig, store *mcseries.Store, log *zap.Logger) error {
	if err := store.Reset(keys(cat)...); err != nil {
		return err
	}
	if cat.CMTURL == "" {
		return fetchSeries(ctx, cfg, cat.Name, cat.MagTypes, newFetcher(cat, cfg.Retrieval), store, log)
	}
	var types []string
	for _, t := range cat.MagTypes {
		if t != mcfetch.CMTMagType {
			types = append(types, t)
		}
	}
	fc := newFDSN(cat, cfg.Retrieval)
	if len(types) > 0 {
		if err := fetchSeries(ctx, cfg, cat.Name, types, fc, store, log); err != nil {
			return err
		}
	}
	cmt := &mcfetch.CMTSource{
		URL:       cat.CMTURL,
		Origins:   fc,
		Client:    mcfetch.NewHTTPClient(cfg.Retrieval.Timeout),
		UserAgent: cfg.Retrieval.UserAgent,
		Log:       log,
	}
	return fetchSeries(ctx, cfg, cat.Name, []string{mcfetch.CMTMagType}, cmt, store, log)
}

// fetchSeries appends the magnitudes of types from f to the series of
// catalog name.
func fetchSeries(ctx context.Context, cfg *mcconfig.Config, name string, types []string, f mcfetch.Fetcher, store *mcseries.Store, log *zap.Logger) error {
	w := &cfg.Window
	q := mcfetch.Query{
		Start:        w.Start,
		End:          w.End,
		MinLatitude:  w.MinLatitude,
		MaxLatitude:  w.MaxLatitude,
		MinLongitude: w.MinLongitude,
		MaxLongitude: w.MaxLongitude,
		MinMagnitude: w.MinMagnitude,
		MaxMagnitude: w.MaxMagnitude,
	}
	s := &mcfetch.Splitter{
		Fetcher:   f,
		Catalog:   name,
		Delay:     cfg.Retrieval.RetryDelay,
		Growth:    cfg.Retrieval.SplitGrowth,
		MinWindow: cfg.Retrieval.MinWindow,
		Log:       log,
	}
	log.Info("retrieving catalog", zap.String("catalog", name), zap.Strings("types", types))
	totals := map[string]int{}
	events := 0
	err := s.Fetch(ctx, q, func(evs []quake.Event) error {
		events += len(evs)
		counts, err := store.AppendEvents(name, types, evs)
		for t, n := range counts {
			totals[t] += n
			mcmetrics.ObserveExtracted(name, t, n)
		}
		return err
	})
	if err != nil {
		return err
	}
	for _, t := range types {
		if totals[t] == 0 {
			log.Info("no records of magnitude type", zap.String("catalog", name), zap.String("type", t))
			continue
		}
		log.Info("series written", zap.String("catalog", name), zap.String("type", t), zap.Int("records", totals[t]))
	}
	log.Info("catalog retrieved", zap.String("catalog", name), zap.Int("events", events))
	return nil
}

func loadSeries(cfg *mcconfig.Config, cat mcconfig.CatalogConfig, store *mcseries.Store) ([]mcmatch.Series, error) {
	var ss []mcmatch.Series
	for _, k := range keys(cat) {
		recs, err := store.Load(k, cfg.Window.Start, cfg.Window.End)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("series %s not retrieved: %w", k, err)
			}
			return nil, err
		}
		ss = append(ss, mcmatch.Series{Key: k, Records: recs})
	}
	return ss, nil
}

func match(ctx context.Context, cfg *mcconfig.Config, store *mcseries.Store, log *zap.Logger) (*mcmatch.Table, error) {
	ref, err := loadSeries(cfg, cfg.Catalogs.Reference, store)
	if err != nil {
		return nil, err
	}
	cmp, err := loadSeries(cfg, cfg.Catalogs.Comparison, store)
	if err != nil {
		return nil, err
	}
	picks, err := mcloc.LoadPickFile(cfg.Locator.PicksFile)
	if err != nil {
		return nil, err
	}
	log.Info("picks loaded", zap.String("file", cfg.Locator.PicksFile), zap.Int("events", picks.Len()))

	l := &cfg.Locator
	v := &mcmatch.Verifier{
		Locator:      &mcloc.GridLocator{Vp: l.Vp, Vs: l.Vs, Step: l.GridStep, HalfWidth: l.GridHalfWidth},
		Picks:        picks,
		RMSThreshold: cfg.Matching.RMSThreshold,
		Log:          log,
	}
	m := mcmatch.New(mcmatch.Options{
		MaxDt:   cfg.Matching.MaxDt,
		MaxDist: cfg.Matching.MaxDistKm,
		Workers: cfg.Matching.Workers,
	}, v, log)
	reg, err := m.Run(ctx, ref, cmp)
	if err != nil {
		return nil, err
	}
	if err := writeFile(cfg.Output.Dir, mcmatch.MatchesFile, reg.Write); err != nil {
		return nil, err
	}
	if err := writeFile(cfg.Output.Dir, mcmatch.DiagnosticsFile, reg.WriteDiagnostics); err != nil {
		return nil, err
	}
	t := reg.Table()
	matched := 0
	for i := range t.Rows {
		if t.Rows[i].Matched() {
			matched++
		}
	}
	log.Info("matching finished", zap.Int("events", len(t.Rows)), zap.Int("matched", matched))
	return t, nil
}

func associate(cfg *mcconfig.Config, t *mcmatch.Table, store *mcseries.Store, log *zap.Logger) error {
	if t == nil {
		f, err := os.Open(filepath.Join(cfg.Output.Dir, mcmatch.MatchesFile))
		if err != nil {
			return err
		}
		t, err = mcmatch.ReadMatches(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", mcmatch.MatchesFile, err)
		}
	}
	pairs := mcstats.Associate(t,
		cfg.Catalogs.Reference.MagTypes,
		cfg.Catalogs.Comparison.MagTypes,
		mcstats.Options{
			Samples:    cfg.Stats.BootstrapSamples,
			Repeatable: cfg.Stats.Repeatable,
			Seed:       cfg.Stats.Seed,
		}, log)
	err := writeFile(cfg.Output.Dir, mcstats.AssociationsFile, func(w io.Writer) error {
		return mcstats.WriteAssociations(w, pairs)
	})
	if err != nil {
		return err
	}
	err = writeFile(cfg.Output.Dir, mcstats.BinsFile, func(w io.Writer) error {
		return mcstats.WriteBins(w, pairs)
	})
	if err != nil {
		return err
	}

	// frequency-magnitude tables of every series on hand
	for _, cat := range catalogs(cfg.Catalogs) {
		for _, k := range keys(cat) {
			recs, err := store.Load(k, cfg.Window.Start, cfg.Window.End)
			if errors.Is(err, fs.ErrNotExist) {
				log.Warn("no series for frequency table", zap.Stringer("series", k))
				continue
			}
			if err != nil {
				return err
			}
			fb := mcstats.Frequency(recs)
			err = writeFile(cfg.Output.Dir, mcstats.FrequencyFile(k.Catalog, k.MagType), func(w io.Writer) error {
				return mcstats.WriteFrequency(w, fb)
			})
			if err != nil {
				return err
			}
		}
	}
	log.Info("association finished", zap.Int("pairs", len(pairs)))
	return nil
}

// writeFile creates dir/name and writes it with write.
func writeFile(dir, name string, write func(io.Writer) error) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	fn := filepath.Join(dir, name)
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	return nil
}
