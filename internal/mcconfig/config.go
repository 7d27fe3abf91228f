// Public domain.

// Package mcconfig loads the configuration of a magcompare run.
//
// Values come from code defaults, then an optional YAML file, then
// MAGCOMPARE_* environment variables.  The defaults compare the GeoNet
// catalog with the USGS catalog over 2012 through 2020.
package mcconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/soniakeys/magcompare/internal/mcfetch"
)

// Config is the whole run configuration.
type Config struct {
	Logging   LogConfig       `yaml:"logging"`
	Window    WindowConfig    `yaml:"window"`
	Catalogs  CatalogsConfig  `yaml:"catalogs"`
	Matching  MatchingConfig  `yaml:"matching"`
	Locator   LocatorConfig   `yaml:"locator"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Stages    StagesConfig    `yaml:"stages"`
	Output    OutputConfig    `yaml:"output"`
	Stats     StatsConfig     `yaml:"stats"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level             string `yaml:"level"`
	Encoding          string `yaml:"encoding"` // json or console
	Development       bool   `yaml:"development"`
	DisableCaller     bool   `yaml:"disable_caller"`
	DisableStacktrace bool   `yaml:"disable_stacktrace"`
}

// WindowConfig bounds the events retrieved and analyzed.
type WindowConfig struct {
	Start        time.Time `yaml:"start"`
	End          time.Time `yaml:"end"`
	MinLatitude  float64   `yaml:"min_latitude"`
	MaxLatitude  float64   `yaml:"max_latitude"`
	MinLongitude float64   `yaml:"min_longitude"` // western bound
	MaxLongitude float64   `yaml:"max_longitude"` // eastern bound
	MinMagnitude float64   `yaml:"min_magnitude"`
	MaxMagnitude float64   `yaml:"max_magnitude"`
}

// CatalogsConfig names the two catalogs compared.
type CatalogsConfig struct {
	Reference  CatalogConfig `yaml:"reference"`
	Comparison CatalogConfig `yaml:"comparison"`
}

// Catalog kinds.
const (
	KindFDSN = "fdsn"
	KindISC  = "isc"
)

// CatalogConfig describes one catalog service.
//
// Two catalogs with the same name are one catalog compared with itself.
// It is retrieved once, for the magnitude types of both.
type CatalogConfig struct {
	Name          string   `yaml:"name"`
	Kind          string   `yaml:"kind"`
	Service       string   `yaml:"service"`
	MagTypes      []string `yaml:"magnitude_types"`
	LongitudeWrap bool     `yaml:"longitude_wrap"`

	// CMTURL is a moment tensor solution list, GeoNet_CMT_solutions.csv
	// layout.  When set, the Mw series is built from it instead of from the
	// service's Mw magnitudes, with origins looked up from the service.
	CMTURL string `yaml:"cmt_url"`
}


// MatchingConfig holds the candidate thresholds and relocation acceptance.
type MatchingConfig struct {
	MaxDt        float64 `yaml:"max_dt"`        // s
	MaxDistKm    float64 `yaml:"max_dist_km"`   // km
	RMSThreshold float64 `yaml:"rms_threshold"` // s
	Workers      int     `yaml:"workers"`       // 0 means GOMAXPROCS
}

// LocatorConfig configures the grid search locator and its picks.
type LocatorConfig struct {
	PicksFile     string  `yaml:"picks_file"`
	Vp            float64 `yaml:"vp"`              // m/s
	Vs            float64 `yaml:"vs"`              // m/s
	GridStep      float64 `yaml:"grid_step"`       // m
	GridHalfWidth float64 `yaml:"grid_half_width"` // m
}

// RetrievalConfig controls catalog queries.
type RetrievalConfig struct {
	RetryDelay  time.Duration `yaml:"retry_delay"`
	SplitGrowth int           `yaml:"split_growth"`
	MinWindow   time.Duration `yaml:"min_window"`
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
}

// StagesConfig selects the stages run.  With Retrieve off, matching reads
// the series files of an earlier run.
type StagesConfig struct {
	Retrieve  bool `yaml:"retrieve"`
	Match     bool `yaml:"match"`
	Associate bool `yaml:"associate"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// StatsConfig controls the bootstrap of association fits.
type StatsConfig struct {
	BootstrapSamples int    `yaml:"bootstrap_samples"`
	Repeatable       bool   `yaml:"repeatable"`
	Seed             uint64 `yaml:"seed"`
}

// MetricsConfig enables pushing run metrics.  An empty URL disables it.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// Load reads a configuration file over the defaults and applies
// environment overrides.  An empty path falls back to $MAGCOMPARE_CONFIG,
// and to defaults only if that is empty too.  The result is not validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MAGCOMPARE_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging: LogConfig{Level: "info", Encoding: "console"},
		Window: WindowConfig{
			Start:        time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC),
			End:          time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
			MinLatitude:  -90,
			MaxLatitude:  90,
			MinLongitude: 0,
			MaxLongitude: -0.001,
			MinMagnitude: 3,
			MaxMagnitude: 10,
		},
		Catalogs: CatalogsConfig{
			Reference: CatalogConfig{
				Name:     "GeoNet_catalog",
				Kind:     KindFDSN,
				Service:  "https://service.geonet.org.nz/fdsnws/event/1/",
				MagTypes: []string{"M", "ML", "MLv", "mB", "Mw(mB)", "Mw"},
				CMTURL:   "https://raw.githubusercontent.com/GeoNet/data/master/moment-tensor/GeoNet_CMT_solutions.csv",
			},
			Comparison: CatalogConfig{
				Name:          "USGS_catalog",
				Kind:          KindFDSN,
				Service:       "https://earthquake.usgs.gov/fdsnws/event/1/",
				MagTypes:      []string{"mww"},
				LongitudeWrap: true,
			},
		},
		Matching: MatchingConfig{MaxDt: 100, MaxDistKm: 1000, RMSThreshold: 5},
		Locator: LocatorConfig{
			PicksFile:     "picks.csv",
			Vp:            5800,
			Vs:            3400,
			GridStep:      2000,
			GridHalfWidth: 20000,
		},
		Retrieval: RetrievalConfig{
			RetryDelay:  time.Minute,
			SplitGrowth: 100,
			MinWindow:   time.Hour,
			Timeout:     5 * time.Minute,
			UserAgent:   "magcompare",
		},
		Stages: StagesConfig{Retrieve: true, Match: true, Associate: true},
		Output: OutputConfig{Dir: "."},
		Stats:  StatsConfig{BootstrapSamples: 1000, Seed: 3},
		Metrics: MetricsConfig{
			Job: "magcompare",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MAGCOMPARE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MAGCOMPARE_LOG_ENCODING"); v != "" {
		cfg.Logging.Encoding = v
	}
	if v := os.Getenv("MAGCOMPARE_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("MAGCOMPARE_PICKS_FILE"); v != "" {
		cfg.Locator.PicksFile = v
	}
	if v := os.Getenv("MAGCOMPARE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Matching.Workers = n
		}
	}
	if v := os.Getenv("MAGCOMPARE_RMS_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.RMSThreshold = f
		}
	}
	if v := os.Getenv("MAGCOMPARE_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retrieval.RetryDelay = d
		}
	}
	if v := os.Getenv("MAGCOMPARE_USER_AGENT"); v != "" {
		cfg.Retrieval.UserAgent = v
	}
	if v := os.Getenv("MAGCOMPARE_PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
	if v := os.Getenv("MAGCOMPARE_REPEATABLE"); v != "" {
		cfg.Stats.Repeatable = strings.EqualFold(v, "true") || v == "1"
	}
	// comma separated list of stages to run, for example "match,associate"
	if v := os.Getenv("MAGCOMPARE_STAGES"); v != "" {
		cfg.Stages = StagesConfig{}
		for _, s := range strings.Split(v, ",") {
			switch strings.TrimSpace(strings.ToLower(s)) {
			case "retrieve":
				cfg.Stages.Retrieve = true
			case "match":
				cfg.Stages.Match = true
			case "associate":
				cfg.Stages.Associate = true
			}
		}
	}
}

// Validate reports every inconsistent setting.
func (c *Config) Validate() error {
	var err error
	bad := func(format string, a ...interface{}) {
		err = multierr.Append(err, fmt.Errorf(format, a...))
	}
	if _, lerr := zapcore.ParseLevel(strings.ToLower(c.Logging.Level)); lerr != nil {
		bad("logging.level %q: want debug, info, warn or error", c.Logging.Level)
	}
	switch c.Logging.Encoding {
	case "json", "console":
	default:
		bad("logging.encoding %q: want json or console", c.Logging.Encoding)
	}
	w := &c.Window
	if !w.End.After(w.Start) {
		bad("window: end %s not after start %s", w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	if w.MinLatitude < -90 || w.MaxLatitude > 90 || w.MinLatitude > w.MaxLatitude {
		bad("window: latitude range %g..%g", w.MinLatitude, w.MaxLatitude)
	}
	if w.MinMagnitude > w.MaxMagnitude {
		bad("window: magnitude range %g..%g", w.MinMagnitude, w.MaxMagnitude)
	}
	for _, cc := range []struct {
		key string
		cat *CatalogConfig
	}{
		{"catalogs.reference", &c.Catalogs.Reference},
		{"catalogs.comparison", &c.Catalogs.Comparison},
	} {
		if cc.cat.Name == "" {
			bad("%s.name is empty", cc.key)
		}
		if cc.cat.Kind != KindFDSN && cc.cat.Kind != KindISC {
			bad("%s.kind %q: want fdsn or isc", cc.key, cc.cat.Kind)
		}
		if cc.cat.Kind == KindFDSN && cc.cat.Service == "" {
			bad("%s.service is empty", cc.key)
		}
		if len(cc.cat.MagTypes) == 0 {
			bad("%s.magnitude_types is empty", cc.key)
		}
		for _, t := range cc.cat.MagTypes {
			if t == "" || strings.ContainsAny(t, `/\`) {
				bad("%s: magnitude type %q cannot name a file", cc.key, t)
			}
		}
		if cc.cat.CMTURL != "" {
			if cc.cat.Kind != KindFDSN {
				bad("%s.cmt_url needs an fdsn service for origins", cc.key)
			}
			if !slices.Contains(cc.cat.MagTypes, mcfetch.CMTMagType) {
				bad("%s.cmt_url needs %s among magnitude_types", cc.key, mcfetch.CMTMagType)
			}
		}
	}
	m := &c.Matching
	if m.MaxDt <= 0 || m.MaxDistKm <= 0 || m.RMSThreshold <= 0 {
		bad("matching: thresholds must be positive")
	}
	if m.Workers < 0 {
		bad("matching.workers %d is negative", m.Workers)
	}
	l := &c.Locator
	if c.Stages.Match && l.PicksFile == "" {
		bad("locator.picks_file is required to match")
	}
	if l.Vp <= 0 || l.Vs <= 0 || l.Vs >= l.Vp {
		bad("locator: velocities vp %g vs %g", l.Vp, l.Vs)
	}
	if l.GridStep <= 0 || l.GridHalfWidth < l.GridStep {
		bad("locator: grid step %g half width %g", l.GridStep, l.GridHalfWidth)
	}
	r := &c.Retrieval
	if r.SplitGrowth < 2 {
		bad("retrieval.split_growth %d is less than 2", r.SplitGrowth)
	}
	if r.MinWindow <= 0 || r.RetryDelay < 0 {
		bad("retrieval: min_window %s retry_delay %s", r.MinWindow, r.RetryDelay)
	}
	if c.Output.Dir == "" {
		bad("output.dir is empty")
	}
	if c.Stats.BootstrapSamples < 0 {
		bad("stats.bootstrap_samples %d is negative", c.Stats.BootstrapSamples)
	}
	if c.Metrics.PushgatewayURL != "" && c.Metrics.Job == "" {
		bad("metrics.job is required to push")
	}
	return err
}
