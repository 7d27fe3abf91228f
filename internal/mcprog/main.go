// Public domain.

// Package mcprog is the magcompare command.  It is a package so that the
// command can be tested and so that main stays a one-liner.
package mcprog

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/soniakeys/exit"
	"go.uber.org/zap"

	"github.com/soniakeys/magcompare/internal/mcconfig"
	"github.com/soniakeys/magcompare/internal/mclog"
	"github.com/soniakeys/magcompare/internal/mcmetrics"
)

const versionString = "magcompare version 0.1 Go source."
const copyrightString = "Public domain."

func Main() {
	defer exit.Handler()

	cl := parseCommandLine()
	if cl.v {
		fmt.Println(versionString)
		fmt.Println(copyrightString)
		return
	}
	cfg, err := mcconfig.Load(cl.config)
	if err != nil {
		exit.Log(err)
	}
	if err := cfg.Validate(); err != nil {
		exit.Log(err)
	}
	log, err := mclog.New(cfg.Logging)
	if err != nil {
		exit.Log(err)
	}
	defer log.Sync()

	runID := uuid.NewString()
	log = log.With(zap.String("run", runID))
	reg := prometheus.NewRegistry()
	if err := mcmetrics.Register(reg); err != nil {
		exit.Log(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	err = Run(ctx, cfg, log)
	log.Info("run finished", zap.Duration("elapsed", time.Since(start)), zap.Error(err))

	if url := cfg.Metrics.PushgatewayURL; url != "" {
		pctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if perr := mcmetrics.Push(pctx, url, cfg.Metrics.Job, runID, reg); perr != nil {
			log.Warn("metrics push failed", zap.String("url", url), zap.Error(perr))
		}
		cancel()
	}
	if err != nil {
		exit.Log(err)
	}
}

type commandLine struct {
	config string
	v      bool
}

func parseCommandLine() *commandLine {
	var cl commandLine
	dh := flag.Bool("h", false, "")
	flag.BoolVar(&cl.v, "v", false, "")
	flag.StringVar(&cl.config, "c", "", "")
	flag.Usage = func() {
		os.Stderr.WriteString(`
Usage: magcompare [options]      retrieve, match and associate catalogs
       magcompare -h             display help
       magcompare -v             display version and copyright

Options:
       -c <config-file>          YAML configuration, default $MAGCOMPARE_CONFIG

Stages and all other settings are taken from the configuration file and
MAGCOMPARE_* environment variables.  For full documentation:
       go doc github.com/soniakeys/magcompare
`)
	}
	flag.Parse()
	switch {
	case *dh:
		flag.Usage()
		os.Exit(0)
	case flag.NArg() != 0:
		flag.Usage()
		os.Exit(1)
	}
	return &cl
}
