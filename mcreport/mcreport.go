// Public domain.

package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/soniakeys/magcompare/internal/mcmatch"
)

const parentImport = "github.com/soniakeys/magcompare"
const versionString = "mcreport version 0.1"
const copyrightString = "Public domain."

func main() {
	flag.Usage = func() {
		os.Stderr.WriteString(
			"Usage: mcreport [options] [match-file]\n")
		flag.PrintDefaults()
		os.Stderr.WriteString(`
For full documentation:
   go doc ` + parentImport + `/mcreport
`)
	}
	threshold := flag.Float64("t", 0, "misfit threshold, 0 to count every confirmed match")
	vers := flag.Bool("v", false, "display version and copyright")
	flag.Parse()
	if *vers {
		fmt.Println(versionString)
		fmt.Println(copyrightString)
		os.Exit(0)
	}
	fn := mcmatch.MatchesFile
	switch flag.NArg() {
	case 0:
	case 1:
		fn = flag.Arg(0)
	default:
		flag.Usage()
		os.Exit(1)
	}
	f, err := os.Open(fn)
	if err != nil {
		log.Fatalln(err)
	}
	t, err := mcmatch.ReadMatches(f)
	f.Close()
	if err != nil {
		log.Fatalln(fn+":", err)
	}
	fmt.Println("\nMatch file:", fn)
	summarize(t, *threshold).write(os.Stdout)
}

type typeCount struct {
	magType     string
	with, found int
}

type summary struct {
	threshold       float64
	events, matched int
	types           []typeCount
	meanMisfit      float64
	maxMisfit       float64
}

func summarize(t *mcmatch.Table, threshold float64) *summary {
	s := &summary{threshold: threshold, events: len(t.Rows)}
	s.types = make([]typeCount, len(t.Types))
	var misfits []float64
	for i := range t.Rows {
		m := &t.Rows[i]
		ok := m.Matched() && (threshold <= 0 || m.Misfit <= threshold)
		if ok {
			s.matched++
			misfits = append(misfits, m.Misfit)
		}
		for j, typ := range t.Types {
			if _, has := m.Magnitudes[typ]; has {
				s.types[j].with++
				if ok {
					s.types[j].found++
				}
			}
		}
	}
	for j, typ := range t.Types {
		s.types[j].magType = typ
	}
	s.meanMisfit = math.NaN()
	s.maxMisfit = math.NaN()
	if len(misfits) > 0 {
		s.meanMisfit = stat.Mean(misfits, nil)
		s.maxMisfit = misfits[0]
		for _, x := range misfits[1:] {
			s.maxMisfit = math.Max(s.maxMisfit, x)
		}
	}
	return s
}

func (s *summary) write(w io.Writer) {
	if s.threshold > 0 {
		fmt.Fprintln(w, "Misfit threshold:  ", strconv.FormatFloat(s.threshold, 'g', -1, 64))
	}
	fmt.Fprintln(w, "Reference events:  ", s.events)
	fmt.Fprintln(w, "Matched:           ", s.matched)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "type        events   matched")
	fmt.Fprintln(w, strings.Repeat("-", 28))
	for _, tc := range s.types {
		fmt.Fprintf(w, "%-10s %7d   %7d\n", tc.magType, tc.with, tc.found)
	}
	fmt.Fprintln(w)
	rate := 0.
	if s.events > 0 {
		rate = 100 * float64(s.matched) / float64(s.events)
	}
	fmt.Fprintf(w, "Match rate:         %.1f%%\n", rate)
	if s.matched > 0 {
		fmt.Fprintf(w, "Misfit mean, max:   %.3f, %.3f\n", s.meanMisfit, s.maxMisfit)
	}
}
