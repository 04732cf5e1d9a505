// cmd/atmosprobe/main.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// atmosprobe sets up the bodies and modifiers described in a manifest,
// waits for their datasets to load, and prints the atmospheric
// quantities at a point.
//
// Usage: atmosprobe -manifest bodies.json [-body kerbin] [-lon ...] [-lat ...] [-alt ...]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http/httptest"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/atmofield/atmofield/atmos"
	"github.com/atmofield/atmofield/log"
	"github.com/atmofield/atmofield/util"

	"github.com/goforj/godump"
	"github.com/iancoleman/orderedmap"
)

var (
	manifestPath = flag.String("manifest", "", "JSON manifest describing bodies and modifiers")
	bodyName     = flag.String("body", "", "Body to query (default: all)")
	lon          = flag.Float64("lon", 0, "Longitude in degrees")
	lat          = flag.Float64("lat", 0, "Latitude in degrees")
	alt          = flag.Float64("alt", 0, "Altitude in meters")
	utime        = flag.Float64("time", 0, "Universal time in seconds")
	trueAnomaly  = flag.Float64("ta", 0, "True anomaly in degrees")
	ecc          = flag.Float64("ecc", 0, "Eccentricity parameter")
	logLevel     = flag.String("loglevel", "info", "Logging level: debug, info, warn, error")
	logDir       = flag.String("logdir", "", "Log file directory")
	timeout      = flag.Duration("timeout", 2*time.Minute, "Maximum time to wait for modifier initialization")
	nWorkers     = flag.Int("nworkers", 0, "Number of concurrent modifier initializations (default: number of CPUs)")
	dump         = flag.Bool("dump", false, "Dump the manifest and each body's registrations")
	metrics      = flag.Bool("metrics", false, "Print Prometheus metrics after querying")
)

func main() {
	flag.Parse()

	if *manifestPath == "" || flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "usage: atmosprobe -manifest <file> [flags]\nwhere [flags] may be:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	lg := log.New(*logLevel, *logDir)

	f, err := os.Open(*manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	m, err := LoadManifest(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", *manifestPath, err)
		os.Exit(1)
	}

	reg := atmos.NewRegistry(lg)
	var e util.ErrorLogger
	m.Build(reg, filepath.Dir(*manifestPath), &e)
	if e.HaveErrors() {
		e.PrintErrors(lg)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := atmos.NewCoordinator(reg, lg, atmos.CoordinatorOptions{Timeout: *timeout, Concurrency: *nWorkers})
	start := time.Now()
	if err := c.Join(ctx); err != nil {
		// The failed modifiers have been removed; report and carry on.
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	lg.Infof("%d initializations finished in %s", len(c.Tasks()), time.Since(start))

	bodies := reg.Bodies()
	if *bodyName != "" {
		if _, err := reg.Lookup(*bodyName); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		bodies = []string{*bodyName}
	}

	p := atmos.Point{Lon: *lon, Lat: *lat, Alt: *alt, Time: *utime, TrueAnomaly: *trueAnomaly, Eccentricity: *ecc}
	out := orderedmap.New()
	for _, b := range bodies {
		out.Set(b, probe(reg, b, p))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if *dump {
		godump.Dump(m)
		for _, b := range bodies {
			bm, _ := reg.Lookup(b)
			godump.Dump(bm.Counts())
		}
	}

	if *metrics {
		rec := httptest.NewRecorder()
		atmos.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		os.Stdout.Write(rec.Body.Bytes())
	}
}

// probe returns every quantity of the body at p, in a fixed order.
func probe(reg *atmos.Registry, body string, p atmos.Point) *orderedmap.OrderedMap {
	om := orderedmap.New()
	om.Set("point", p.String())

	pressure, _ := reg.Pressure(body, p)
	om.Set("pressure", pressure)
	temperature, _ := reg.Temperature(body, p)
	om.Set("temperature", temperature)
	molarMass, _ := reg.MolarMass(body, p)
	om.Set("molar_mass", molarMass)
	gamma, _ := reg.AdiabaticIndex(body, p)
	om.Set("adiabatic_index", gamma)
	wind, _ := reg.Wind(body, p)
	om.Set("wind", [3]float64(wind))
	choke, _ := reg.ChokeFactor(body, p)
	om.Set("choke_factor", choke)
	unsafe, _ := reg.Unsafe(body, p)
	om.Set("unsafe", unsafe)

	if bm, err := reg.Lookup(body); err == nil {
		om.Set("sun_blend", bm.Body().SunBlend(p))
	}
	return om
}
