// cmd/gridpack/main.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// gridpack converts raw binary gridded datasets to the packed
// (msgpack + zstd) format, which carries its own dimensions and loads
// faster. With -grib2, a single parameter of a GRIB2 file is regridded
// onto a -lon x -lat grid with one altitude layer per GRIB2 level.
//
// Usage: gridpack -lon 360 -lat 181 -alt 30 -slices 8 [-offset n] [-invert] <in.bin> [out.msgpack.zst]
//
//	gridpack -lon 360 -lat 181 -grib2 TMP <in.grib2> [out.msgpack.zst]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/atmofield/atmofield/grid"
	"github.com/atmofield/atmofield/math"
)

var (
	nLon    = flag.Int("lon", 0, "Number of longitude columns")
	nLat    = flag.Int("lat", 0, "Number of latitude rows")
	nAlt    = flag.Int("alt", 1, "Number of altitude layers")
	nSlices = flag.Int("slices", 1, "Number of time slices")
	offset  = flag.Int64("offset", 0, "Number of leading bytes to skip")
	invert  = flag.Bool("invert", false, "Reverse the order of the altitude layers")
	check   = flag.Bool("check", false, "Report value ranges per altitude layer")
	grib2   = flag.String("grib2", "", "Read the given parameter (e.g. TMP, UGRD) from a GRIB2 file")
)

func main() {
	flag.Parse()

	usage := func() {
		fmt.Fprintf(os.Stderr, "usage: gridpack [flags] <in.bin> [out%s]\nwhere [flags] may be:\n", grid.PackedSuffix)
		flag.PrintDefaults()
		os.Exit(1)
	}
	if flag.NArg() < 1 || flag.NArg() > 2 {
		usage()
	}

	in := flag.Arg(0)
	out := strings.TrimSuffix(strings.TrimSuffix(in, ".bin"), ".grib2") + grid.PackedSuffix
	if flag.NArg() == 2 {
		out = flag.Arg(1)
	}
	if !strings.HasSuffix(out, grid.PackedSuffix) {
		fmt.Fprintf(os.Stderr, "%s: output must have the suffix %s\n", out, grid.PackedSuffix)
		os.Exit(1)
	}

	var ds *grid.Dataset
	var err error
	if *grib2 != "" {
		ds, err = loadGRIB2(in, *grib2, *nLon, *nLat)
	} else {
		dims := grid.Dims{Lon: *nLon, Lat: *nLat, Alt: *nAlt, Slices: *nSlices}
		ds, err = grid.LoadFile(in, dims, grid.LoadOptions{Offset: *offset, InvertAltitude: *invert})
	}
	if err == nil {
		err = pack(ds, out)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func loadGRIB2(path, param string, nlon, nlat int) (*grid.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	layers, err := grid.ReadGRIB2(f, param)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, l := range layers {
		fmt.Printf("%s %s: %d points\n", param, l.Level, len(l.Values))
	}
	return grid.RegridGRIB2(layers, nlon, nlat)
}

func pack(ds *grid.Dataset, out string) error {
	if *check {
		for _, r := range layerRanges(ds) {
			fmt.Println(r)
		}
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := ds.WritePacked(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if fi, err := os.Stat(out); err == nil {
		fmt.Printf("%s: %s, %d MB -> %d MB\n", out, ds.Dims, ds.SizeBytes()/(1024*1024), fi.Size()/(1024*1024))
	}
	return nil
}

// layerRanges returns a line describing the range of values in each
// altitude layer across all slices.
func layerRanges(ds *grid.Dataset) []string {
	d := ds.Dims
	var lines []string
	for alt := range d.Alt {
		lo, hi, nonFinite := float32(0), float32(0), 0
		first := true
		for s := range d.Slices {
			for lat := range d.Lat {
				for lon := range d.Lon {
					v := ds.At(s, alt, lat, lon)
					if !math.IsFinite(float64(v)) {
						nonFinite++
						continue
					}
					if first {
						lo, hi, first = v, v, false
					}
					lo, hi = min(lo, v), max(hi, v)
				}
			}
		}
		line := fmt.Sprintf("layer %3d: [%g, %g]", alt, lo, hi)
		if nonFinite > 0 {
			line += fmt.Sprintf(" %d non-finite", nonFinite)
		}
		lines = append(lines, line)
	}
	return lines
}
