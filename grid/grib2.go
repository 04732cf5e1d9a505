// grid/grib2.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package grid

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/atmofield/atmofield/math"

	"github.com/mmp/squall"
)

// Values above this are GRIB2's "missing" sentinel.
const grib2Missing = 9e20

var ErrNoRecords = errors.New("no matching GRIB2 records")

// GRIB2Layer holds one GRIB2 record's field as scattered points.
type GRIB2Layer struct {
	Level      string // e.g. "500 mb"
	LevelValue float64
	Lon, Lat   []float64
	Values     []float64
}

// ReadGRIB2 returns the records for the given parameter short name
// ("TMP", "UGRD", "VGRD", ...) from a GRIB2 file. The decoder seeks
// between messages, so r is typically an *os.File.
func ReadGRIB2(r io.ReadSeeker, param string) ([]GRIB2Layer, error) {
	records, err := squall.Read(r)
	if err != nil {
		return nil, fmt.Errorf("parsing GRIB2: %w", err)
	}

	var layers []GRIB2Layer
	for _, rec := range records {
		if rec.Parameter.ShortName() != param {
			continue
		}

		l := GRIB2Layer{Level: string(rec.Level), LevelValue: float64(rec.LevelValue)}
		for i := range rec.NumPoints {
			l.Lon = append(l.Lon, float64(rec.Longitudes[i]))
			l.Lat = append(l.Lat, float64(rec.Latitudes[i]))
			l.Values = append(l.Values, float64(rec.Data[i]))
		}
		layers = append(layers, l)
	}

	if len(layers) == 0 {
		return nil, fmt.Errorf("%s: %w", param, ErrNoRecords)
	}
	return layers, nil
}

func isPressureLevel(level string) bool {
	return strings.HasSuffix(level, " mb")
}

// RegridGRIB2 bins scattered layers onto an nlon x nlat dataset with a
// single time slice. Layers are ordered bottom-up: pressure levels by
// decreasing pressure, anything else by increasing level value. Each cell
// gets the mean of the points nearest to it; cells with no points are NaN.
func RegridGRIB2(layers []GRIB2Layer, nlon, nlat int) (*Dataset, error) {
	dims := Dims{Lon: nlon, Lat: nlat, Alt: len(layers), Slices: 1}
	if err := dims.Validate(); err != nil {
		return nil, err
	}

	layers = slices.Clone(layers)
	slices.SortStableFunc(layers, func(a, b GRIB2Layer) int {
		if isPressureLevel(a.Level) && isPressureLevel(b.Level) {
			return cmp.Compare(b.LevelValue, a.LevelValue)
		}
		return cmp.Compare(a.LevelValue, b.LevelValue)
	})

	d := NewDataset(dims)
	sum := make([]float64, nlon*nlat)
	count := make([]int, nlon*nlat)
	for alt, l := range layers {
		clear(sum)
		clear(count)

		n := min(len(l.Values), len(l.Lon), len(l.Lat))
		for i := range n {
			v := l.Values[i]
			if !math.IsFinite(v) || v > grib2Missing || !math.IsFinite(l.Lon[i]) || !math.IsFinite(l.Lat[i]) {
				continue
			}
			c := nearestCell(l.Lon[i], l.Lat[i], nlon, nlat)
			sum[c] += v
			count[c]++
		}

		start := d.index(0, alt, 0, 0)
		for c := range sum {
			v := math.NaN()
			if count[c] > 0 {
				v = sum[c] / float64(count[c])
			}
			d.Values[start+c] = float32(v)
		}
	}
	return d, nil
}

// nearestCell returns the index within a layer of the grid point closest
// to lon, lat, using the same axes as Sampler.
func nearestCell(lon, lat float64, nlon, nlat int) int {
	i := int(math.Floor(math.Mod(lon+180, 360)/360*float64(nlon) + 0.5))
	i = math.WrapIndex(i, nlon)

	j := 0
	if nlat > 1 {
		j = int(math.Floor((90-math.Clamp(lat, -90, 90))/180*float64(nlat-1) + 0.5))
	}
	return i + nlon*j
}
