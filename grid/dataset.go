// grid/dataset.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package grid

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atmofield/atmofield/util"
)

// PackedSuffix is the file name suffix of datasets stored msgpack-encoded
// and zstd-compressed; anything else is read as raw binary.
const PackedSuffix = ".msgpack.zst"

// Dims gives the size of a dataset along each of its axes.
type Dims struct {
	Lon    int `json:"lon" msgpack:"lon"`
	Lat    int `json:"lat" msgpack:"lat"`
	Alt    int `json:"alt" msgpack:"alt"`
	Slices int `json:"slices" msgpack:"slices"`
}

func (d Dims) Validate() error {
	if d.Lon < 1 || d.Lat < 1 || d.Alt < 1 || d.Slices < 1 {
		return fmt.Errorf("invalid grid dimensions %s: all must be >= 1", d)
	}
	return nil
}

// SliceLen returns the number of values in a single time slice.
func (d Dims) SliceLen() int {
	return d.Lon * d.Lat * d.Alt
}

// Len returns the number of values in the entire dataset.
func (d Dims) Len() int {
	return d.SliceLen() * d.Slices
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d (lon x lat x alt) x %d slices", d.Lon, d.Lat, d.Alt, d.Slices)
}

// Dataset is an ordered sequence of time slices, each a dense
// [altitude][latitude][longitude] array. All slices share the same
// dimensions. Datasets are read-only once loaded.
type Dataset struct {
	Dims   Dims      `msgpack:"dims"`
	Values []float32 `msgpack:"values"`
}

func NewDataset(dims Dims) *Dataset {
	return &Dataset{Dims: dims, Values: make([]float32, dims.Len())}
}

func (d *Dataset) index(slice, alt, lat, lon int) int {
	return lon + d.Dims.Lon*(lat+d.Dims.Lat*(alt+d.Dims.Alt*slice))
}

// At returns the value stored at the given (in-range) indices.
func (d *Dataset) At(slice, alt, lat, lon int) float32 {
	return d.Values[d.index(slice, alt, lat, lon)]
}

// Set is only meant for building datasets before they are shared.
func (d *Dataset) Set(slice, alt, lat, lon int, v float32) {
	d.Values[d.index(slice, alt, lat, lon)] = v
}

// SizeBytes returns the in-memory size of the dataset's values.
func (d *Dataset) SizeBytes() int64 {
	return int64(len(d.Values)) * 4
}

// FormatError is returned when a dataset's source does not hold the data
// its declared dimensions require.
type FormatError struct {
	Name string
	Dims Dims
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("grid %s (%s): %v", e.Name, e.Dims, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

type LoadOptions struct {
	// Offset is the number of leading bytes to skip.
	Offset int64
	// InvertAltitude reverses the order of the altitude layers, for
	// sources stored top-down.
	InvertAltitude bool
}

// ReadBinary reads a header-less dataset: Slices blocks, each of Alt
// consecutive row-major Lat x Lon matrices of little-endian IEEE-754
// float32s.
func ReadBinary(r io.Reader, dims Dims, opts LoadOptions) (*Dataset, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}

	fail := func(err error) error {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: %v", io.ErrUnexpectedEOF, err)
		}
		return &FormatError{Dims: dims, Err: err}
	}

	if opts.Offset > 0 {
		if n, err := io.CopyN(io.Discard, r, opts.Offset); err != nil {
			return nil, fail(fmt.Errorf("skipping %d byte offset: got %d: %w", opts.Offset, n, err))
		}
	}

	d := NewDataset(dims)
	layerLen := dims.Lon * dims.Lat
	for s := range dims.Slices {
		for l := range dims.Alt {
			dl := util.Select(opts.InvertAltitude, dims.Alt-1-l, l)
			start := d.index(s, dl, 0, 0)
			if err := binary.Read(r, binary.LittleEndian, d.Values[start:start+layerLen]); err != nil {
				return nil, fail(fmt.Errorf("slice %d layer %d: %w", s, l, err))
			}
		}
	}
	return d, nil
}

// LoadFile reads a raw binary dataset from the given file.
func LoadFile(path string, dims Dims, opts LoadOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := ReadBinary(bufio.NewReaderSize(f, 1<<20), dims, opts)
	var fe *FormatError
	if errors.As(err, &fe) {
		fe.Name = path
	}
	return d, err
}

// WritePacked writes the dataset msgpack-encoded and zstd-compressed.
func (d *Dataset) WritePacked(w io.Writer) error {
	return util.EncodePacked(w, d)
}

// ReadPacked reads a dataset written by WritePacked.
func ReadPacked(r io.Reader) (*Dataset, error) {
	var d Dataset
	if err := util.DecodePacked(r, &d); err != nil {
		return nil, err
	}
	if err := d.Dims.Validate(); err != nil {
		return nil, &FormatError{Dims: d.Dims, Err: err}
	}
	if len(d.Values) != d.Dims.Len() {
		return nil, &FormatError{Dims: d.Dims,
			Err: fmt.Errorf("have %d values, expected %d", len(d.Values), d.Dims.Len())}
	}
	return &d, nil
}

// Open loads a dataset, choosing the packed or raw binary format based on
// the file name. For packed files, dims may be left zero; otherwise they
// must match what is stored.
func Open(path string, dims Dims, opts LoadOptions) (*Dataset, error) {
	if !strings.HasSuffix(path, PackedSuffix) {
		return LoadFile(path, dims, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := ReadPacked(f)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Name = path
		}
		return nil, err
	}
	if dims != (Dims{}) && dims != d.Dims {
		return nil, &FormatError{Name: path, Dims: dims, Err: fmt.Errorf("file holds %s", d.Dims)}
	}
	return d, nil
}
