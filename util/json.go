// util/json.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

///////////////////////////////////////////////////////////////////////////
// JSON

// DuplicateJSONKey is an object key that appears more than once in the
// same object.
type DuplicateJSONKey struct {
	Path string // dotted path to the enclosing object; empty at the top level
	Key  string
}

func (d DuplicateJSONKey) String() string {
	if d.Path == "" {
		return fmt.Sprintf("%q: duplicate key", d.Key)
	}
	return fmt.Sprintf("%s: %q: duplicate key", d.Path, d.Key)
}

// FindDuplicateJSONKeys returns the duplicate object keys in data in the
// order they appear. Array elements don't contribute to the path. Scanning
// stops at the first syntax error.
func FindDuplicateJSONKeys(data []byte) []DuplicateJSONKey {
	dec := json.NewDecoder(bytes.NewReader(data))
	var dups []DuplicateJSONKey

	var walk func(path []string) bool
	walk = func(path []string) bool {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		delim, ok := tok.(json.Delim)
		if !ok {
			return true
		}

		switch delim {
		case '{':
			seen := make(map[string]bool)
			for dec.More() {
				tok, err := dec.Token()
				if err != nil {
					return false
				}
				key, ok := tok.(string)
				if !ok {
					return false
				}
				if seen[key] {
					dups = append(dups, DuplicateJSONKey{Path: strings.Join(path, "."), Key: key})
				}
				seen[key] = true
				if !walk(append(path, key)) {
					return false
				}
			}
		case '[':
			for dec.More() {
				if !walk(path) {
					return false
				}
			}
		}

		// Closing delimiter.
		_, err = dec.Token()
		return err == nil
	}
	walk(nil)

	return dups
}

// CheckJSONKeys reports each duplicate object key in contents to e.
// encoding/json silently keeps the last of them.
func CheckJSONKeys(contents []byte, e *ErrorLogger) {
	for _, d := range FindDuplicateJSONKeys(contents) {
		e.ErrorString("%s", d)
	}
}

// DecodeJSON decodes b into out, rejecting object keys that don't match a
// field of the destination. Syntax and type errors are reported with the
// line and column where they were found.
func DecodeJSON[T any](b []byte, out *T) error {
	d := json.NewDecoder(bytes.NewReader(b))
	d.DisallowUnknownFields()
	err := d.Decode(out)
	if err == nil {
		return nil
	}

	position := func(offset int64) (line, col int) {
		line, col = 1, 1
		for i := 0; i < int(offset) && i < len(b); i++ {
			if b[i] == '\n' {
				line, col = line+1, 1
			} else {
				col++
			}
		}
		return
	}

	var serr *json.SyntaxError
	var terr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &serr):
		line, col := position(serr.Offset)
		return fmt.Errorf("line %d, column %d: %w", line, col, err)
	case errors.As(err, &terr):
		line, col := position(terr.Offset)
		return fmt.Errorf("line %d, column %d: %s value for %q is not a %s: %w",
			line, col, terr.Value, terr.Field, terr.Type, ErrJSONType)
	default:
		return err
	}
}

var ErrJSONType = errors.New("invalid JSON value type")
