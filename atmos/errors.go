// atmos/errors.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package atmos

import (
	"errors"
	"fmt"
)

var (
	ErrSlotTaken      = errors.New("slot already has a provider")
	ErrNoSuchList     = errors.New("quantity has no such modifier list")
	ErrUnknownBody    = errors.New("unknown body")
	ErrNoCapabilities = errors.New("implements no modifier capability")
	ErrNotJoined      = errors.New("initialization did not finish")
)

// ConfigError is returned when a modifier is constructed without a
// required setting (a file path, dimensions, a curve). The modifier
// should not be registered.
type ConfigError struct {
	Modifier string
	Field    string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: missing %q", e.Modifier, e.Field)
	}
	return fmt.Sprintf("%s: %s: %v", e.Modifier, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// InitError records the failure of a modifier's asynchronous
// initialization; the modifier is purged from every body.
type InitError struct {
	Modifier Modifier
	Err      error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%T: initialization failed: %v", e.Modifier, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a panic in modifier code.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
