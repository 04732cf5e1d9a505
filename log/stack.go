// log/stack.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package log

import (
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const (
	modulePath    = "github.com/atmofield/atmofield/"
	maxStackDepth = 16
)

type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (f StackFrame) String() string {
	return f.File + ":" + strconv.Itoa(f.Line) + ":" + f.Function
}

// Stack is the chain of calls leading to a log record, innermost first.
type Stack []StackFrame

// LogValue renders the stack as a list of "file:line:function" strings,
// which keeps JSON records compact.
func (s Stack) LogValue() slog.Value {
	frames := make([]string, len(s))
	for i, f := range s {
		frames[i] = f.String()
	}
	return slog.AnyValue(frames)
}

func (s Stack) String() string {
	var b strings.Builder
	for i, f := range s {
		if i > 0 {
			b.WriteString(" <- ")
		}
		b.WriteString(f.String())
	}
	return b.String()
}

// Callstack returns the stack of whoever called into the Logger. Frames
// of the logging code itself are skipped, and the stack ends at main.main,
// the test runner or the goroutine's entry.
func Callstack() Stack {
	var pcs [maxStackDepth + 8]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var s Stack
	for {
		frame, more := frames.Next()
		if frame.Function == "testing.tRunner" || strings.HasPrefix(frame.Function, "runtime.") {
			break
		}
		if len(s) > 0 || !loggingFrame(frame) {
			s = append(s, StackFrame{
				File:     filepath.Base(frame.File),
				Line:     frame.Line,
				Function: strings.TrimPrefix(strings.TrimPrefix(frame.Function, modulePath), "main."),
			})
		}
		if !more || len(s) == maxStackDepth || frame.Function == "main.main" {
			break
		}
	}
	return s
}

func loggingFrame(f runtime.Frame) bool {
	return strings.HasPrefix(f.Function, modulePath+"log.") && !strings.HasSuffix(f.File, "_test.go")
}
