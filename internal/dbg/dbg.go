// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

// Package dbg provides the leveled trace logger shared by every
// controller-facing package. It mirrors the original driver's
// warn/info/trace/trace2 levels.
package dbg

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/platinasystems/log"
)

type Level int

const (
	Warn Level = iota
	Info
	Trace
	Trace2
)

var names = [...]string{"warn", "info", "trace", "trace2"}

func (l Level) String() string {
	if int(l) < len(names) {
		return names[l]
	}
	return "unknown"
}

var colors = map[Level]string{
	Warn:   "\033[31m",
	Info:   "\033[0m",
	Trace:  "\033[36m",
	Trace2: "\033[90m",
}

const reset = "\033[0m"

// Logger is a per-controller leveled logger. Level is the maximum level
// that will be emitted; the default zero value only emits Warn.
type Logger struct {
	Level  Level
	Prefix string

	colorize bool
}

func New(prefix string) *Logger {
	return &Logger{
		Prefix:   prefix,
		colorize: isatty.IsTerminal(os.Stderr.Fd()),
	}
}

func (l *Logger) Printf(level Level, format string, args ...interface{}) {
	if l == nil || level > l.Level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.colorize {
		msg = colors[level] + msg + reset
	}
	if l.Prefix != "" {
		msg = l.Prefix + ": " + msg
	}
	log.Print(priorityFor(level), msg)
}

func (l *Logger) Warnf(format string, args ...interface{})   { l.Printf(Warn, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})   { l.Printf(Info, format, args...) }
func (l *Logger) Tracef(format string, args ...interface{})  { l.Printf(Trace, format, args...) }
func (l *Logger) Trace2f(format string, args ...interface{}) { l.Printf(Trace2, format, args...) }

func priorityFor(level Level) string {
	switch level {
	case Warn:
		return "warn"
	default:
		return "info"
	}
}
