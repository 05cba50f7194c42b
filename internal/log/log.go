// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package log implements the structured, levelled logger used throughout
// imgcommit. It intentionally keeps the same call shape as the ambient
// logger in the teacher codebase: a message followed by alternating
// key/value pairs.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is the level of a log record.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "???"
	}
}

var levelColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgRed, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

var (
	root   = &Logger{out: colorable.NewColorableStdout(), level: LvlInfo, color: isatty.IsTerminal(os.Stdout.Fd())}
	rootMu sync.Mutex
)

// Logger is a context-carrying structured logger, constructed via New.
type Logger struct {
	ctx   []interface{}
	out   io.Writer
	level Lvl
	color bool
	mu    sync.Mutex
}

// New returns a Logger that prefixes every record with the given
// key/value context, inheriting the root logger's output and level.
func New(ctx ...interface{}) *Logger {
	rootMu.Lock()
	defer rootMu.Unlock()
	return &Logger{ctx: ctx, out: root.out, level: root.level, color: root.color}
}

// New returns a child Logger that appends ctx to l's own context.
func (l *Logger) New(ctx ...interface{}) *Logger {
	return &Logger{ctx: append(append([]interface{}{}, l.ctx...), ctx...), out: l.out, level: l.level, color: l.color}
}

// SetLevel adjusts the minimum level written by the root logger.
func SetLevel(lvl Lvl) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root.level = lvl
}

// SetOutput redirects the root logger's destination and disables color,
// whatever the destination is.
func SetOutput(w io.Writer) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root.out = w
	root.color = false
}

func (l *Logger) write(lvl Lvl, msg string, ctx []interface{}) {
	if lvl > l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("2006-01-02T15:04:05.000")
	line := fmt.Sprintf("%s [%-5s] %s", ts, lvl, msg)
	all := append(append([]interface{}{}, l.ctx...), ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		line += fmt.Sprintf(" %v=%v", all[i], all[i+1])
	}
	if lvl <= LvlError {
		// Attach the immediate caller so an operator can locate the
		// failing call site without attaching a debugger.
		if frames := stack.Trace().TrimBelow(stack.Caller(3)).TrimRuntime(); len(frames) > 0 {
			line += fmt.Sprintf(" caller=%v", frames[0])
		}
	}
	if l.color {
		if c, ok := levelColor[lvl]; ok {
			line = c.Sprint(line)
		}
	}
	fmt.Fprintln(l.out, line)
}

func (l *Logger) Crit(msg string, ctx ...interface{}) {
	l.write(LvlCrit, msg, ctx)
	os.Exit(1)
}
func (l *Logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *Logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *Logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }

// Package-level helpers log on the root logger directly, for callers
// that don't carry their own contextual logger.
func Crit(msg string, ctx ...interface{})  { root.Crit(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.Warn(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
func Trace(msg string, ctx ...interface{}) { root.Trace(msg, ctx...) }
