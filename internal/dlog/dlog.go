// Package dlog is the internal leveled logger.
package dlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

const (
	LevelTrace = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNoPrint
)

var (
	level   = LevelWarn
	colors  = []string{"\x1b[95m", "\x1b[92m", "\x1b[94m", "\x1b[93m", "\x1b[91m"}
	names   = []string{"Trace", "Debug", "Info", "Warn", "Error"}
	reset   = "\x1b[0m"
	Default = &Logger{out: os.Stdout, callDepth: 4}
)

func init() {
	if v := os.Getenv("DMAWIN_LOG_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n <= LevelNoPrint {
			level = n
		}
	}
}

// SetLevel changes the process-wide log level. The default is Warn; the
// DMAWIN_LOG_LEVEL environment variable overrides it at startup.
func SetLevel(l int) {
	if l <= LevelNoPrint {
		level = l
	}
}

type Logger struct {
	name      string
	out       io.Writer
	callDepth int
}

// New returns a named logger writing to out (stdout when nil).
func New(name string, out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{name: name, out: out, callDepth: 4}
}

func (l *Logger) Errorf(format string, a ...interface{}) { l.printf(LevelError, format, a...) }
func (l *Logger) Warnf(format string, a ...interface{})  { l.printf(LevelWarn, format, a...) }
func (l *Logger) Infof(format string, a ...interface{})  { l.printf(LevelInfo, format, a...) }
func (l *Logger) Debugf(format string, a ...interface{}) { l.printf(LevelDebug, format, a...) }
func (l *Logger) Tracef(format string, a ...interface{}) { l.printf(LevelTrace, format, a...) }

func (l *Logger) printf(lv int, format string, a ...interface{}) {
	if level > lv {
		return
	}
	fmt.Fprintf(l.out, l.prefix(lv)+format+reset+"\n", a...)
}

func (l *Logger) prefix(lv int) string {
	return colors[lv] + names[lv] + " " +
		time.Now().Format("2006-01-02 15:04:05.999999") + " " +
		l.location() + " " + l.name + " "
}

func (l *Logger) location() string {
	_, file, line, ok := runtime.Caller(l.callDepth)
	if !ok {
		return "???:0"
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
