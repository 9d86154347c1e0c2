package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

const RFC3339UsecTz0 = "2006-01-02T15:04:05.000000Z07:00"

// Logger is the levelled logger shared by the storage packages.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	// WithPrefix returns a Logger with the same verbosity and output whose
	// lines carry prefix.
	WithPrefix(prefix string) Logger
}

const (
	LevelError = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func LevelPrefix(level int) string {
	return [...]string{"ERROR: ", "WARN:  ", "INFO:  ", "DEBUG: "}[level]
}

// ParseLevel maps a config string to a level. Unknown values are an error.
func ParseLevel(s string) (int, error) {
	switch strings.ToLower(s) {
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "", "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

var _ Logger = &nopLogger{}

var StderrLogger Logger = NewStandardLogger(os.Stderr, LevelInfo)

// NopLogger discards everything.
var NopLogger Logger = &nopLogger{}

type nopLogger struct{}

func (n *nopLogger) Debugf(format string, v ...interface{}) {}
func (n *nopLogger) Infof(format string, v ...interface{})  {}
func (n *nopLogger) Warnf(format string, v ...interface{})  {}
func (n *nopLogger) Errorf(format string, v ...interface{}) {}
func (n *nopLogger) WithPrefix(prefix string) Logger        { return n }

// write in UTC with constant width and microsecond resolution.
type formatLog struct {
	w io.Writer
}

func (fl formatLog) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(fl.w, "%v %v", time.Now().UTC().Format(RFC3339UsecTz0), string(bytes))
}

type standardLogger struct {
	logger    *log.Logger
	verbosity int
	w         io.Writer
}

// NewStandardLogger logs to w every message at or above verbosity.
func NewStandardLogger(w io.Writer, verbosity int) Logger {
	return newStandardLogger(w, verbosity, "")
}

func newStandardLogger(w io.Writer, verbosity int, prefix string) *standardLogger {
	return &standardLogger{
		logger:    log.New(formatLog{w: w}, prefix, log.Lmsgprefix),
		verbosity: verbosity,
		w:         w,
	}
}

func (s *standardLogger) printf(level int, format string, v ...interface{}) {
	if level > s.verbosity {
		return
	}
	s.logger.Printf(LevelPrefix(level)+format, v...)
}

func (s *standardLogger) Debugf(format string, v ...interface{}) { s.printf(LevelDebug, format, v...) }
func (s *standardLogger) Infof(format string, v ...interface{})  { s.printf(LevelInfo, format, v...) }
func (s *standardLogger) Warnf(format string, v ...interface{})  { s.printf(LevelWarn, format, v...) }
func (s *standardLogger) Errorf(format string, v ...interface{}) { s.printf(LevelError, format, v...) }

func (s *standardLogger) WithPrefix(prefix string) Logger {
	return newStandardLogger(s.w, s.verbosity, s.logger.Prefix()+prefix)
}

// BufferLogger keeps every line in memory; tests use it to assert on
// what the pool reported.
type BufferLogger struct {
	mu    sync.Mutex
	lines []string
}

func NewBufferLogger() *BufferLogger {
	return &BufferLogger{}
}

func (b *BufferLogger) add(level int, format string, v ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, LevelPrefix(level)+fmt.Sprintf(format, v...))
}

func (b *BufferLogger) Debugf(format string, v ...interface{}) { b.add(LevelDebug, format, v...) }
func (b *BufferLogger) Infof(format string, v ...interface{})  { b.add(LevelInfo, format, v...) }
func (b *BufferLogger) Warnf(format string, v ...interface{})  { b.add(LevelWarn, format, v...) }
func (b *BufferLogger) Errorf(format string, v ...interface{}) { b.add(LevelError, format, v...) }
func (b *BufferLogger) WithPrefix(prefix string) Logger        { return b }

// Lines returns a copy of the logged lines.
func (b *BufferLogger) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
