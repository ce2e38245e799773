// Package monitoring provides the leveled diagnostic logger shared by the
// merge and match stages. Components accept a Logger so tests and the CLI can
// redirect, mute or record diagnostics instead of toggling global output.
package monitoring

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger receives diagnostics at three levels. Warnings are advisory
// conditions that were absorbed with a fallback value.
type Logger interface {
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger = New(os.Stderr)
)

// Default returns the package-level logger.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the package logger. Passing nil installs a no-op logger.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if l == nil {
		l = Nop()
	}
	defaultLogger = l
}

// OrDefault returns l, or the package logger when l is nil.
func OrDefault(l Logger) Logger {
	if l == nil {
		return Default()
	}
	return l
}

type zeroLogger struct {
	zl zerolog.Logger
}

// New returns a Logger writing human-readable lines to w.
func New(w io.Writer) Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	return &zeroLogger{zl: zerolog.New(cw).With().Timestamp().Logger()}
}

// NewJSON returns a Logger writing one JSON object per line to w.
func NewJSON(w io.Writer) Logger {
	return &zeroLogger{zl: zerolog.New(w).With().Timestamp().Logger()}
}

func (l *zeroLogger) Infof(format string, v ...interface{})  { l.zl.Info().Msgf(format, v...) }
func (l *zeroLogger) Warnf(format string, v ...interface{})  { l.zl.Warn().Msgf(format, v...) }
func (l *zeroLogger) Errorf(format string, v ...interface{}) { l.zl.Error().Msgf(format, v...) }

type nopLogger struct{}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

type silentLogger struct {
	Logger
}

// Silent drops info-level output from l. Warnings and errors still pass.
func Silent(l Logger) Logger {
	return silentLogger{Logger: OrDefault(l)}
}

func (silentLogger) Infof(string, ...interface{}) {}

type prefixLogger struct {
	next   Logger
	prefix string
}

// WithPrefix prepends prefix to every message, e.g. "[tract 3828] ".
func WithPrefix(l Logger, prefix string) Logger {
	return &prefixLogger{next: OrDefault(l), prefix: prefix}
}

func (l *prefixLogger) Infof(format string, v ...interface{}) {
	l.next.Infof("%s%s", l.prefix, fmt.Sprintf(format, v...))
}

func (l *prefixLogger) Warnf(format string, v ...interface{}) {
	l.next.Warnf("%s%s", l.prefix, fmt.Sprintf(format, v...))
}

func (l *prefixLogger) Errorf(format string, v ...interface{}) {
	l.next.Errorf("%s%s", l.prefix, fmt.Sprintf(format, v...))
}

// Level names a Recorder entry's severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Entry is one recorded message.
type Entry struct {
	Level   Level
	Message string
}

// Recorder keeps every message in memory. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(level Level, format string, v []interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: fmt.Sprintf(format, v...)})
}

func (r *Recorder) Infof(format string, v ...interface{})  { r.add(LevelInfo, format, v) }
func (r *Recorder) Warnf(format string, v ...interface{})  { r.add(LevelWarning, format, v) }
func (r *Recorder) Errorf(format string, v ...interface{}) { r.add(LevelError, format, v) }

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Messages returns the messages recorded at level.
func (r *Recorder) Messages(level Level) []string {
	var out []string
	for _, e := range r.Entries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Warnings is shorthand for Messages(LevelWarning).
func (r *Recorder) Warnings() []string {
	return r.Messages(LevelWarning)
}
