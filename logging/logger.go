// Package logging provides the leveled logger injected into every
// component of the simulator, in place of the original's global
// mutex-guarded stdout stream. Unlike a bare leveled logger, every entry
// is tagged with the component that produced it (cache, bus, pe, ...) and
// kept in a bounded in-memory ring buffer, so the dashboard's /api/log
// endpoint can show the same trace a `--verbose` run prints to stdout
// without re-wiring a second sink.
package logging

import (
	"fmt"
	logpkg "log"
	"os"
	"sync"
	"time"
)

// Level defines severity for logger output.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "???"
	}
}

// Entry is one structured log record retained in a logger's shared ring
// buffer, consumed by dashboard.Server's /api/log handler.
type Entry struct {
	Time      time.Time
	Level     Level
	Component string
	PEID      int // -1 when the entry isn't scoped to a single PE
	Message   string
}

// sink is the state a family of component-tagged loggers shares: one
// underlying *log.Logger writer, one level (adjustable for the whole
// family at once via --verbose), and one bounded history.
type sink struct {
	mu       sync.Mutex
	level    Level
	out      *logpkg.Logger
	recent   []Entry
	capacity int
}

func (s *sink) record(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, e)
	if over := len(s.recent) - s.capacity; over > 0 {
		s.recent = s.recent[over:]
	}
}

func (s *sink) snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.recent))
	copy(out, s.recent)
	return out
}

// defaultCapacity bounds the ring buffer so a long `run` doesn't grow it
// without limit; the dashboard only ever wants the recent tail anyway.
const defaultCapacity = 500

// Logger is a leveled, component-tagged view onto a shared sink. The zero
// value is not usable; construct with New, and derive scoped views with
// With.
type Logger struct {
	s         *sink
	component string
	peID      int
}

// New creates a logger with the desired level and prefix, with no
// component tag (PEID -1).
func New(level Level, prefix string) *Logger {
	return &Logger{
		s: &sink{
			level:    level,
			out:      logpkg.New(os.Stdout, prefix, logpkg.LstdFlags|logpkg.Lmicroseconds),
			capacity: defaultCapacity,
		},
		peID: -1,
	}
}

// With returns a logger tagged with component and, when peID >= 0, a
// specific processing element — e.g. log.With("cache", 2) so every line
// PE 2's cache emits is prefixed "[cache pe=2]" and its Entry carries
// Component/PEID for the dashboard to filter on. The returned logger
// shares this logger's sink: a SetLevel call or a Recent() read on either
// one sees the whole family.
func (l *Logger) With(component string, peID int) *Logger {
	if l == nil {
		return New(LevelInfo, "[mesisim] ").With(component, peID)
	}
	return &Logger{s: l.s, component: component, peID: peID}
}

// SetLevel adjusts the logging level for this logger's whole family.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.s.mu.Lock()
	l.s.level = level
	l.s.mu.Unlock()
}

func (l *Logger) tag() string {
	switch {
	case l.component == "":
		return ""
	case l.peID < 0:
		return "[" + l.component + "] "
	default:
		return fmt.Sprintf("[%s pe=%d] ", l.component, l.peID)
	}
}

func (l *Logger) logf(target Level, format string, args ...any) {
	if l == nil {
		return
	}
	l.s.mu.Lock()
	level := l.s.level
	l.s.mu.Unlock()
	if target > level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.s.out.Output(3, l.tag()+msg)
	l.s.record(Entry{
		Time:      time.Now(),
		Level:     target,
		Component: l.component,
		PEID:      l.peID,
		Message:   msg,
	})
}

// Debugf prints debug messages.
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }

// Infof prints info messages.
func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, format, args...) }

// Warnf prints warning messages.
func (l *Logger) Warnf(format string, args ...any) { l.logf(LevelWarn, format, args...) }

// Errorf prints error messages.
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// Recent returns a snapshot of this logger's family's retained entries,
// oldest first, for the dashboard's /api/log handler.
func (l *Logger) Recent() []Entry {
	if l == nil {
		return nil
	}
	return l.s.snapshot()
}

var defaultLogger = New(LevelInfo, "[mesisim] ")

// Default returns the package-wide logger.
func Default() *Logger { return defaultLogger }

// SetDefault replaces the package-wide logger (primarily for tests).
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	defaultLogger = l
}
