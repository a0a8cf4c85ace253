// Package logging builds the process-wide zerolog logger with a console
// writer and an optional append-only file sink. The Service can re-apply
// config at runtime (level changes, file toggling) without loggers derived
// from it going stale.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the active sinks. It implements zerolog.LevelWriter, so a
// logger built on it keeps following Apply() calls.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	file *os.File

	sink atomic.Value // holds sinkState
}

type sinkState struct {
	w     zerolog.LevelWriter
	level zerolog.Level
}

// New creates the service, applies cfg immediately and returns a root
// logger writing through it.
func New(cfg Config) (*Service, zerolog.Logger) {
	zerolog.TimeFieldFormat = timeFormat
	zerolog.ErrorFieldName = "err"

	s := &Service{}
	s.Apply(cfg)
	return s, zerolog.New(s).With().Timestamp().Logger()
}

// Apply swaps outputs and level at runtime. Safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 2)
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat})
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./marktbot.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat})
	}

	s.sink.Store(sinkState{
		w:     zerolog.MultiLevelWriter(writers...),
		level: ParseLevel(cfg.Level, zerolog.InfoLevel),
	})
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	return nil
}

func (s *Service) current() sinkState {
	v, ok := s.sink.Load().(sinkState)
	if !ok {
		return sinkState{w: zerolog.MultiLevelWriter(io.Discard), level: zerolog.InfoLevel}
	}
	return v
}

func (s *Service) Write(p []byte) (int, error) {
	return s.WriteLevel(zerolog.InfoLevel, p)
}

func (s *Service) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	st := s.current()
	if level < st.level {
		return len(p), nil
	}
	return st.w.WriteLevel(level, p)
}

func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}
