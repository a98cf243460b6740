package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Discord DiscordConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

type DiscordConfig struct {
	Enabled    bool
	ChannelID  string
	MinLevel   string
	RatePerSec int
}

const defaultLogFile = "./labbot.log"

// Service owns the log outputs. Apply rebuilds them in place, so loggers
// obtained from New keep working across reloads.
type Service struct {
	mu     sync.Mutex
	file   *os.File
	sink   *channelSink
	sender Sender

	current atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the service with a logger bound to it. sender
// may be nil when the Discord sink is never enabled.
func New(cfg Config, sender Sender) (*Service, Logger) {
	setGlobals()
	s := &Service{sender: sender}
	s.Apply(cfg)
	return s, Logger{src: s}
}

func (s *Service) root() zerolog.Logger {
	if zl := s.current.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Apply swaps outputs and levels. Safe for concurrent use with logging.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outs []io.Writer
	if cfg.Console {
		outs = append(outs, consoleWriter())
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		} else {
			s.file = f
			outs = append(outs, zerolog.SyncWriter(f))
		}
	}

	if cfg.Discord.Enabled {
		if s.sink == nil {
			s.sink = startChannelSink(s.sender)
		}
		s.sink.configure(cfg.Discord)
		outs = append(outs, s.sink)
	} else if s.sink != nil {
		s.sink.configure(DiscordConfig{})
	}

	if len(outs) == 0 {
		outs = append(outs, consoleWriter())
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(outs...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.current.Store(&zl)
}

// Close stops the Discord sink and closes the log file.
func (s *Service) Close() error {
	s.mu.Lock()
	sink, f := s.sink, s.file
	s.sink, s.file = nil, nil
	s.mu.Unlock()

	if sink != nil {
		sink.stop()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}
