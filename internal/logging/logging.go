// Package logging builds the hclog loggers shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Config selects level, format and destination
type Config struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error off"`
	JSON   bool   `yaml:"json"`
	Output string `yaml:"output"` // stderr, stdout, discard or a file path
	Color  bool   `yaml:"color"`
}

// DefaultConfig logs info and above as text to stderr
func DefaultConfig() Config {
	return Config{Level: "info", Output: "stderr"}
}

// New builds the root logger. The returned closer releases a log file if one
// was opened.
func New(name string, cfg Config) (hclog.Logger, io.Closer, error) {
	level := hclog.LevelFromString(cfg.Level)
	if level == hclog.NoLevel {
		if cfg.Level != "" {
			return nil, nil, errors.Errorf("unknown log level %q", cfg.Level)
		}
		level = hclog.Info
	}

	out, closer, err := output(cfg.Output)
	if err != nil {
		return nil, nil, err
	}

	color := hclog.ColorOff
	if cfg.Color && !cfg.JSON {
		color = hclog.AutoColor
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Output:     out,
		JSONFormat: cfg.JSON,
		Color:      color,
	})
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func output(dest string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(dest) {
	case "", "stderr":
		return os.Stderr, nopCloser{}, nil
	case "stdout":
		return os.Stdout, nopCloser{}, nil
	case "discard":
		return io.Discard, nopCloser{}, nil
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open log file %s", dest)
	}
	return f, f, nil
}

// Badger adapts an hclog logger to BadgerDB's logger interface. Badger's
// info chatter is demoted to debug.
type Badger struct {
	Logger hclog.Logger
}

func (b Badger) Errorf(format string, args ...interface{}) {
	b.Logger.Error(trim(format, args))
}

func (b Badger) Warningf(format string, args ...interface{}) {
	b.Logger.Warn(trim(format, args))
}

func (b Badger) Infof(format string, args ...interface{}) {
	b.Logger.Debug(trim(format, args))
}

func (b Badger) Debugf(format string, args ...interface{}) {
	b.Logger.Trace(trim(format, args))
}

func trim(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
