// Package logger builds the zerolog logger shared by the synmem commands and
// daemon: console and/or rotating file output with credential redaction.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config describes where log lines go.
type Config struct {
	Level     string // debug, info, warn, error; anything else means info
	File      string // rotating log file, empty for none
	Console   bool   // write to stderr
	Pretty    bool   // human-readable console lines
	Redaction bool
	MaxSize   int // megabytes before the file rotates, 0 never rotates
	MaxAge    int // days rotated files are kept, 0 keeps them forever
	Compress  bool
}

// DefaultConfig is the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSize:   100,
		MaxAge:    7,
		Compress:  true,
	}
}

func (c Config) rotation() RotationPolicy {
	return RotationPolicy{
		MaxBytes: int64(c.MaxSize) << 20,
		MaxAge:   time.Duration(c.MaxAge) * 24 * time.Hour,
		Compress: c.Compress,
	}
}

func parseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// Logger is a zerolog.Logger bound to the file it may own.
type Logger struct {
	logger   zerolog.Logger
	file     io.Closer
	redactor *Redactor
}

// New builds a logger and installs it as the zerolog global. Console output
// goes to stderr so stdout stays free for command results.
func New(cfg Config) (*Logger, error) {
	out, file, err := openOutputs(cfg)
	if err != nil {
		return nil, err
	}

	l := &Logger{}
	if file != nil {
		l.file = file
	}
	if cfg.Redaction {
		l.redactor = NewRedactor()
		out = l.redactor.Wrap(out)
	}

	l.logger = zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	log.Logger = l.logger
	return l, nil
}

// openOutputs returns the combined writer and, when a file is configured, the
// rotating writer that must be closed with the logger.
func openOutputs(cfg Config) (io.Writer, *RotatingWriter, error) {
	var outs []io.Writer
	if cfg.Console {
		if cfg.Pretty {
			outs = append(outs, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		} else {
			outs = append(outs, os.Stderr)
		}
	}

	var file *RotatingWriter
	if cfg.File != "" {
		rw, err := NewRotatingWriter(cfg.File, cfg.rotation())
		if err != nil {
			return nil, nil, err
		}
		file = rw
		outs = append(outs, rw)
	}

	switch len(outs) {
	case 0:
		return os.Stderr, file, nil
	case 1:
		return outs[0], file, nil
	default:
		return zerolog.MultiLevelWriter(outs...), file, nil
	}
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }

func (l *Logger) Info() *zerolog.Event { return l.logger.Info() }

func (l *Logger) Warn() *zerolog.Event { return l.logger.Warn() }

func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// With starts a child logger context.
func (l *Logger) With() zerolog.Context { return l.logger.With() }

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.logger.With().Str("component", name).Logger()
}

// GetZerolog returns the underlying zerolog.Logger.
func (l *Logger) GetZerolog() zerolog.Logger { return l.logger }
