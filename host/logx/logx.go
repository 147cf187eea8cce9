// Package logx builds the zerolog loggers used by the host tools.
package logx

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"ticktoucan/core"
)

const consoleTimeFormat = "15:04:05.000"

// Config selects the level and output format.
type Config struct {
	Level  string
	Format string // console (default) or json
}

// New returns a logger writing to w.
func New(cfg Config, w io.Writer) (zerolog.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	zerolog.ErrorFieldName = "err"
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// ParseLevel maps a level name to a zerolog level. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel, nil
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "", "INFO":
		return zerolog.InfoLevel, nil
	case "WARN", "WARNING":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// DebugWriter adapts l to the scheduler's trace dump, one debug line per
// call.
func DebugWriter(l zerolog.Logger) core.DebugWriter {
	return func(line string) {
		l.Debug().Msg(line)
	}
}
