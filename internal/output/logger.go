/*
PURPOSE:
  Provides a structured logger for fio-tuner.
  Wraps slog for consistent output; charmbracelet/log renders it.

REQUIREMENTS:
  User-specified:
  - "Sane" CLI output. Not spammy.
  - One line per trial with numjobs, iodepth, IOPS, latency and the verdict.

  Implementation-discovered:
  - Needs Debug/Info/Warn/Error levels selectable from config/flags.
  - Needs a machine readable format (json, logfmt) for unattended runs.

ARCHITECTURE INTEGRATION:
  - Used everywhere.

ERROR HANDLING:
  - Configure returns ErrInvalidLogSetting for unknown level/format.

IMPLEMENTATION RULES:
  - Use `log/slog` as the API; charmbracelet/log's Logger is the slog.Handler.

USAGE:
  output.Logger.Info("message", "key", "value")

RELATED FILES:
  - All.
*/

package output

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Logger is the process-wide logger.
var Logger *slog.Logger

// ErrInvalidLogSetting is returned for unknown log levels or formats.
var ErrInvalidLogSetting = errors.New("invalid log setting")

const timeFormat = "2006-01-02 15:04:05"

func init() {
	Logger = slog.New(newHandler(os.Stdout, log.InfoLevel, log.TextFormatter))
}

// SetLogger allows overriding the default logger (e.g. for testing or config changes)
func SetLogger(l *slog.Logger) {
	Logger = l
}

// Configure replaces Logger with one writing to w at the given level
// (debug, info, warn, error) and format (text, json, logfmt).
func Configure(w io.Writer, level, format string) error {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("%w: level %q", ErrInvalidLogSetting, level)
	}

	var formatter log.Formatter
	switch strings.ToLower(format) {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return fmt.Errorf("%w: format %q", ErrInvalidLogSetting, format)
	}

	SetLogger(slog.New(newHandler(w, lvl, formatter)))
	return nil
}

func newHandler(w io.Writer, level log.Level, formatter log.Formatter) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
	})
}
