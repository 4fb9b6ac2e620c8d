// Package logging configures the logrus loggers of the reload host.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	EnvLogLevel  = "RELOAD_LOG_LEVEL"
	EnvLogFormat = "RELOAD_LOG_FORMAT"
)

// Configure sets the level and the formatter of logger. The RELOAD_LOG_LEVEL and RELOAD_LOG_FORMAT environment
// variables override the provided values.
func Configure(logger *logrus.Logger, level, format string, out io.Writer) error {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		level = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		format = v
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	formatter, err := ParseFormat(format)
	if err != nil {
		return err
	}

	logger.SetLevel(lvl)
	logger.SetFormatter(formatter)
	if out != nil {
		logger.SetOutput(out)
	}
	return nil
}

// ConfigureStandard configures the logrus standard logger, which the capsules log to
func ConfigureStandard(level, format string, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.StandardLogger()
	if err := Configure(logger, level, format, out); err != nil {
		return nil, err
	}
	return logger, nil
}

// ParseLevel returns the logrus level named by raw. An empty value is info; off, none and disabled only keep panics.
func ParseLevel(raw string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return logrus.InfoLevel, nil
	case "off", "none", "disabled":
		return logrus.PanicLevel, nil
	default:
		lvl, err := logrus.ParseLevel(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid log level: %w", err)
		}
		return lvl, nil
	}
}

// ParseFormat returns the formatter named by format: text (the default) or json
func ParseFormat(format string) (logrus.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return &logrus.TextFormatter{FullTimestamp: true}, nil
	case "json":
		return &logrus.JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
