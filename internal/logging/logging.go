// Package logging configures the logrus logger shared by the commands.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options control the logger set up by New.
type Options struct {
	Format  string // "text" (default) or "json"
	Level   string // logrus level name; empty means info
	Verbose bool   // forces debug level
	Output  io.Writer
}

// New returns a logger configured from opts.
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()
	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	}

	switch strings.ToLower(opts.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unsupported log format: %s (use text or json)", opts.Format)
	}

	level := logrus.InfoLevel
	if opts.Level != "" {
		l, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		level = l
	}
	if opts.Verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	return logger, nil
}

// MaskToken masks a secret for display, keeping the first and last 4 characters.
func MaskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}
