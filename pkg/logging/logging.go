// Package logging builds the logrus logger shared by every component.
package logging

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Log output formats accepted by Setup.
const (
	// FormatText writes human-readable lines with full timestamps.
	FormatText = "text"
	// FormatJSON writes one JSON object per entry.
	FormatJSON = "json"
)

// Setup creates a logger writing to out at the given level and format.
func Setup(level, format string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, errors.Wrap(err, "logging")
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("logging: unknown format %q", format)
	}
	return l, nil
}
