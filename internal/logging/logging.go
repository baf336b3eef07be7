// Package logging configures the process-wide structured logger.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New returns a JSON-formatted logrus logger at the given level name.
// Unknown level names fall back to info.
func New(out io.Writer, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
