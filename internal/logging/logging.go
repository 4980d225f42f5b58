// Package logging configures the process-wide logrus logger.
package logging

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Configure sets formatter and level. Unknown levels fall back to info.
func Configure(level string, json bool) {
	if json {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stderr)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
