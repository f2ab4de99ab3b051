// Package logging configures the process-wide structured logger.
package logging

import (
	"os"

	"github.com/phuslu/log"
)

// Setup configures log.DefaultLogger from the log config. format is
// "console" for human-readable output or anything else for JSON lines.
func Setup(level, format string) {
	lvl := log.ParseLevel(level)
	if level == "" {
		lvl = log.InfoLevel
	}

	logger := log.Logger{
		Level:      lvl,
		TimeFormat: "15:04:05",
	}
	if format == "console" || format == "" {
		logger.Writer = &log.ConsoleWriter{
			ColorOutput:    true,
			EndWithMessage: true,
			Writer:         os.Stderr,
		}
	} else {
		logger.Writer = log.IOWriter{Writer: os.Stderr}
	}

	log.DefaultLogger = logger
}
