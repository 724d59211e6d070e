// Package logging sets up the process-wide zerolog logger shared by the
// bridge daemons.
package logging

import (
	"os"
	"runtime"
	"time"

	"cloud.google.com/go/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger configures the global logger. Output is structured JSON
// carrying a GCP severity field; human switches to a console writer for
// local runs.
func SetupLogger(version string, debug, human bool) {
	zerolog.TimestampFieldName = "timestamp"
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if human {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	log.Logger = log.Logger.Hook(gcpSeverityHook{})
	log.Logger = log.With().
		Str("version", version).
		Str("goversion", runtime.Version()).
		Logger()
}

// gcpSeverityHook stamps each entry with the severity name Cloud Logging
// expects, so log levels survive ingestion.
type gcpSeverityHook struct{}

func (h gcpSeverityHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	e.Str("severity", severityOf(level).String())
}

var severities = map[zerolog.Level]logging.Severity{
	zerolog.DebugLevel: logging.Debug,
	zerolog.InfoLevel:  logging.Info,
	zerolog.WarnLevel:  logging.Warning,
	zerolog.ErrorLevel: logging.Error,
	zerolog.FatalLevel: logging.Alert,
	zerolog.PanicLevel: logging.Emergency,
}

func severityOf(level zerolog.Level) logging.Severity {
	if severity, ok := severities[level]; ok {
		return severity
	}
	return logging.Info
}
