package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// redactKeep is how many leading characters of a secret survive redaction.
const redactKeep = 6

// Init configures the global zerolog logger. Unknown levels fall back to info;
// format "console" switches to the human readable writer, anything else is JSON.
func Init(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	base := zerolog.New(os.Stdout)
	if format == "console" {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	}
	log.Logger = base.With().Timestamp().Str("service", "clinicflow").Logger()
}

// Get returns the global logger
func Get() zerolog.Logger {
	return log.Logger
}

// Redact masks a bearer secret (clinic access token, redemption secret) so
// that only a short prefix reaches the logs.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= redactKeep {
		return strings.Repeat("*", len(secret))
	}
	return secret[:redactKeep] + "…"
}
