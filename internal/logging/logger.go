package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger tagged with a component name. Development
// environments get the human-readable console writer, everything else
// structured JSON on stdout.
func New(component, environment string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(os.Stdout)
	if environment == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	return logger.With().
		Timestamp().
		Str("component", component).
		Logger()
}
