package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger tags the global logger with the process and panel identity.
// Call after logging.Configure so the configured writer is kept.
func InitLogger(app, panelID string) zerolog.Logger {
	ctx := log.Logger.With().Str("app", app)
	if panelID != "" {
		ctx = ctx.Str("panel", panelID)
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger
}
