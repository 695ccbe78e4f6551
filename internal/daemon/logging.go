package daemon

import (
	"log/slog"
	"os"

	"git.home.luguber.info/inful/eventrelay/internal/config"
)

// configureLogging installs the process-wide slog handler from config.
func configureLogging(cfg config.LoggingConfig) {
	opts := &slog.HandlerOptions{Level: cfg.Level.SlogLevel()}

	var handler slog.Handler
	if cfg.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
