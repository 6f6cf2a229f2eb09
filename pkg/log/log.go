package log

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// New returns the default logger used by the example binaries and CLI
// entrypoints: a colorized console handler locally, plain JSON under
// Kubernetes where nothing renders ANSI.
func New() *slog.Logger {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		TimeFormat: "15:04:05.000",
	}))
}
