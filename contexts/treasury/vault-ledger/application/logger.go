package application

import "log/slog"

// ResolveLogger keeps logging nil-safe for modules wired without one.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
