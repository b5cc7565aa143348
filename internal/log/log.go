package log

import (
	"io"
	"log/slog"
	"os"
)

// Setup инициализирует глобальный slog.Logger.
// Если debug=true, уровень Debug; если verbose=true, Info; иначе Warn.
// Вывод идёт в w (os.Stderr, если w == nil), чтобы stdout оставался за
// человекочитаемым отчётом о деплое.
func Setup(w io.Writer, debug bool, verbose bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: Level(debug, verbose)})
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}

// Level maps the CLI verbosity switches to a slog level.
func Level(debug, verbose bool) slog.Level {
	switch {
	case debug:
		return slog.LevelDebug
	case verbose:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}
