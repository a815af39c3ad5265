package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/trailmark-labs/ppm/config"
)

// Custom slog levels below LevelDebug and above LevelError. trace/debug/info
// map one level apart from each other, not onto the same slog.Level: a
// LogLevel of "trace" enables trace, debug, and info records where a
// LogLevel of "info" enables only info and above.
const (
	levelTrace    = slog.LevelDebug - 4
	levelCritical = slog.LevelError + 4
	levelOff      = slog.LevelError + 100
)

// parseLogLevel maps every accepted level name to a distinct slog.Level.
// trace, debug, and info are three different levels, not one collapsed
// level.
func parseLogLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return levelTrace
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warning", "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical":
		return levelCritical
	case "off":
		return levelOff
	default:
		return slog.LevelInfo
	}
}

var levelNames = map[slog.Level]string{
	levelTrace:      "TRACE",
	slog.LevelDebug: "DEBUG",
	slog.LevelInfo:  "INFO",
	slog.LevelWarn:  "WARN",
	slog.LevelError: "ERROR",
	levelCritical:   "CRITICAL",
}

func replaceLevelAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	if name, ok := levelNames[level]; ok {
		a.Value = slog.StringValue(name)
	}
	return a
}

// setupLogger builds the process logger, writing to w (os.Stdout in
// production, replaced with a file writer when logDir/infoLog point
// somewhere).
func setupLogger(w io.Writer, levelName string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLogLevel(levelName),
		AddSource:   parseLogLevel(levelName) <= slog.LevelDebug,
		ReplaceAttr: replaceLevelAttr,
	}
	handler := slog.NewJSONHandler(w, opts)
	return slog.New(handler).With("service", "ppm", "pid", os.Getpid())
}

// openLogFile removes any pre-existing file at path first when rm is set,
// matching the -R/--log-rm flag's documented behavior, then opens it for
// appending.
func openLogFile(path string, rm bool) (*os.File, error) {
	if rm {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove existing log file %s: %w", path, err)
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// buildLogger honors the -D/-i/-R flags: when both a log directory and an
// info log filename are configured, records go to that file instead of
// stdout. The returned closer flushes nothing (slog has no buffering here)
// but closes the underlying file handle.
func buildLogger(policy config.Policy) (*slog.Logger, func(), error) {
	if policy.LogDir == "" || policy.InfoLog == "" {
		return setupLogger(os.Stdout, policy.LogLevel), func() {}, nil
	}

	path := filepath.Join(policy.LogDir, policy.InfoLog)
	f, err := openLogFile(path, policy.LogRM)
	if err != nil {
		return nil, nil, err
	}
	return setupLogger(f, policy.LogLevel), func() { _ = f.Close() }, nil
}
