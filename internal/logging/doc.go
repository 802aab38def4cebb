// Package logging provides structured logging for mcpcli using slog.
//
// Text output is colorized when written to a terminal; JSON output is
// available for machine consumption. The interactive shell writes its logs to
// a file instead, so log lines never land in the middle of the prompt:
//
//	f, _ := logging.OpenFile(path)
//	logger := logging.New(logging.Config{Level: slog.LevelDebug, Output: f})
//
// For tests, use [ForTest] to capture log output via the testing framework.
package logging
