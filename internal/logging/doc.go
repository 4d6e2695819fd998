// Package logging builds the daemon's slog loggers. Console output is a
// compact single-line format with the component attribute promoted into
// the message prefix; JSON output is the stock slog JSON handler with
// normalized key names.
package logging
