// Package logging builds the slog loggers used across discrescue.
//
// It provides a pretty console handler for interactive runs, a JSON handler
// for machine-readable logs, attribute helpers with standardized field names,
// and a progress sampler that keeps long recovery runs from flooding the log
// with per-read events.
package logging
