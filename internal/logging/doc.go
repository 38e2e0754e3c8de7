// Package logging builds the slog loggers used across the daemon and CLI.
//
// It provides console and JSON handlers behind a single Options surface,
// standardized attribute keys (component, session_id, stage, correlation_id),
// context-derived field extraction, and log file retention pruning.
//
// Construct loggers through New or NewFromConfig so output format, level
// parsing, and multi-destination writing stay consistent.
package logging
