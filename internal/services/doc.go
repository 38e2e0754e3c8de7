// Package services defines shared utilities consumed by the daemon and the
// external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session identifiers, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent classifications (fatal vs retryable).
//   - Thin abstractions that make command execution from external tools
//     testable.
//
// Use these helpers when wiring new workflow logic so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
