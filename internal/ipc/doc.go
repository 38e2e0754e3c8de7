// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs for
// recording control, provisioning, session history, and daemon shutdown.
// The server drives a Backend interface implemented by the daemon so the
// wire layer stays free of daemon internals; the CLI uses the typed client
// and fails fast when the daemon is offline.
//
// Reuse these types when adding new RPC endpoints to keep the protocol stable
// and compatible with existing command implementations.
package ipc
