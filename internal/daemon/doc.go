// Package daemon coordinates the long-running Reel process and system
// integration points.
//
// It wires configuration, the obs-websocket client, the recording
// controller, session history, and the capture device monitor into a
// single lifecycle with flock-based locking to prevent multiple
// instances. The daemon implements the IPC backend the CLI talks to and
// owns the post-session pipeline: transcription, cloud sync, and
// notifications.
//
// Keep orchestration logic here: recording mechanics live in the
// recording package while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
