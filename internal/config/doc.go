// Package config loads, normalizes, and validates Reel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OBS_WEBSOCKET_PASSWORD. The Config type centralizes every knob the daemon
// and CLI need, from the obs-websocket endpoint to capture profiles and
// artifact stability windows.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
