// Package config defines the fall monitor settings and provides helpers to
// load, validate and save them in YAML format.
//
// Validate fills defaults (sampling period, confirmation window, streams,
// timeouts) so every binary works from a minimal file.
package config
