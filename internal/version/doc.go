// Package version exposes build metadata for the fall monitor binaries.
//
// Version, Commit and BuildTime are injected via ldflags.
package version
