// Package common holds helpers shared by several services.
//
// It provides a gRPC client wrapper for the fall monitor with timeouts and a
// helper that detects the current system actor (hostname/username) for audit
// purposes.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
