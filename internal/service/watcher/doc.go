// Package watcher implements fall-status: it prints the monitor's debug
// readout once or follows it as the state changes.
package watcher
