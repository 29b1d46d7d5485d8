// Package integration holds end-to-end tests that run the fall monitor
// daemon with a scripted sensor scenario and drive it through its CLIs'
// service packages.
package integration
