// Package alert provides Presenter implementations for the state machine:
// a structured log presenter, a command hook started on emergencies, and a
// fan-out that calls several presenters in order.
package alert
