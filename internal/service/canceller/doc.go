// Package canceller implements fall-cancel, the "I'm OK" button.
//
// The command connects to the monitor and dismisses a pending fall, retrying
// transient failures. With Reset it also clears a confirmed episode.
package canceller
