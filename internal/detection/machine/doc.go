// Package machine implements the fall state machine.
//
// A Machine owns the only fall.State of a monitoring session. Impact signals,
// user cancellation, manual reset and countdown deadlines are delivered as
// events to a single loop goroutine (Run), which applies every transition
// synchronously. Readers get copies via State and Watch.
//
// The confirmation countdown is a scheduled callback guarded by a token: a
// cancel invalidates the token, so a deadline that already fired and is waiting
// in the queue has no effect. Cancels are drained before a deadline is applied,
// so a cancel and a deadline arriving together always resolve to Idle.
package machine
