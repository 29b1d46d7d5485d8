// Package location keeps the last known location of the user.
//
// A Provider answers permission and one-shot location requests; the Tracker
// caches the answer so the state machine can read it without blocking at
// confirmation time.
package location
