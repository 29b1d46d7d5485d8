// Package monitor runs the fall monitor daemon.
//
// It loads the settings, wires the sensor source, sampler, state machine,
// location tracker and presenters together, and serves the gRPC status API
// until the context is canceled. SIGHUP reloads the settings.
package monitor
