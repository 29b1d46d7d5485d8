// Package logger wraps zap for the fall monitor:
//   - a global sugared logger with console or JSON encoding,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and runtime level changes,
//   - level helpers (Infof, WarnKV, ErrorKV, etc.).
//
// Components take a context and log through the logger stored in it, so the
// monitor, sampler and state machine share names and fields.
package logger
