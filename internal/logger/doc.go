// Package logger wraps zap for the relay:
//   - a global sugared logger with a console encoder and an atomic level,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing for the --log-level flag,
//   - leveled helpers (Infof, WarnKV, ErrorKV, ...).
//
// Components take a context and log through the logger stored in it, so the
// delivery worker inherits the name and fields of whoever started it.
package logger
