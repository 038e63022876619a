// Package logger wraps zap to give the release tools:
//   - a global sugared logger with console or JSON output,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and runtime level changes,
//   - leveled convenience functions (Info, InfoKV, ErrorKV, etc.).
//
// Every pipeline stage takes a context and logs through the logger stored in it,
// so component name and identity travel with each message.
package logger
