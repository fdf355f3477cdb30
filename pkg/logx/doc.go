// Package logx wraps zerolog behind a small value-type Logger with
// slog-style field helpers. The Service variant supports swapping
// sinks and level at runtime (config reload).
package logx
