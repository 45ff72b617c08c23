// Package logger provides structured logging for the annotation service.
//
// It uses the standard library log/slog package with a JSON handler in
// production and carries request-scoped loggers through context.Context so
// that trace IDs and component names follow a request across packages.
package logger
