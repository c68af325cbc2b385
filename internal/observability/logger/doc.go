// Package logger wraps zap behind a process-wide singleton plus typed field
// helpers, so services log with consistent keys (user_id, login_id, op, ...)
// without importing zap everywhere. A request-scoped logger travels in the
// context via ToContext/From.
package logger
