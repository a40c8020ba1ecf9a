// Package logging configures structured logging for the engine.
//
// It builds a log/slog logger from config.LoggingConfig with a JSON or text
// handler and a ReplaceAttr hook that redacts learner emails and provider API
// keys. Components derive their own logger with
// slog.Default().With("component", "...") and attach request-scoped fields
// (user_id, operation, job) through the context helpers:
//
//	ctx = logging.WithUser(ctx, userID)
//	logging.FromContext(ctx, logger).Info("streak updated", "current", 7)
package logging
