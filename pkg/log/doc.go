// Package log provides relay's structured logging facade.
//
// The Logger interface exposes leveled methods and a small Field type for
// structured context. It is backed by log/slog through a bridge handler that
// feeds our own formatter and outputs, so slog-aware libraries can share the
// same pipeline.
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("http"), log.Str("room", "lobby"))
//	l.Info("listening", log.Str("addr", ":8080"))
//
// ApplyConfig builds a logger from a declarative Config (text or json,
// console/file/null outputs, redaction and sampling). Child loggers share
// their root's level, so SetLevel on the root applies everywhere.
//
// RedirectStdLog and ToStdLogger bridge code that still writes through the
// standard library logger.
package log
