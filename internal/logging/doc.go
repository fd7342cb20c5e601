// Package logging provides slog loggers with per-module levels.
//
// Every package asks for its own logger once:
//
//	logger := logging.GetLogger("scheduler")
//	logger.Debug("unit resolved", "node", name, "request", id)
//
// Records go to stdout (text or json), to the systemd journal when journald
// is reachable, and to an in-memory ring buffer served by the API. Levels are
// set globally and overridden per module:
//
//	[logging]
//	level = "info"
//
//	[logging.modules]
//	scheduler = "debug"
//	lrme = "warn"
//
// With journald, pipeline fields are queryable directly:
//
//	journalctl -t camgraph NODE=fdhw
package logging
