// Package logging provides structured logging for the vent hub.
//
// It wraps log/slog with JSON (default) or text output, level filtering and
// default service/version fields on every entry.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("poller").Warn("probe failed", "device_id", id, "error", err)
package logging
