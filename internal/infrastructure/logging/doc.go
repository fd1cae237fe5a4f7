// Package logging wraps log/slog into the bridge's structured logger.
//
// Every record carries service and version attributes so one log
// stream can serve several co-located services. Level, format and
// destination come from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Components take the *Logger and usually derive a child with their
// component name:
//
//	log := logger.With("component", "poll")
//	log.Info("cycle complete", "devices", n)
//
// Secrets never go into log fields. Cloud tokens, JWT secrets and
// password hashes are redacted or truncated at the call site.
package logging
