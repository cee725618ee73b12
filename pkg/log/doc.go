/*
Package log provides structured logging for the fabric using zerolog.

A single global Logger is configured once via Init and then specialized
per call site with the With* helpers, which attach a context field
(component, zooid, niche, incident_id) to a child logger so downstream
log lines carry it automatically.

Usage:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.Info("colonyd starting")

	wlog := log.WithZooid("latency-tracker-01")
	wlog.Info().Str("niche", "observability").Msg("subscribed to topic")

JSON output is used in production; console output (human-readable,
colorized) is meant for local development. Fatal logs exit the process
after writing, matching zerolog's own Fatal semantics.
*/
package log
