// Package metrics exports watcher activity as Prometheus series.
//
// Series (namespace confwatch):
//   - events_total{kind}             — reloaded | unchanged | reload_failed | probe_error
//   - load_failures_total{error_kind} — config.Kind of each failure
//   - load_duration_seconds          — histogram of load time
//   - phase{phase}                   — 1 for the current phase
//   - last_reload_timestamp_seconds  — time of the last Reloaded event
//   - features_enabled               — enabled flags in the retained config
//
// Collector.Observe is a watcher.Handler. Handler() serves /metrics;
// Summary() and WriteText() read the same registry for the status API and
// the exit dump.
package metrics
