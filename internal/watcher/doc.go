// Package watcher polls a configuration file and keeps the last
// configuration that loaded and validated successfully.
//
// Components:
//   - ModTime(path) — modification-time probe; failures are
//     config.KindMetadataUnavailable errors
//   - Changed(prev, cur) — change detector; a missing previous timestamp
//     always triggers a load, equal timestamps never do
//   - Watcher — the poll loop. Run(ctx) loads once, then on every tick probes,
//     detects and reloads. Cancellation is raced against the tick and wins
//     when both are ready.
//   - State — tagged retained state: Uninitialized, Loaded(config),
//     Degraded(config, err). A failed load never replaces the retained config.
//
// Each non-silent cycle produces an Event (Reloaded, Unchanged, ReloadFailed,
// ProbeError) delivered synchronously to Options.OnEvent. Presenting events
// (logs, metrics, HTTP) is left to the caller.
package watcher
