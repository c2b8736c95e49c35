// Package ws implements the WebSocket stream for confwatch.
//
// New(src, interval) creates a Hub.
// Hub.Run(ctx) sends a status heartbeat every interval and blocks until ctx
// is cancelled, then closes all active connections.
// Hub.Publish(ev) pushes a watcher event to every client; pass it to
// watcher.Options.OnEvent.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket and sends the
// current status immediately on connect.
//
// Message formats sent to clients:
//
//	{ "event": "status", "data": { /* same schema as GET /api/v1/health */ } }
//	{ "event": "event",  "data": { "kind": "reloaded", "path": ..., ... } }
//
// Clients that fall sendBufSize messages behind are disconnected. The
// endpoint is mounted at /ws/stream.
package ws
