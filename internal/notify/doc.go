// Package notify delivers reload outcomes to a webhook.
//
// Supported webhook types:
//   - slack: {"text": "*[FAILED]* /etc/app.json reload failed, ..."}
//   - teams: Office 365 MessageCard
//   - http:  {"event": { /* same schema as GET /api/v1/events entries */ }}
//
// Only Reloaded and ReloadFailed events are sent. Notify never blocks; events
// wait in a bounded queue drained by Run, and the oldest is dropped on
// overflow. Delivery errors are logged and otherwise ignored.
package notify
