// Package api implements the HTTP surface of the service: the processing
// pipeline endpoints, the monitoring session endpoints and the websocket
// endpoint stations use for scheduled captures. Handlers translate transport
// concerns into calls on the pipeline orchestrator, the session manager and
// the connection registry; domain errors map to HTTP status codes here and
// nowhere else.
package api
