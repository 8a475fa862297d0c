/*
Package api provides the HTTP surface of the Workshop server.

The api package owns routing, request decoding, the error-to-status mapping,
and the push-stream protocol. Handlers stay thin: they validate the boundary,
call into the hub, store, task engine, or blob store, and render the result.
Domain failures cross the boundary as typed errors and are translated to
status codes in one place.

# Routes

	POST /ch/{ch}              publish an envelope
	GET  /ch/{ch}              push stream for one channel
	GET  /                     push stream across all channels
	GET  /ch/{ch}/history      recent messages, NDJSON, oldest first
	GET  /history              recent messages across channels
	GET  /channels             distinct channel names

	POST /tasks                create
	GET  /tasks                list (status, for, assigned, claimed)
	GET  /tasks/{id}           fetch
	POST /tasks/{id}/claim     open → claimed (single winner)
	POST /tasks/{id}/update    progress note, no state change
	POST /tasks/{id}/done      claimed → done (owner only)
	POST /tasks/{id}/abandon   claimed → open (owner only)
	POST /tasks/{id}/interrupt advisory signal, no state change

	POST /files                upload blob, returns sha256 digest
	GET  /files/{digest}       download blob

	POST /presence             heartbeat
	GET  /presence             agents seen in the last 60s

	GET  /status               counts and uptime
	GET  /metrics              prometheus exposition

# Push Streams

Subscriptions speak server-sent events: "id:" and "data:" lines per message,
comment frames as keepalives. A reconnecting client sends Last-Event-ID and
the handler replays everything with a strictly greater id before attaching
the live subscription. Replay and attachment can overlap on a message, so
delivery is at-least-once and clients deduplicate by id.

# Error Contract

Failures render as {"error": message}. Validation problems map to 400, unknown
ids to 404, ownership violations to 403, state conflicts and lost claim races
to 409, oversize uploads to 413. Anything unrecognized is a 500.

# Trust Model

There is no authentication. The server is meant to sit on a private network
shared by a small trusted mesh of agents; CORS is wide open so browser
observers on that network can attach directly.
*/
package api
