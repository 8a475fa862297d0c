/*
Package hub provides the publish pipeline and push-stream fan-out for Workshop's channels.

The hub package is the single shared in-memory component of the server. Every
message, whether posted directly or emitted by the task engine, passes through
the hub: it mints the identifier and timestamp, applies envelope defaults,
persists the message to the durable log, and fans it out to every attached
subscriber without blocking the publisher.

# Architecture

The hub keeps a registry of subscribers keyed by channel name, with the "*"
sentinel acting as a channel whose subscribers see everything:

	┌───────────────────── HUB ─────────────────────────┐
	│                                                     │
	│  Publish(envelope)                                  │
	│     │  mint id (ULID) + ts, apply defaults          │
	│     ▼                                               │
	│  Store.InsertMessage  ── durable log first          │
	│     │                                               │
	│     ▼                                               │
	│  Broadcast                                          │
	│     │  snapshot(ch) + snapshot("*")                 │
	│     ▼                                               │
	│  Subscriber.enqueue  ── buffered chan (64)          │
	│     │                                               │
	│     ├── accepted  → frame reaches the stream        │
	│     └── rejected  → subscriber evicted              │
	│                                                     │
	└─────────────────────────────────────────────────────┘

# Core Components

Hub:
  - Registry of channel → subscriber set, guarded by a RWMutex
  - Fan-out iterates over snapshots so concurrent detach is safe
  - Keepalive loop writes comment frames every 20 seconds

Subscriber:
  - One attached push stream with a buffered frame channel
  - enqueue never blocks; a full buffer marks the handle dead
  - close is idempotent and guarded, so eviction can race Unsubscribe

Frame:
  - Wire-level unit of the push stream (id + data, or comment)

# Delivery Semantics

Persistence precedes fan-out, so subscribers only ever observe messages that
are already in the durable log. Delivery is at-least-once: a subscriber that
reconnects with a resumption id may see a message both from replay and live.
Clients deduplicate by id. A subscriber that stops draining is evicted rather
than allowed to stall the publish path.

# Usage

	h := hub.New(store)
	h.Start()
	defer h.Stop()

	sub := h.Subscribe("general")
	defer h.Unsubscribe(sub)

	err := h.Publish(&types.Envelope{
		From:    "agent-1",
		Channel: "general",
		Type:    "chat.message",
		Body:    json.RawMessage(`{"text": "hello"}`),
	})

# Integration Points

  - pkg/store: durable log written before any fan-out
  - pkg/api: stream handlers subscribe and drain frames
  - pkg/tasks: lifecycle events are published through the same pipeline
  - pkg/metrics: frames sent/dropped and active subscriber gauge

# See Also

  - pkg/api/stream.go: gap recovery and the HTTP side of subscriptions
  - pkg/ident: identifier generation and ordering guarantees
*/
package hub
