/*
Package store provides SQLite-backed persistence for Workshop's messages, tasks, and presence.

The store package implements the Store interface over a single SQLite file,
holding the append-only message log, the task table, and agent heartbeats.
All reads and writes go through one serialized connection, which is what makes
the task claim race deterministic without any application-level locking.

# Architecture

	┌──────────────────── SQLITE STORE ────────────────────┐
	│                                                        │
	│  ┌──────────────────────────────────────┐            │
	│  │  SQLiteStore                          │            │
	│  │  - File: <path>, WAL mode             │            │
	│  │  - MaxOpenConns(1): serialized writes │            │
	│  │  - busy_timeout 5s                    │            │
	│  └──────────────────┬───────────────────┘            │
	│                     │                                  │
	│  ┌──────────────────▼───────────────────┐            │
	│  │  Tables                               │            │
	│  │  messages  (id PK, ch, ts, type, ...) │            │
	│  │  tasks     (id PK, status, ...)       │            │
	│  │  presence  (agent_id PK, last_seen)   │            │
	│  └──────────────────────────────────────┘            │
	│                                                        │
	└────────────────────────────────────────────────────────┘

# Core Components

Store interface:
  - Messages: history queries with resumption id, type prefix, and limit
  - MessagesAfter: ascending replay feed for reconnecting subscribers
  - ClaimTask: compare-and-set via UPDATE ... WHERE status = 'open'
  - UpsertPresence: heartbeat upsert keyed by agent id
  - PurgeMessages/PurgePresence: retention deletes by timestamp

Row types:
  - messageRow, taskRow, presenceRow map columns to sqlx struct tags and
    convert JSON text columns back to their typed forms

# Ordering

Message ids are ULIDs, so lexicographic id order is chronological order at
millisecond resolution. Every history and replay query orders by id, and the
"since" cursor is strictly exclusive: a client that passes the last id it saw
receives only what it missed.

# Claim Semantics

ClaimTask issues a guarded UPDATE and reports whether a row changed. With the
single serialized connection, exactly one concurrent claimant observes
RowsAffected == 1; the rest read back the winner. The engine layers ownership
checks on top of this primitive.

# Usage

	st, err := store.NewSQLiteStore("workshop.db")
	if err != nil {
		return err
	}
	defer st.Close()

	msgs, err := st.Messages("general", sinceID, "task.", 100)

# See Also

  - pkg/tasks: the state machine built on ClaimTask
  - pkg/janitor: the retention sweep calling the purge methods
*/
package store
