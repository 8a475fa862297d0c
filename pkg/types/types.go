package types

import "encoding/json"

// Envelope is the common shape of every channel message. Once persisted an
// envelope is immutable; identifiers are globally unique across channels.
type Envelope struct {
	ID      string          `json:"id"`
	TS      float64         `json:"ts"`
	From    string          `json:"from"`
	Channel string          `json:"ch"`
	Type    string          `json:"type"`
	V       int             `json:"v"`
	Body    json.RawMessage `json:"body"`
	Files   []string        `json:"files"`
	ReplyTo string          `json:"reply_to,omitempty"`
}

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskOpen      TaskStatus = "open"
	TaskClaimed   TaskStatus = "claimed"
	TaskDone      TaskStatus = "done"
	TaskAbandoned TaskStatus = "abandoned"
)

// Task is a unit of claimable work announced on a channel.
// ClaimedBy/ClaimedAt survive into done; abandon clears them and the
// claim history lives in the event log.
type Task struct {
	ID         string          `json:"id"`
	CreatedAt  float64         `json:"created_at"`
	UpdatedAt  float64         `json:"updated_at"`
	CreatedBy  string          `json:"created_by"`
	AssignedTo string          `json:"assigned_to,omitempty"`
	ClaimedBy  string          `json:"claimed_by,omitempty"`
	ClaimedAt  float64         `json:"claimed_at,omitempty"`
	Status     TaskStatus      `json:"status"`
	Title      string          `json:"title"`
	Context    json.RawMessage `json:"context"`
	Result     json.RawMessage `json:"result,omitempty"`
	Files      []string        `json:"files"`
	Channel    string          `json:"ch"`
}

// Presence is a heartbeat row for one agent
type Presence struct {
	AgentID  string          `json:"agent_id"`
	LastSeen float64         `json:"last_seen"`
	Channels []string        `json:"channels"`
	Meta     json.RawMessage `json:"meta"`
}

// Lifecycle event types emitted on a task's channel
const (
	EventTaskCreated   = "task.created"
	EventTaskClaimed   = "task.claimed"
	EventTaskUpdated   = "task.updated"
	EventTaskDone      = "task.done"
	EventTaskAbandoned = "task.abandoned"
	EventTaskInterrupt = "task.interrupt"
)

// AllChannels is the registry sentinel whose subscribers receive every
// fan-out regardless of channel. It backs GET /.
const AllChannels = "*"

// DefaultTaskChannel is where lifecycle events go when a task names no channel
const DefaultTaskChannel = "tasks"

// EmptyObject is the default for free-form JSON object fields
var EmptyObject = json.RawMessage(`{}`)
