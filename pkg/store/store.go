package store

import (
	"errors"

	"github.com/workshoplabs/workshop/pkg/types"
)

// ErrNotFound is returned when a referenced row does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for the durable message/task/presence log
type Store interface {
	// Messages
	InsertMessage(env *types.Envelope) error
	Messages(ch, since, typePrefix string, limit int) ([]*types.Envelope, error)
	AllMessages(limit int) ([]*types.Envelope, error)
	MessagesAfter(ch, since string) ([]*types.Envelope, error)
	Channels() ([]string, error)
	MessageCount() (int64, error)

	// Tasks
	InsertTask(task *types.Task) error
	GetTask(id string) (*types.Task, error)
	ListTasks(status, agent string) ([]*types.Task, error)
	ClaimTask(id, agent string, now float64) (bool, error)
	FinishTask(id string, result, files []byte, now float64) error
	ReleaseTask(id string, now float64) error
	TouchTask(id string, now float64) error
	TaskCounts() (map[types.TaskStatus]int64, error)

	// Presence
	UpsertPresence(p *types.Presence) error
	LivePresence(cutoff float64) ([]*types.Presence, error)

	// Retention
	PurgeMessages(before float64) (int64, error)
	PurgePresence(before float64) (int64, error)

	// Utility
	Close() error
}
