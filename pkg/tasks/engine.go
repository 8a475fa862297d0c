package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/workshoplabs/workshop/pkg/hub"
	"github.com/workshoplabs/workshop/pkg/ident"
	"github.com/workshoplabs/workshop/pkg/log"
	"github.com/workshoplabs/workshop/pkg/metrics"
	"github.com/workshoplabs/workshop/pkg/store"
	"github.com/workshoplabs/workshop/pkg/types"
)

// Typed failures; the API layer maps these to status codes.
var (
	// ErrNotFound mirrors store.ErrNotFound for unknown task ids
	ErrNotFound = store.ErrNotFound
	// ErrInvalid marks malformed input (missing from, title, ...)
	ErrInvalid = errors.New("invalid request")
	// ErrNotOpen is returned when claiming a task that is not open
	ErrNotOpen = errors.New("task is not open")
	// ErrLostRace is returned when a concurrent claimant won
	ErrLostRace = errors.New("lost claim race")
	// ErrNotClaimed is returned for done/abandon on a task that is not claimed
	ErrNotClaimed = errors.New("task is not claimed")
	// ErrNotOwner is returned when from is not the current claimant
	ErrNotOwner = errors.New("task is claimed by another agent")
)

// Engine drives the task state machine. Every transition writes the task
// row and emits a lifecycle event on the task's channel through the same
// publish pipeline as ordinary messages.
type Engine struct {
	store  store.Store
	hub    *hub.Hub
	logger zerolog.Logger
}

// New creates a task engine
func New(st store.Store, h *hub.Hub) *Engine {
	return &Engine{
		store:  st,
		hub:    h,
		logger: log.WithComponent("tasks"),
	}
}

// CreateParams are the accepted fields for task creation
type CreateParams struct {
	From       string          `json:"from"`
	CreatedBy  string          `json:"created_by"`
	Title      string          `json:"title"`
	AssignedTo string          `json:"assigned_to"`
	Context    json.RawMessage `json:"context"`
	Channel    string          `json:"ch"`
}

// Create inserts an open task and announces task.created
func (e *Engine) Create(p CreateParams) (*types.Task, error) {
	creator := p.CreatedBy
	if creator == "" {
		creator = p.From
	}
	if creator == "" {
		return nil, fmt.Errorf("%w: missing from", ErrInvalid)
	}
	if p.Title == "" {
		return nil, fmt.Errorf("%w: missing title", ErrInvalid)
	}

	ch := p.Channel
	if ch == "" {
		ch = types.DefaultTaskChannel
	}
	context := p.Context
	if len(context) == 0 {
		context = types.EmptyObject
	}

	now := nowSeconds()
	task := &types.Task{
		ID:         ident.New(),
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatedBy:  creator,
		AssignedTo: p.AssignedTo,
		Status:     types.TaskOpen,
		Title:      p.Title,
		Context:    context,
		Files:      []string{},
		Channel:    ch,
	}

	if err := e.store.InsertTask(task); err != nil {
		return nil, err
	}

	e.announce(task, creator, types.EventTaskCreated, map[string]interface{}{
		"task-id": task.ID,
		"title":   task.Title,
	}, nil)
	return task, nil
}

// Get returns a task by id
func (e *Engine) Get(id string) (*types.Task, error) {
	return e.store.GetTask(id)
}

// List returns tasks filtered by status and/or agent. The agent filter
// matches either assigned_to or claimed_by; that OR is deliberate.
func (e *Engine) List(status, agent string) ([]*types.Task, error) {
	return e.store.ListTasks(status, agent)
}

// Claim performs the concurrency-safe open→claimed transition. Exactly one
// concurrent claimant wins; the rest observe the winner on re-read.
func (e *Engine) Claim(id, from string) (*types.Task, error) {
	if from == "" {
		return nil, fmt.Errorf("%w: missing from", ErrInvalid)
	}

	task, err := e.store.GetTask(id)
	if err != nil {
		return nil, err
	}
	if task.Status != types.TaskOpen {
		return nil, ErrNotOpen
	}

	won, err := e.store.ClaimTask(id, from, nowSeconds())
	if err != nil {
		return nil, err
	}

	// Re-read; the store serializes writes, so this deterministically
	// identifies the winner.
	task, err = e.store.GetTask(id)
	if err != nil {
		return nil, err
	}
	if !won || task.ClaimedBy != from {
		return nil, ErrLostRace
	}

	e.announce(task, from, types.EventTaskClaimed, map[string]interface{}{
		"task-id":    task.ID,
		"title":      task.Title,
		"claimed-by": from,
	}, nil)
	return task, nil
}

// Update bumps updated_at and announces a progress note. No task column
// other than updated_at changes; the note lives only in the event log.
func (e *Engine) Update(id, from string, note json.RawMessage) (*types.Task, error) {
	if from == "" {
		return nil, fmt.Errorf("%w: missing from", ErrInvalid)
	}

	task, err := e.store.GetTask(id)
	if err != nil {
		return nil, err
	}

	if err := e.store.TouchTask(id, nowSeconds()); err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"task-id": task.ID,
		"title":   task.Title,
	}
	if len(note) > 0 {
		body["note"] = note
	}
	e.announce(task, from, types.EventTaskUpdated, body, nil)
	return task, nil
}

// Done performs claimed→done, guarded by ownership
func (e *Engine) Done(id, from string, result json.RawMessage, files []string) (*types.Task, error) {
	if from == "" {
		return nil, fmt.Errorf("%w: missing from", ErrInvalid)
	}

	task, err := e.store.GetTask(id)
	if err != nil {
		return nil, err
	}
	if task.Status != types.TaskClaimed {
		return nil, ErrNotClaimed
	}
	if task.ClaimedBy != from {
		return nil, ErrNotOwner
	}

	if len(result) == 0 {
		result = types.EmptyObject
	}
	if files == nil {
		files = []string{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("failed to encode files: %w", err)
	}

	if err := e.store.FinishTask(id, result, filesJSON, nowSeconds()); err != nil {
		return nil, err
	}
	task, err = e.store.GetTask(id)
	if err != nil {
		return nil, err
	}

	e.announce(task, from, types.EventTaskDone, map[string]interface{}{
		"task-id": task.ID,
		"title":   task.Title,
	}, files)
	return task, nil
}

// Abandon performs claimed→open, guarded by ownership. claimed_by and
// claimed_at are cleared together.
func (e *Engine) Abandon(id, from string) (*types.Task, error) {
	if from == "" {
		return nil, fmt.Errorf("%w: missing from", ErrInvalid)
	}

	task, err := e.store.GetTask(id)
	if err != nil {
		return nil, err
	}
	if task.Status != types.TaskClaimed {
		return nil, ErrNotClaimed
	}
	if task.ClaimedBy != from {
		return nil, ErrNotOwner
	}

	if err := e.store.ReleaseTask(id, nowSeconds()); err != nil {
		return nil, err
	}
	task, err = e.store.GetTask(id)
	if err != nil {
		return nil, err
	}

	e.announce(task, from, types.EventTaskAbandoned, map[string]interface{}{
		"task-id": task.ID,
		"title":   task.Title,
	}, nil)
	return task, nil
}

// Interrupt announces task.interrupt without mutating the task
func (e *Engine) Interrupt(id, from, reason string) (*types.Task, error) {
	if from == "" {
		return nil, fmt.Errorf("%w: missing from", ErrInvalid)
	}

	task, err := e.store.GetTask(id)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"task-id": task.ID,
		"title":   task.Title,
	}
	if reason != "" {
		body["reason"] = reason
	}
	e.announce(task, from, types.EventTaskInterrupt, body, nil)
	return task, nil
}

// announce emits a lifecycle event on the task's channel. Announce failures
// are logged, never surfaced: the transition already committed.
func (e *Engine) announce(task *types.Task, from, eventType string, body map[string]interface{}, files []string) {
	data, err := json.Marshal(body)
	if err != nil {
		e.logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to encode event body")
		return
	}

	env := &types.Envelope{
		From:    from,
		Channel: task.Channel,
		Type:    eventType,
		Body:    data,
		Files:   files,
	}
	if err := e.hub.Publish(env); err != nil {
		e.logger.Error().Err(err).Str("task_id", task.ID).Str("event", eventType).
			Msg("failed to announce transition")
		return
	}
	metrics.TaskTransitions.WithLabelValues(eventType).Inc()
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
