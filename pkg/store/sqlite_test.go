package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workshoplabs/workshop/pkg/ident"
	"github.com/workshoplabs/workshop/pkg/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func insertMessage(t *testing.T, st *SQLiteStore, ch, msgType string) *types.Envelope {
	t.Helper()
	env := &types.Envelope{
		ID:      ident.New(),
		TS:      float64(time.Now().UnixNano()) / 1e9,
		From:    "u",
		Channel: ch,
		Type:    msgType,
		V:       1,
		Body:    json.RawMessage(`{"n":1}`),
		Files:   []string{},
	}
	require.NoError(t, st.InsertMessage(env))
	return env
}

// TestMessageRoundTrip verifies an inserted envelope reads back intact
func TestMessageRoundTrip(t *testing.T) {
	st := newTestStore(t)

	env := &types.Envelope{
		ID:      ident.New(),
		TS:      1234.5,
		From:    "agent-1",
		Channel: "alpha",
		Type:    "note.create",
		V:       2,
		Body:    json.RawMessage(`{"k":"v"}`),
		Files:   []string{"sha256:" + fmt.Sprintf("%064d", 0)},
		ReplyTo: "01ARZ3NDEKTSV4RRFFQ69G5FAV",
	}
	require.NoError(t, st.InsertMessage(env))

	msgs, err := st.Messages("alpha", "", "", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	got := msgs[0]
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, env.TS, got.TS)
	assert.Equal(t, env.From, got.From)
	assert.Equal(t, env.Type, got.Type)
	assert.Equal(t, env.V, got.V)
	assert.JSONEq(t, `{"k":"v"}`, string(got.Body))
	assert.Equal(t, env.Files, got.Files)
	assert.Equal(t, env.ReplyTo, got.ReplyTo)
}

// TestMessagesSince verifies the strictly-greater-than resumption filter
func TestMessagesSince(t *testing.T) {
	st := newTestStore(t)

	m1 := insertMessage(t, st, "alpha", "t")
	m2 := insertMessage(t, st, "alpha", "t")
	m3 := insertMessage(t, st, "alpha", "t")

	msgs, err := st.Messages("alpha", m1.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	// DESC by id
	assert.Equal(t, m3.ID, msgs[0].ID)
	assert.Equal(t, m2.ID, msgs[1].ID)

	// The boundary id itself is excluded
	msgs, err = st.Messages("alpha", m3.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

// TestMessagesTypePrefix verifies the prefix filter and its literal matching
func TestMessagesTypePrefix(t *testing.T) {
	st := newTestStore(t)

	insertMessage(t, st, "alpha", "task.created")
	insertMessage(t, st, "alpha", "task.done")
	insertMessage(t, st, "alpha", "note.create")
	insertMessage(t, st, "alpha", "taskXcreated")

	msgs, err := st.Messages("alpha", "", "task.", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Contains(t, []string{"task.created", "task.done"}, m.Type)
	}
}

// TestMessagesLimit verifies the limit clause
func TestMessagesLimit(t *testing.T) {
	st := newTestStore(t)
	for i := 0; i < 10; i++ {
		insertMessage(t, st, "alpha", "t")
	}

	msgs, err := st.Messages("alpha", "", "", 3)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

// TestMessagesAfter verifies replay ordering and the global sentinel scope
func TestMessagesAfter(t *testing.T) {
	st := newTestStore(t)

	m1 := insertMessage(t, st, "alpha", "t")
	m2 := insertMessage(t, st, "alpha", "t")
	m3 := insertMessage(t, st, "beta", "t")

	msgs, err := st.MessagesAfter("alpha", m1.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, m2.ID, msgs[0].ID)

	// Sentinel scope is global, ascending
	msgs, err = st.MessagesAfter(types.AllChannels, m1.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, m2.ID, msgs[0].ID)
	assert.Equal(t, m3.ID, msgs[1].ID)
}

// TestChannels verifies distinct channel listing
func TestChannels(t *testing.T) {
	st := newTestStore(t)

	insertMessage(t, st, "beta", "t")
	insertMessage(t, st, "alpha", "t")
	insertMessage(t, st, "alpha", "t")

	chs, err := st.Channels()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, chs)
}

// TestClaimTaskCAS verifies the WHERE-status guard admits exactly one claimant
func TestClaimTaskCAS(t *testing.T) {
	st := newTestStore(t)

	now := float64(time.Now().UnixNano()) / 1e9
	task := &types.Task{
		ID:        ident.New(),
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: "creator",
		Status:    types.TaskOpen,
		Title:     "t",
		Context:   types.EmptyObject,
		Files:     []string{},
		Channel:   "tasks",
	}
	require.NoError(t, st.InsertTask(task))

	won, err := st.ClaimTask(task.ID, "a1", now)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = st.ClaimTask(task.ID, "a2", now)
	require.NoError(t, err)
	assert.False(t, won)

	got, err := st.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ClaimedBy)
	assert.Equal(t, types.TaskClaimed, got.Status)
}

// TestListTasksFilters verifies status and agent filtering
func TestListTasksFilters(t *testing.T) {
	st := newTestStore(t)
	now := float64(time.Now().UnixNano()) / 1e9

	mk := func(assigned string) *types.Task {
		task := &types.Task{
			ID: ident.New(), CreatedAt: now, UpdatedAt: now,
			CreatedBy: "c", AssignedTo: assigned, Status: types.TaskOpen,
			Title: "t", Context: types.EmptyObject, Files: []string{}, Channel: "tasks",
		}
		require.NoError(t, st.InsertTask(task))
		now += 0.001
		return task
	}

	t1 := mk("a1")
	t2 := mk("")
	_, err := st.ClaimTask(t2.ID, "a1", now)
	require.NoError(t, err)
	mk("a2")

	// agent filter matches assigned_to OR claimed_by
	got, err := st.ListTasks("", "a1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// newest first
	assert.Equal(t, t2.ID, got[0].ID)
	assert.Equal(t, t1.ID, got[1].ID)

	got, err = st.ListTasks(string(types.TaskOpen), "a1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, t1.ID, got[0].ID)
}

// TestPresenceUpsert verifies a second heartbeat overwrites the first
func TestPresenceUpsert(t *testing.T) {
	st := newTestStore(t)
	now := float64(time.Now().UnixNano()) / 1e9

	require.NoError(t, st.UpsertPresence(&types.Presence{
		AgentID: "a1", LastSeen: now - 10, Channels: []string{"alpha"},
	}))
	require.NoError(t, st.UpsertPresence(&types.Presence{
		AgentID: "a1", LastSeen: now, Channels: []string{"alpha", "beta"},
		Meta: json.RawMessage(`{"v":"2"}`),
	}))

	rows, err := st.LivePresence(now - 60)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a1", rows[0].AgentID)
	assert.Equal(t, []string{"alpha", "beta"}, rows[0].Channels)
	assert.JSONEq(t, `{"v":"2"}`, string(rows[0].Meta))
}

// TestLivePresenceCutoff excludes agents past the liveness window
func TestLivePresenceCutoff(t *testing.T) {
	st := newTestStore(t)
	now := float64(time.Now().UnixNano()) / 1e9

	require.NoError(t, st.UpsertPresence(&types.Presence{AgentID: "live", LastSeen: now}))
	require.NoError(t, st.UpsertPresence(&types.Presence{AgentID: "stale", LastSeen: now - 120}))

	rows, err := st.LivePresence(now - 60)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "live", rows[0].AgentID)
}

// TestPurge verifies timestamp-based bulk deletes
func TestPurge(t *testing.T) {
	st := newTestStore(t)
	now := float64(time.Now().UnixNano()) / 1e9

	old := &types.Envelope{
		ID: ident.NewAt(time.Now().Add(-48 * time.Hour)), TS: now - 48*3600,
		From: "u", Channel: "alpha", Type: "t", V: 1,
		Body: types.EmptyObject, Files: []string{},
	}
	require.NoError(t, st.InsertMessage(old))
	insertMessage(t, st, "alpha", "t")

	n, err := st.PurgeMessages(now - 24*3600)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := st.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

// TestGetTaskNotFound maps missing rows to ErrNotFound
func TestGetTaskNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetTask("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestTaskCounts groups by status
func TestTaskCounts(t *testing.T) {
	st := newTestStore(t)
	now := float64(time.Now().UnixNano()) / 1e9

	for i := 0; i < 3; i++ {
		task := &types.Task{
			ID: ident.New(), CreatedAt: now, UpdatedAt: now, CreatedBy: "c",
			Status: types.TaskOpen, Title: "t", Context: types.EmptyObject,
			Files: []string{}, Channel: "tasks",
		}
		require.NoError(t, st.InsertTask(task))
		if i == 0 {
			_, err := st.ClaimTask(task.ID, "a1", now)
			require.NoError(t, err)
		}
	}

	counts, err := st.TaskCounts()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[types.TaskOpen])
	assert.Equal(t, int64(1), counts[types.TaskClaimed])
}
