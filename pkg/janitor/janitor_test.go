package janitor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workshoplabs/workshop/pkg/ident"
	"github.com/workshoplabs/workshop/pkg/store"
	"github.com/workshoplabs/workshop/pkg/types"
)

func insertMessageAt(t *testing.T, st store.Store, ch string, age time.Duration) string {
	t.Helper()
	ts := time.Now().Add(-age)
	env := &types.Envelope{
		ID:      ident.NewAt(ts),
		TS:      float64(ts.UnixNano()) / 1e9,
		From:    "u",
		Channel: ch,
		Type:    "t",
		V:       1,
		Body:    types.EmptyObject,
		Files:   []string{},
	}
	require.NoError(t, st.InsertMessage(env))
	return env.ID
}

// TestSweepMessages deletes messages older than the retention window
func TestSweepMessages(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "janitor.db"))
	require.NoError(t, err)
	defer st.Close()

	oldID := insertMessageAt(t, st, "alpha", 40*24*time.Hour)
	freshID := insertMessageAt(t, st, "alpha", time.Minute)

	New(st, 30).Sweep()

	msgs, err := st.Messages("alpha", "", "", 100)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, freshID, msgs[0].ID)
	assert.NotEqual(t, oldID, msgs[0].ID)
}

// TestSweepPresence deletes rows dead for more than seven days
func TestSweepPresence(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "janitor.db"))
	require.NoError(t, err)
	defer st.Close()

	now := float64(time.Now().UnixNano()) / 1e9
	require.NoError(t, st.UpsertPresence(&types.Presence{
		AgentID: "dead", LastSeen: now - 8*86400,
	}))
	require.NoError(t, st.UpsertPresence(&types.Presence{
		AgentID: "idle", LastSeen: now - 3600,
	}))

	New(st, 30).Sweep()

	// Query with a cutoff far in the past so both surviving rows would show
	rows, err := st.LivePresence(0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "idle", rows[0].AgentID)
}
