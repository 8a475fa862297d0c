package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/workshoplabs/workshop/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id       TEXT PRIMARY KEY,
	ts       REAL NOT NULL,
	sender   TEXT NOT NULL,
	ch       TEXT NOT NULL,
	type     TEXT NOT NULL,
	v        INTEGER NOT NULL DEFAULT 1,
	body     TEXT NOT NULL DEFAULT '{}',
	files    TEXT NOT NULL DEFAULT '[]',
	reply_to TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_ch ON messages(ch);
CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages(ts);
CREATE INDEX IF NOT EXISTS idx_messages_ch_type ON messages(ch, type);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	created_at  REAL NOT NULL,
	updated_at  REAL NOT NULL,
	created_by  TEXT NOT NULL,
	assigned_to TEXT,
	claimed_by  TEXT,
	claimed_at  REAL,
	status      TEXT NOT NULL DEFAULT 'open',
	title       TEXT NOT NULL,
	context     TEXT NOT NULL DEFAULT '{}',
	result      TEXT,
	files       TEXT NOT NULL DEFAULT '[]',
	ch          TEXT NOT NULL DEFAULT 'tasks'
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_ch ON tasks(ch);

CREATE TABLE IF NOT EXISTS presence (
	agent_id  TEXT PRIMARY KEY,
	last_seen REAL NOT NULL,
	channels  TEXT NOT NULL DEFAULT '[]',
	meta      TEXT NOT NULL DEFAULT '{}'
);
`

// SQLiteStore implements Store on a single local SQLite database.
// Writes are serialized through one connection; every correctness argument
// in the task engine leans on that serialization.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: SQLite serializes writes and the claim CAS
	// depends on exactly that.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type messageRow struct {
	ID      string         `db:"id"`
	TS      float64        `db:"ts"`
	Sender  string         `db:"sender"`
	Channel string         `db:"ch"`
	Type    string         `db:"type"`
	V       int            `db:"v"`
	Body    string         `db:"body"`
	Files   string         `db:"files"`
	ReplyTo sql.NullString `db:"reply_to"`
}

func (r *messageRow) envelope() *types.Envelope {
	env := &types.Envelope{
		ID:      r.ID,
		TS:      r.TS,
		From:    r.Sender,
		Channel: r.Channel,
		Type:    r.Type,
		V:       r.V,
		Body:    json.RawMessage(r.Body),
		ReplyTo: r.ReplyTo.String,
	}
	if err := json.Unmarshal([]byte(r.Files), &env.Files); err != nil || env.Files == nil {
		env.Files = []string{}
	}
	return env
}

// InsertMessage appends an envelope to the log
func (s *SQLiteStore) InsertMessage(env *types.Envelope) error {
	body := string(env.Body)
	if body == "" {
		body = "{}"
	}
	files, err := json.Marshal(env.Files)
	if err != nil {
		return fmt.Errorf("failed to encode files: %w", err)
	}

	var replyTo interface{}
	if env.ReplyTo != "" {
		replyTo = env.ReplyTo
	}

	_, err = s.db.Exec(
		`INSERT INTO messages (id, ts, sender, ch, type, v, body, files, reply_to)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		env.ID, env.TS, env.From, env.Channel, env.Type, env.V, body, string(files), replyTo,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// Messages returns up to limit envelopes for a channel, newest first.
// since filters strictly greater identifiers; typePrefix filters types
// by prefix match.
func (s *SQLiteStore) Messages(ch, since, typePrefix string, limit int) ([]*types.Envelope, error) {
	query := `SELECT * FROM messages WHERE ch = ?`
	args := []interface{}{ch}

	if since != "" {
		query += ` AND id > ?`
		args = append(args, since)
	}
	if typePrefix != "" {
		query += ` AND type LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(typePrefix)+"%")
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	return s.queryMessages(query, args...)
}

// AllMessages returns up to limit envelopes across all channels, newest first
func (s *SQLiteStore) AllMessages(limit int) ([]*types.Envelope, error) {
	return s.queryMessages(`SELECT * FROM messages ORDER BY id DESC LIMIT ?`, limit)
}

// MessagesAfter returns every envelope with id > since in ascending id order.
// ch may be the all-channels sentinel, in which case the scope is global.
func (s *SQLiteStore) MessagesAfter(ch, since string) ([]*types.Envelope, error) {
	if ch == types.AllChannels {
		return s.queryMessages(
			`SELECT * FROM messages WHERE id > ? ORDER BY id ASC`, since)
	}
	return s.queryMessages(
		`SELECT * FROM messages WHERE ch = ? AND id > ? ORDER BY id ASC`, ch, since)
}

func (s *SQLiteStore) queryMessages(query string, args ...interface{}) ([]*types.Envelope, error) {
	var rows []messageRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	envs := make([]*types.Envelope, len(rows))
	for i := range rows {
		envs[i] = rows[i].envelope()
	}
	return envs, nil
}

// Channels returns the distinct channel names present in the log
func (s *SQLiteStore) Channels() ([]string, error) {
	var chs []string
	if err := s.db.Select(&chs, `SELECT DISTINCT ch FROM messages ORDER BY ch`); err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	return chs, nil
}

// MessageCount returns the total number of persisted messages
func (s *SQLiteStore) MessageCount() (int64, error) {
	var n int64
	if err := s.db.Get(&n, `SELECT COUNT(*) FROM messages`); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

type taskRow struct {
	ID         string          `db:"id"`
	CreatedAt  float64         `db:"created_at"`
	UpdatedAt  float64         `db:"updated_at"`
	CreatedBy  string          `db:"created_by"`
	AssignedTo sql.NullString  `db:"assigned_to"`
	ClaimedBy  sql.NullString  `db:"claimed_by"`
	ClaimedAt  sql.NullFloat64 `db:"claimed_at"`
	Status     string          `db:"status"`
	Title      string          `db:"title"`
	Context    string          `db:"context"`
	Result     sql.NullString  `db:"result"`
	Files      string          `db:"files"`
	Channel    string          `db:"ch"`
}

func (r *taskRow) task() *types.Task {
	task := &types.Task{
		ID:         r.ID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		CreatedBy:  r.CreatedBy,
		AssignedTo: r.AssignedTo.String,
		ClaimedBy:  r.ClaimedBy.String,
		ClaimedAt:  r.ClaimedAt.Float64,
		Status:     types.TaskStatus(r.Status),
		Title:      r.Title,
		Context:    json.RawMessage(r.Context),
		Channel:    r.Channel,
	}
	if r.Result.Valid {
		task.Result = json.RawMessage(r.Result.String)
	}
	if err := json.Unmarshal([]byte(r.Files), &task.Files); err != nil || task.Files == nil {
		task.Files = []string{}
	}
	return task
}

// InsertTask creates a new task row
func (s *SQLiteStore) InsertTask(task *types.Task) error {
	context := string(task.Context)
	if context == "" {
		context = "{}"
	}
	files, err := json.Marshal(task.Files)
	if err != nil {
		return fmt.Errorf("failed to encode files: %w", err)
	}

	var assignedTo interface{}
	if task.AssignedTo != "" {
		assignedTo = task.AssignedTo
	}

	_, err = s.db.Exec(
		`INSERT INTO tasks (id, created_at, updated_at, created_by, assigned_to, status, title, context, files, ch)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.CreatedAt, task.UpdatedAt, task.CreatedBy, assignedTo,
		string(task.Status), task.Title, context, string(files), task.Channel,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetTask returns a task by id, or ErrNotFound
func (s *SQLiteStore) GetTask(id string) (*types.Task, error) {
	var row taskRow
	err := s.db.Get(&row, `SELECT * FROM tasks WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return row.task(), nil
}

// ListTasks returns tasks filtered by status and/or agent, newest first.
// The agent filter deliberately matches either assigned_to or claimed_by.
func (s *SQLiteStore) ListTasks(status, agent string) ([]*types.Task, error) {
	query := `SELECT * FROM tasks WHERE 1=1`
	args := []interface{}{}

	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if agent != "" {
		query += ` AND (assigned_to = ? OR claimed_by = ?)`
		args = append(args, agent, agent)
	}
	query += ` ORDER BY created_at DESC`

	var rows []taskRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	tasks := make([]*types.Task, len(rows))
	for i := range rows {
		tasks[i] = rows[i].task()
	}
	return tasks, nil
}

// ClaimTask performs the guarded open→claimed transition. The WHERE
// status='open' clause is the correctness primitive: under the store's
// write serialization exactly one concurrent claimant mutates the row.
// Returns false when this claimant's UPDATE was a no-op.
func (s *SQLiteStore) ClaimTask(id, agent string, now float64) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE tasks SET status = 'claimed', claimed_by = ?, claimed_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'open'`,
		agent, now, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FinishTask performs claimed→done, recording result and files
func (s *SQLiteStore) FinishTask(id string, result, files []byte, now float64) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = 'done', result = ?, files = ?, updated_at = ? WHERE id = ?`,
		string(result), string(files), now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish task: %w", err)
	}
	return nil
}

// ReleaseTask performs claimed→open, clearing claimed_by/claimed_at together
func (s *SQLiteStore) ReleaseTask(id string, now float64) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = 'open', claimed_by = NULL, claimed_at = NULL, updated_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to release task: %w", err)
	}
	return nil
}

// TouchTask bumps updated_at without changing any other column
func (s *SQLiteStore) TouchTask(id string, now float64) error {
	_, err := s.db.Exec(`UPDATE tasks SET updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("failed to touch task: %w", err)
	}
	return nil
}

// TaskCounts returns the number of tasks in each status
func (s *SQLiteStore) TaskCounts() (map[types.TaskStatus]int64, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.TaskStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[types.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

type presenceRow struct {
	AgentID  string  `db:"agent_id"`
	LastSeen float64 `db:"last_seen"`
	Channels string  `db:"channels"`
	Meta     string  `db:"meta"`
}

func (r *presenceRow) presence() *types.Presence {
	p := &types.Presence{
		AgentID:  r.AgentID,
		LastSeen: r.LastSeen,
		Meta:     json.RawMessage(r.Meta),
	}
	if err := json.Unmarshal([]byte(r.Channels), &p.Channels); err != nil || p.Channels == nil {
		p.Channels = []string{}
	}
	return p
}

// UpsertPresence overwrites the heartbeat row for an agent
func (s *SQLiteStore) UpsertPresence(p *types.Presence) error {
	channels, err := json.Marshal(p.Channels)
	if err != nil {
		return fmt.Errorf("failed to encode channels: %w", err)
	}
	meta := string(p.Meta)
	if meta == "" {
		meta = "{}"
	}

	_, err = s.db.Exec(
		`INSERT INTO presence (agent_id, last_seen, channels, meta) VALUES (?, ?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET last_seen = excluded.last_seen,
		 channels = excluded.channels, meta = excluded.meta`,
		p.AgentID, p.LastSeen, string(channels), meta,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert presence: %w", err)
	}
	return nil
}

// LivePresence returns rows with last_seen strictly after cutoff
func (s *SQLiteStore) LivePresence(cutoff float64) ([]*types.Presence, error) {
	var rows []presenceRow
	err := s.db.Select(&rows,
		`SELECT * FROM presence WHERE last_seen > ? ORDER BY agent_id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query presence: %w", err)
	}
	out := make([]*types.Presence, len(rows))
	for i := range rows {
		out[i] = rows[i].presence()
	}
	return out, nil
}

// PurgeMessages deletes messages with ts earlier than before
func (s *SQLiteStore) PurgeMessages(before float64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE ts < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge messages: %w", err)
	}
	return res.RowsAffected()
}

// PurgePresence deletes presence rows with last_seen earlier than before
func (s *SQLiteStore) PurgePresence(before float64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM presence WHERE last_seen < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge presence: %w", err)
	}
	return res.RowsAffected()
}

// escapeLike escapes LIKE metacharacters so a type prefix matches literally
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
