package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/workshoplabs/workshop/pkg/blob"
	"github.com/workshoplabs/workshop/pkg/types"
)

const (
	// historyCap is the hard limit on history page size
	historyCap = 200

	// presenceTTL is the liveness window for agents
	presenceTTL = 60 * time.Second
)

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// handlePublish accepts an envelope for the channel named in the URL
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var env types.Envelope
	if err := decodeJSON(r, &env); err != nil {
		writeError(w, err)
		return
	}
	if env.From == "" {
		writeError(w, badRequest("missing from"))
		return
	}
	if env.Type == "" {
		writeError(w, badRequest("missing type"))
		return
	}

	// The URL is authoritative for the channel
	env.Channel = chi.URLParam(r, "ch")

	if err := s.hub.Publish(&env); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id": env.ID,
		"ts": env.TS,
	})
}

// handleChannelHistory returns recent channel messages as newline-delimited
// JSON in chronological order
func (s *Server) handleChannelHistory(w http.ResponseWriter, r *http.Request) {
	ch := chi.URLParam(r, "ch")
	since := r.URL.Query().Get("since")
	typePrefix := r.URL.Query().Get("type")
	n := queryInt(r, "n", historyCap)

	msgs, err := s.store.Messages(ch, since, typePrefix, n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeNDJSON(w, msgs)
}

// handleGlobalHistory returns recent messages across every channel
func (s *Server) handleGlobalHistory(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", 100)

	msgs, err := s.store.AllMessages(n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeNDJSON(w, msgs)
}

// writeNDJSON emits envelopes one JSON object per line, oldest first.
// The store returns them newest first; the wire order is chronological.
func writeNDJSON(w http.ResponseWriter, msgs []*types.Envelope) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for i := len(msgs) - 1; i >= 0; i-- {
		_ = enc.Encode(msgs[i])
	}
}

// queryInt parses a positive integer query parameter, applying the default
// and the hard cap
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > historyCap {
		return historyCap
	}
	return n
}

// handleChannels lists distinct channel names
func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	chs, err := s.store.Channels()
	if err != nil {
		writeError(w, err)
		return
	}
	if chs == nil {
		chs = []string{}
	}
	writeJSON(w, http.StatusOK, chs)
}

// handleFileUpload stores a blob and returns its digest
func (s *Server) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	// Reject declared-oversize uploads before reading the body
	if r.ContentLength > s.blobs.MaxBytes() {
		writeError(w, blob.ErrTooLarge)
		return
	}

	digest, size, err := s.blobs.Write(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"hash": digest,
		"size": size,
	})
}

// handleFileDownload streams a blob by digest
func (s *Server) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "*")

	rc, err := s.blobs.Open(digest)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

// handlePresenceBeat upserts an agent heartbeat
func (s *Server) handlePresenceBeat(w http.ResponseWriter, r *http.Request) {
	var p types.Presence
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}
	if p.AgentID == "" {
		writeError(w, badRequest("missing agent_id"))
		return
	}

	p.LastSeen = nowSeconds()
	if p.Channels == nil {
		p.Channels = []string{}
	}
	if len(p.Meta) == 0 {
		p.Meta = types.EmptyObject
	}

	if err := s.store.UpsertPresence(&p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handlePresenceList returns agents seen within the liveness window
func (s *Server) handlePresenceList(w http.ResponseWriter, r *http.Request) {
	cutoff := nowSeconds() - presenceTTL.Seconds()
	agents, err := s.store.LivePresence(cutoff)
	if err != nil {
		writeError(w, err)
		return
	}
	if agents == nil {
		agents = []*types.Presence{}
	}
	writeJSON(w, http.StatusOK, agents)
}

// handleStatus reports counts and uptime
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	msgCount, err := s.store.MessageCount()
	if err != nil {
		writeError(w, err)
		return
	}
	taskCounts, err := s.store.TaskCounts()
	if err != nil {
		writeError(w, err)
		return
	}
	chs, err := s.store.Channels()
	if err != nil {
		writeError(w, err)
		return
	}
	agents, err := s.store.LivePresence(nowSeconds() - presenceTTL.Seconds())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":     Version,
		"uptime_s":    int64(time.Since(s.startedAt).Seconds()),
		"messages":    msgCount,
		"channels":    len(chs),
		"tasks":       taskCounts,
		"subscribers": s.hub.SubscriberCount(),
		"agents":      len(agents),
	})
}
