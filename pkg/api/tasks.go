package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/workshoplabs/workshop/pkg/tasks"
)

// taskAction is the common request shape of the transition endpoints
type taskAction struct {
	From   string          `json:"from"`
	Note   json.RawMessage `json:"note"`
	Reason string          `json:"reason"`
	Result json.RawMessage `json:"result"`
	Files  []string        `json:"files"`
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var p tasks.CreateParams
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}

	task, err := s.tasks.Create(p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": task.ID})
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")

	// "for" matches either assigned_to or claimed_by; the OR is deliberate.
	// "assigned" and "claimed" narrow to a single column.
	var list interface{}
	var err error
	switch {
	case q.Get("assigned") != "":
		list, err = s.filterTasks(status, q.Get("assigned"), "", "")
	case q.Get("claimed") != "":
		list, err = s.filterTasks(status, "", q.Get("claimed"), "")
	default:
		list, err = s.filterTasks(status, "", "", q.Get("for"))
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// filterTasks applies the exact-column filters on top of the store query
func (s *Server) filterTasks(status, assigned, claimed, either string) (interface{}, error) {
	all, err := s.tasks.List(status, either)
	if err != nil {
		return nil, err
	}

	if assigned == "" && claimed == "" {
		return all, nil
	}

	filtered := all[:0]
	for _, t := range all {
		if assigned != "" && t.AssignedTo != assigned {
			continue
		}
		if claimed != "" && t.ClaimedBy != claimed {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered, nil
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleTaskClaim(w http.ResponseWriter, r *http.Request) {
	var a taskAction
	if err := decodeJSON(r, &a); err != nil {
		writeError(w, err)
		return
	}

	task, err := s.tasks.Claim(chi.URLParam(r, "id"), a.From)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":         task.ID,
		"status":     task.Status,
		"claimed-by": task.ClaimedBy,
	})
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	var a taskAction
	if err := decodeJSON(r, &a); err != nil {
		writeError(w, err)
		return
	}

	task, err := s.tasks.Update(chi.URLParam(r, "id"), a.From, a.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": task.ID})
}

func (s *Server) handleTaskDone(w http.ResponseWriter, r *http.Request) {
	var a taskAction
	if err := decodeJSON(r, &a); err != nil {
		writeError(w, err)
		return
	}

	task, err := s.tasks.Done(chi.URLParam(r, "id"), a.From, a.Result, a.Files)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     task.ID,
		"status": task.Status,
	})
}

func (s *Server) handleTaskAbandon(w http.ResponseWriter, r *http.Request) {
	var a taskAction
	if err := decodeJSON(r, &a); err != nil {
		writeError(w, err)
		return
	}

	task, err := s.tasks.Abandon(chi.URLParam(r, "id"), a.From)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     task.ID,
		"status": task.Status,
	})
}

func (s *Server) handleTaskInterrupt(w http.ResponseWriter, r *http.Request) {
	var a taskAction
	if err := decodeJSON(r, &a); err != nil {
		writeError(w, err)
		return
	}

	task, err := s.tasks.Interrupt(chi.URLParam(r, "id"), a.From, a.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        task.ID,
		"signalled": true,
	})
}
