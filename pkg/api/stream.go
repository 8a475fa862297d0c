package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/workshoplabs/workshop/pkg/hub"
	"github.com/workshoplabs/workshop/pkg/types"
)

// resumptionHeader carries the last identifier a reconnecting subscriber
// observed; the server replays strictly greater ids before going live
const resumptionHeader = "Last-Event-ID"

// setStreamHeaders commits the push-stream header block. It must run
// before any payload byte; the proxy-buffering hint is non-optional or
// reverse proxies buffer the stream into invisibility.
func setStreamHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Access-Control-Allow-Origin", "*")
}

// handleSubscribeHead answers HEAD with the stream headers and no body
func (s *Server) handleSubscribeHead(w http.ResponseWriter, r *http.Request) {
	setStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// handleSubscribe attaches a push stream to a single channel
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, chi.URLParam(r, "ch"))
}

// handleSubscribeAll attaches a push stream to the all-channels sentinel
func (s *Server) handleSubscribeAll(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, types.AllChannels)
}

// stream implements gap recovery and live attachment. If the request
// carries a resumption id, every logged envelope with a strictly greater
// id in scope is replayed before the handle joins the registry. A message
// published between the replay query and the subscribe may be delivered
// twice; clients deduplicate by id.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, ch string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, badRequest("streaming unsupported"))
		return
	}

	setStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if since := r.Header.Get(resumptionHeader); since != "" {
		replay, err := s.store.MessagesAfter(ch, since)
		if err != nil {
			// Headers are committed; nothing useful can be sent. The client
			// reconnects with the same resumption id.
			s.logger.Error().Err(err).Str("channel", ch).Msg("replay query failed")
			return
		}
		for _, env := range replay {
			frame, err := hub.EnvelopeFrame(env)
			if err != nil {
				continue
			}
			if _, err := w.Write(frame.Encode()); err != nil {
				return
			}
		}
		flusher.Flush()
	}

	sub := s.hub.Subscribe(ch)
	defer s.hub.Unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case frame, open := <-sub.Frames():
			if !open {
				// Evicted by the hub
				return
			}
			if _, err := w.Write(frame.Encode()); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
