package hub

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/workshoplabs/workshop/pkg/ident"
	"github.com/workshoplabs/workshop/pkg/log"
	"github.com/workshoplabs/workshop/pkg/metrics"
	"github.com/workshoplabs/workshop/pkg/store"
	"github.com/workshoplabs/workshop/pkg/types"
)

const (
	// subscriberBuffer is the per-subscriber frame channel size. A full
	// buffer means the subscriber is not draining; it gets evicted rather
	// than stalling the fan-out.
	subscriberBuffer = 64

	// keepaliveInterval is how often comment-only frames are written
	keepaliveInterval = 20 * time.Second
)

// Subscriber is one attached push stream. Its lifetime runs from Subscribe
// to the first failed send or an orderly Unsubscribe.
type Subscriber struct {
	channel string

	mu     sync.Mutex
	closed bool
	frames chan Frame
}

// Frames returns the channel the stream handler drains
func (s *Subscriber) Frames() <-chan Frame {
	return s.frames
}

// Channel returns the channel name (or the all-channels sentinel)
func (s *Subscriber) Channel() string {
	return s.channel
}

// enqueue offers a frame without blocking. It returns false when the
// subscriber is closed or its buffer is full; either way the caller must
// treat the handle as dead.
func (s *Subscriber) enqueue(f Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- f:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
}

// Hub owns the subscriber registry and the publish pipeline. It is the only
// shared in-memory state in the process; the map and inner sets are mutated
// from any goroutine under mu, and fan-out iterates over snapshots.
type Hub struct {
	store  store.Store
	logger zerolog.Logger

	mu   sync.RWMutex
	subs map[string]map[*Subscriber]bool

	stopCh chan struct{}
}

// New creates a hub over the given durable log
func New(st store.Store) *Hub {
	return &Hub{
		store:  st,
		logger: log.WithComponent("hub"),
		subs:   make(map[string]map[*Subscriber]bool),
		stopCh: make(chan struct{}),
	}
}

// Start begins the keepalive loop
func (h *Hub) Start() {
	go h.keepaliveLoop()
}

// Stop stops the keepalive loop and detaches every subscriber
func (h *Hub) Stop() {
	close(h.stopCh)

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, set := range h.subs {
		for sub := range set {
			sub.close()
		}
		delete(h.subs, ch)
	}
	metrics.SubscribersActive.Set(0)
}

// Subscribe attaches a new handle to ch (which may be the sentinel)
func (h *Hub) Subscribe(ch string) *Subscriber {
	sub := &Subscriber{
		channel: ch,
		frames:  make(chan Frame, subscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[ch]
	if !ok {
		set = make(map[*Subscriber]bool)
		h.subs[ch] = set
	}
	set[sub] = true
	metrics.SubscribersActive.Inc()
	return sub
}

// Unsubscribe detaches a handle. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	set, ok := h.subs[sub.channel]
	removed := false
	if ok && set[sub] {
		delete(set, sub)
		removed = true
		if len(set) == 0 {
			delete(h.subs, sub.channel)
		}
	}
	h.mu.Unlock()

	if removed {
		metrics.SubscribersActive.Dec()
		sub.close()
	}
}

// SubscriberCount returns the number of attached handles
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// Publish runs the full pipeline: mint id and timestamp, apply defaults,
// persist the envelope, then fan it out. The envelope is mutated in place
// with the minted id/ts.
func (h *Hub) Publish(env *types.Envelope) error {
	if env.From == "" {
		return fmt.Errorf("missing from")
	}
	if env.Type == "" {
		return fmt.Errorf("missing type")
	}

	env.ID = ident.New()
	env.TS = float64(time.Now().UnixNano()) / 1e9
	if env.V == 0 {
		env.V = 1
	}
	if len(env.Body) == 0 {
		env.Body = types.EmptyObject
	}
	if env.Files == nil {
		env.Files = []string{}
	}

	// Persist before fan-out: subscribers observe durable messages only,
	// and the store's write serialization fixes the per-channel order.
	if err := h.store.InsertMessage(env); err != nil {
		return err
	}

	metrics.MessagesPublished.WithLabelValues(env.Channel).Inc()
	h.Broadcast(env)
	return nil
}

// Broadcast delivers an already-persisted envelope to every handle on its
// channel and, unless the channel is the sentinel itself, to every handle
// on the all-channels sentinel.
func (h *Hub) Broadcast(env *types.Envelope) {
	frame, err := EnvelopeFrame(env)
	if err != nil {
		h.logger.Error().Err(err).Str("id", env.ID).Msg("failed to encode frame")
		return
	}

	targets := h.snapshot(env.Channel)
	if env.Channel != types.AllChannels {
		targets = append(targets, h.snapshot(types.AllChannels)...)
	}

	for _, sub := range targets {
		h.send(sub, frame)
	}
}

// snapshot copies a channel's handle set so concurrent unsubscribes cannot
// corrupt the traversal
func (h *Hub) snapshot(ch string) []*Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.subs[ch]
	out := make([]*Subscriber, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	return out
}

// send enqueues a frame; a subscriber that cannot accept it is evicted
func (h *Hub) send(sub *Subscriber, frame Frame) {
	if sub.enqueue(frame) {
		metrics.FramesSent.Inc()
		return
	}
	metrics.FramesDropped.Inc()
	h.logger.Debug().Str("channel", sub.channel).Msg("evicting slow subscriber")
	h.Unsubscribe(sub)
}

func (h *Hub) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.keepalive()
		case <-h.stopCh:
			return
		}
	}
}

// keepalive writes a comment-only frame to every handle in every set
func (h *Hub) keepalive() {
	h.mu.RLock()
	all := make([]*Subscriber, 0)
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range all {
		h.send(sub, KeepaliveFrame)
	}
}
