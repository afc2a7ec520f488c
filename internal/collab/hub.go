package collab

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"podnotes/api/internal/outline"
)

const defaultBufferSize = 256

// Relay forwards events to hubs in other processes.
type Relay interface {
	Publish(ctx context.Context, evt Event) error
	Listen(ctx context.Context, deliver func(Event)) (stop func(), err error)
}

// Presence is one session's current focus.
type Presence struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	UUID      string `json:"uuid"`
}

// Subscriber is one session's membership in a container's room.
type Subscriber struct {
	ID          string
	UserID      string
	ContainerID string

	events chan Event
	resync chan struct{}
	stale  atomic.Bool
}

// Events is closed when the subscriber leaves.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Resync fires once the outbox overflowed; the session must reload the
// outline and then call ClearStale.
func (s *Subscriber) Resync() <-chan struct{} {
	return s.resync
}

func (s *Subscriber) Stale() bool {
	return s.stale.Load()
}

func (s *Subscriber) ClearStale() {
	s.stale.Store(false)
}

// offer queues evt without blocking and reports whether this call found
// the outbox full. Stale subscribers receive nothing until cleared.
func (s *Subscriber) offer(evt Event) (overflowed bool) {
	if s.stale.Load() {
		return false
	}
	select {
	case s.events <- evt:
		return false
	default:
		s.markStale()
		return true
	}
}

func (s *Subscriber) markStale() {
	s.stale.Store(true)
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

type room struct {
	mu          sync.Mutex
	subscribers map[string]*Subscriber
	presence    map[string]Presence
	// seq is the highest commit sequence delivered to the room.
	seq int64
}

type commitLock struct {
	mu   sync.Mutex
	refs int
}

// Hub keeps one room per container with at least one connected session.
// Lock order is Hub.mu before room.mu.
type Hub struct {
	mu         sync.Mutex
	rooms      map[string]*room
	commits    map[string]*commitLock
	relay      Relay
	bufferSize int
	log        zerolog.Logger
}

func NewHub(relay Relay, bufferSize int, logger zerolog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		rooms:      make(map[string]*room),
		commits:    make(map[string]*commitLock),
		relay:      relay,
		bufferSize: bufferSize,
		log:        logger,
	}
}

// StartRelay subscribes to events from other processes until ctx ends.
func (h *Hub) StartRelay(ctx context.Context) (func(), error) {
	if h.relay == nil {
		return func() {}, nil
	}
	return h.relay.Listen(ctx, h.Deliver)
}

func (h *Hub) Join(containerID, sessionID, userID string) *Subscriber {
	sub := &Subscriber{
		ID:          sessionID,
		UserID:      userID,
		ContainerID: containerID,
		events:      make(chan Event, h.bufferSize),
		resync:      make(chan struct{}, 1),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[containerID]
	if !ok {
		r = &room{subscribers: make(map[string]*Subscriber), presence: make(map[string]Presence)}
		h.rooms[containerID] = r
		h.log.Debug().Str("container_id", containerID).Msg("room opened")
	}
	r.mu.Lock()
	if previous, exists := r.subscribers[sessionID]; exists {
		close(previous.events)
	}
	r.subscribers[sessionID] = sub
	r.mu.Unlock()
	return sub
}

// Leave removes the subscriber, clears its focus and closes the room when
// it was the last one.
func (h *Hub) Leave(ctx context.Context, sub *Subscriber) {
	h.mu.Lock()
	r, ok := h.rooms[sub.ContainerID]
	if !ok {
		h.mu.Unlock()
		return
	}
	r.mu.Lock()
	current, member := r.subscribers[sub.ID]
	if !member || current != sub {
		r.mu.Unlock()
		h.mu.Unlock()
		return
	}
	delete(r.subscribers, sub.ID)
	close(sub.events)
	focus, focused := r.presence[sub.ID]
	delete(r.presence, sub.ID)
	empty := len(r.subscribers) == 0
	r.mu.Unlock()
	if empty {
		delete(h.rooms, sub.ContainerID)
		h.log.Debug().Str("container_id", sub.ContainerID).Msg("room closed")
	}
	h.mu.Unlock()

	if focused {
		h.Publish(ctx, Event{
			Type:        EventBlur,
			ContainerID: sub.ContainerID,
			Origin:      sub.ID,
			UUID:        focus.UUID,
			UserID:      focus.UserID,
		})
	}
}

// Commit runs apply under the container's commit lock and publishes the
// committed diff before the lock is released, so sessions see one
// container's changes in the order the store committed them.
func (h *Hub) Commit(ctx context.Context, containerID, origin string, apply func(context.Context) (outline.Result, error)) (outline.Result, error) {
	unlock := h.lockCommits(containerID)
	defer unlock()

	result, err := apply(ctx)
	if err != nil {
		return outline.Result{}, err
	}
	for _, evt := range ChangeEvents(origin, result) {
		h.Publish(ctx, evt)
	}
	return result, nil
}

func (h *Hub) lockCommits(containerID string) func() {
	h.mu.Lock()
	lock, ok := h.commits[containerID]
	if !ok {
		lock = &commitLock{}
		h.commits[containerID] = lock
	}
	lock.refs++
	h.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		h.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(h.commits, containerID)
		}
		h.mu.Unlock()
	}
}

// Publish delivers evt to every local session except its origin and hands
// it to the relay for other processes.
func (h *Hub) Publish(ctx context.Context, evt Event) {
	h.Deliver(evt)
	if h.relay == nil {
		return
	}
	if err := h.relay.Publish(ctx, evt); err != nil {
		h.log.Warn().Err(err).Str("container_id", evt.ContainerID).Str("type", evt.Type).Msg("relay publish failed")
	}
}

// Deliver fans evt out to the local sessions only. It never blocks: a
// session whose outbox is full is marked stale and must resynchronise.
func (h *Hub) Deliver(evt Event) {
	h.mu.Lock()
	r, ok := h.rooms[evt.ContainerID]
	h.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch evt.Type {
	case EventFocus:
		r.presence[evt.Origin] = Presence{SessionID: evt.Origin, UserID: evt.UserID, UUID: evt.UUID}
	case EventBlur:
		if current, ok := r.presence[evt.Origin]; ok && current.UUID == evt.UUID {
			delete(r.presence, evt.Origin)
		}
	}
	if evt.Seq > 0 {
		if evt.Seq < r.seq {
			// Another process committed this before an event already
			// delivered; applying it now would undo newer state.
			for id, sub := range r.subscribers {
				if id != evt.Origin {
					sub.markStale()
				}
			}
			h.log.Debug().Int64("seq", evt.Seq).Int64("delivered", r.seq).Str("container_id", evt.ContainerID).Msg("out-of-order commit, room needs resync")
			return
		}
		r.seq = evt.Seq
	}
	for id, sub := range r.subscribers {
		if id == evt.Origin {
			continue
		}
		if sub.offer(evt) {
			h.log.Debug().Str("session_id", id).Str("container_id", evt.ContainerID).Msg("outbox full, session needs resync")
		}
	}
}

// Focus records that sub's user is editing uuid and tells the others.
func (h *Hub) Focus(ctx context.Context, sub *Subscriber, uuid string) {
	h.Publish(ctx, Event{Type: EventFocus, ContainerID: sub.ContainerID, Origin: sub.ID, UUID: uuid, UserID: sub.UserID})
}

func (h *Hub) Blur(ctx context.Context, sub *Subscriber, uuid string) {
	h.Publish(ctx, Event{Type: EventBlur, ContainerID: sub.ContainerID, Origin: sub.ID, UUID: uuid, UserID: sub.UserID})
}

// Presence lists the focus of every session known in the container,
// ordered by session id.
func (h *Hub) Presence(containerID string) []Presence {
	h.mu.Lock()
	r, ok := h.rooms[containerID]
	h.mu.Unlock()
	if !ok {
		return []Presence{}
	}
	r.mu.Lock()
	out := make([]Presence, 0, len(r.presence))
	for _, p := range r.presence {
		out = append(out, p)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Sessions reports how many local sessions are connected to the container.
func (h *Hub) Sessions(containerID string) int {
	h.mu.Lock()
	r, ok := h.rooms[containerID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}

// Rooms reports how many containers have a live room.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}
