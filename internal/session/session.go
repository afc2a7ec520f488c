// Package session connects one editor to a container: operations go in
// through the outline engine, peers' changes come out of the hub.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"podnotes/api/internal/collab"
	"podnotes/api/internal/outline"
	"podnotes/api/internal/store"
	"podnotes/api/internal/util"
)

type Engine interface {
	Apply(ctx context.Context, containerID, actor string, op outline.Operation) (outline.Result, error)
	Snapshot(ctx context.Context, containerID string) ([]store.Node, error)
}

type Hub interface {
	Join(containerID, sessionID, userID string) *collab.Subscriber
	Leave(ctx context.Context, sub *collab.Subscriber)
	Commit(ctx context.Context, containerID, origin string, apply func(context.Context) (outline.Result, error)) (outline.Result, error)
	Focus(ctx context.Context, sub *collab.Subscriber, uuid string)
	Blur(ctx context.Context, sub *collab.Subscriber, uuid string)
	Presence(containerID string) []collab.Presence
}

type Session struct {
	ID          string
	UserID      string
	ContainerID string

	engine    Engine
	hub       Hub
	sub       *collab.Subscriber
	log       zerolog.Logger
	closeOnce sync.Once
}

// Open joins the container's room and returns the session together with
// the full outline. Joining first means no change committed after the
// snapshot can be missed; anything older is dropped by version.
func Open(ctx context.Context, engine Engine, hub Hub, containerID, userID string, logger zerolog.Logger) (*Session, []store.Node, error) {
	s := &Session{
		ID:          util.NewID("ses"),
		UserID:      userID,
		ContainerID: containerID,
		engine:      engine,
		hub:         hub,
	}
	s.log = logger.With().Str("session_id", s.ID).Str("container_id", containerID).Logger()
	s.sub = hub.Join(containerID, s.ID, userID)

	nodes, err := engine.Snapshot(ctx, containerID)
	if err != nil {
		hub.Leave(ctx, s.sub)
		return nil, nil, err
	}
	s.log.Debug().Int("nodes", len(nodes)).Msg("session opened")
	return s, nodes, nil
}

// Submit applies op and broadcasts the committed diff to the other
// sessions. A rejected operation is reported to the caller only.
func (s *Session) Submit(ctx context.Context, op outline.Operation) (outline.Result, error) {
	return s.hub.Commit(ctx, s.ContainerID, s.ID, func(ctx context.Context) (outline.Result, error) {
		return s.engine.Apply(ctx, s.ContainerID, s.UserID, op)
	})
}

func (s *Session) Focus(ctx context.Context, uuid string) {
	s.hub.Focus(ctx, s.sub, uuid)
}

func (s *Session) Blur(ctx context.Context, uuid string) {
	s.hub.Blur(ctx, s.sub, uuid)
}

// Receive yields peers' events; it is closed when the session closes.
func (s *Session) Receive() <-chan collab.Event {
	return s.sub.Events()
}

// NeedsResync fires when events were dropped for this session.
func (s *Session) NeedsResync() <-chan struct{} {
	return s.sub.Resync()
}

// Resync re-enables delivery and returns the full outline.
func (s *Session) Resync(ctx context.Context) ([]store.Node, error) {
	s.sub.ClearStale()
	return s.engine.Snapshot(ctx, s.ContainerID)
}

func (s *Session) Presence() []collab.Presence {
	return s.hub.Presence(s.ContainerID)
}

func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.hub.Leave(ctx, s.sub)
		s.log.Debug().Msg("session closed")
	})
}
