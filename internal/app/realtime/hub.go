package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/livepoll/livepoll/internal/domain"
	"github.com/livepoll/livepoll/internal/platform/metrics"
)

// RoomTable is the injectable routing component: pollID -> set of sessions.
// It is strictly in-memory and per-process; cross-instance fan-out happens via
// the signal backplane, not here.
type RoomTable interface {
	Join(sessionID string, pollID domain.PollID)
	Leave(sessionID string, pollID domain.PollID)
	Broadcast(pollID domain.PollID, ev Event) int
	Send(sessionID string, ev Event) bool
	Disconnect(sessionID string)
}

// Session is one connected realtime client. Events delivered to it come out
// of Events() in the order they were broadcast.
type Session struct {
	ID     string
	events chan Event
}

func (s *Session) Events() <-chan Event {
	return s.events
}

// Hub owns the room table. All maps are guarded by mu; event delivery is a
// non-blocking channel send so one stalled session cannot hold up a room.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[domain.PollID]map[string]*Session
	buffer   int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		sessions: make(map[string]*Session),
		rooms:    make(map[domain.PollID]map[string]*Session),
		buffer:   buffer,
	}
}

// Register creates a session and returns it. The caller owns draining
// Events() until it calls Disconnect.
func (h *Hub) Register() *Session {
	session := &Session{
		ID:     uuid.New().String(),
		events: make(chan Event, h.buffer),
	}

	h.mu.Lock()
	h.sessions[session.ID] = session
	h.mu.Unlock()

	metrics.IncConnectedSessions()
	return session
}

// Join is idempotent: joining a room the session is already in is a no-op,
// and joining a second poll does not leave the first.
func (h *Hub) Join(sessionID string, pollID domain.PollID) {
	if pollID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	session, ok := h.sessions[sessionID]
	if !ok {
		return
	}

	room, ok := h.rooms[pollID]
	if !ok {
		room = make(map[string]*Session)
		h.rooms[pollID] = room
	}
	room[sessionID] = session
}

func (h *Hub) Leave(sessionID string, pollID domain.PollID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoom(sessionID, pollID)
}

// Broadcast pushes ev to every session in the poll's room and reports how
// many were reached. Sessions with a full buffer drop the event rather than
// block the caller.
func (h *Hub) Broadcast(pollID domain.PollID, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[pollID]
	delivered := 0
	for _, session := range room {
		select {
		case session.events <- ev:
			delivered++
		default:
			metrics.IncBroadcastDrop()
		}
	}
	return delivered
}

// Send targets a single session, used for error events that must not reach
// the rest of the room. The read lock is held across the send: Disconnect
// closes the channel under the write lock, so a send can never hit a closed
// channel.
func (h *Hub) Send(sessionID string, ev Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	session, ok := h.sessions[sessionID]
	if !ok {
		return false
	}

	select {
	case session.events <- ev:
		return true
	default:
		metrics.IncBroadcastDrop()
		return false
	}
}

// Disconnect removes the session from every room it joined; no further events
// are delivered to it.
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	session, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(h.sessions, sessionID)

	for pollID := range h.rooms {
		h.removeFromRoom(sessionID, pollID)
	}

	close(session.events)
	metrics.DecConnectedSessions()
}

// RoomSize reports the number of sessions joined to a poll's room.
func (h *Hub) RoomSize(pollID domain.PollID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[pollID])
}

// removeFromRoom expects mu to be held.
func (h *Hub) removeFromRoom(sessionID string, pollID domain.PollID) {
	room, ok := h.rooms[pollID]
	if !ok {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(h.rooms, pollID)
	}
}

var _ RoomTable = (*Hub)(nil)
