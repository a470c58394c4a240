// Package realtime implements the room-based fan-out channel: an in-memory
// room table, a websocket gateway and the dispatcher that turns poll-changed
// signals into room-wide snapshot broadcasts.
package realtime

import "github.com/livepoll/livepoll/internal/domain"

const (
	EventPollDataUpdated = "pollDataUpdated"
	EventError           = "error"
)

// Event is one frame on the realtime channel, in either direction.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func PollUpdatedEvent(snapshot domain.PollSnapshot) Event {
	return Event{Event: EventPollDataUpdated, Data: snapshot}
}

func ErrorEvent(message string) Event {
	return Event{Event: EventError, Data: map[string]string{"message": message}}
}

// clientMessage is what sessions send us; Success rides along on vote events.
type clientMessage struct {
	Event   string `json:"event"`
	PollID  string `json:"pollId"`
	Success bool   `json:"success"`
}
