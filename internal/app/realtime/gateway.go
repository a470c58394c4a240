package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livepoll/livepoll/internal/domain"
	"github.com/livepoll/livepoll/internal/platform/metrics"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var (
	pingInterval = 15 * time.Second
	// pongWait must outlast at least one ping round trip; a peer that stops
	// answering pings is dropped when the deadline expires.
	pongWait = 2 * pingInterval
)

// Gateway upgrades HTTP connections to websocket sessions and routes frames
// between the client and the hub. Client vote/like frames request a
// re-broadcast through the same signal path the ledgers use, which keeps a
// single ordering authority per poll.
type Gateway struct {
	hub     *Hub
	signals domain.PollEvents
	logger  *slog.Logger
}

func NewGateway(hub *Hub, signals domain.PollEvents, logger *slog.Logger) *Gateway {
	return &Gateway{
		hub:     hub,
		signals: signals,
		logger:  logger,
	}
}

func (g *Gateway) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", g.HandleWS)
}

func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	session := g.hub.Register()
	defer g.hub.Disconnect(session.ID)

	g.logger.Info("session connected", "session", session.ID)

	done := make(chan struct{})
	go g.readLoop(r, conn, session, done)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	events := session.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-done:
			g.logger.Info("session disconnected", "session", session.ID)
			return
		}
	}
}

func (g *Gateway) readLoop(r *http.Request, conn *websocket.Conn, session *Session, done chan struct{}) {
	defer close(done)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Debug("session read ended", "session", session.ID, "err", err)
			}
			return
		}
		g.handleMessage(r, session, msg)
	}
}

// handleMessage validates one inbound frame. A malformed frame gets a
// targeted error event and leaves the connection and every other session
// untouched.
func (g *Gateway) handleMessage(r *http.Request, session *Session, msg clientMessage) {
	switch msg.Event {
	case "joinPoll":
		if msg.PollID == "" {
			g.hub.Send(session.ID, ErrorEvent("poll id is required to join a poll room"))
			return
		}
		g.hub.Join(session.ID, domain.PollID(msg.PollID))
		g.logger.Info("session joined room", "session", session.ID, "poll", msg.PollID)

	case "vote":
		if msg.PollID == "" || !msg.Success {
			g.hub.Send(session.ID, ErrorEvent("invalid vote data"))
			metrics.ObserveVoteRequest("invalid_event")
			return
		}
		g.requestBroadcast(r, session, domain.PollID(msg.PollID))

	case "like":
		if msg.PollID == "" {
			g.hub.Send(session.ID, ErrorEvent("poll id is required for like updates"))
			return
		}
		g.requestBroadcast(r, session, domain.PollID(msg.PollID))

	default:
		g.hub.Send(session.ID, ErrorEvent("unknown event"))
	}
}

func (g *Gateway) requestBroadcast(r *http.Request, session *Session, pollID domain.PollID) {
	if err := g.signals.PollChanged(r.Context(), pollID); err != nil {
		g.logger.Warn("re-broadcast request failed", "err", err, "poll", pollID)
		g.hub.Send(session.ID, ErrorEvent("failed to fetch poll data"))
	}
}
