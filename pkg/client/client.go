// Package client is the Go client for the livepoll service: REST mutations,
// the realtime channel and a local poll view reconciled against server pushes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livepoll/livepoll/internal/domain"
)

// APIError carries a rejected request's status and server message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

const (
	userIDHeader     = "X-User-ID"
	initialBackoff   = time.Second
	maxBackoff       = 30 * time.Second
	handshakeTimeout = 10 * time.Second
)

// Client keeps one realtime connection and a snapshot per joined poll. Local
// snapshots may be updated optimistically after a mutation; a server push for
// the same poll always wins.
type Client struct {
	baseURL  string
	userID   domain.UserID
	httpc    *http.Client
	onUpdate func(domain.PollSnapshot)

	mu        sync.RWMutex
	snapshots map[domain.PollID]domain.PollSnapshot
	joined    map[domain.PollID]struct{}
	conn      *websocket.Conn
	closed    bool
}

type Option func(*Client)

func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithOnUpdate registers a callback invoked for every server-pushed snapshot,
// after the local view has been updated.
func WithOnUpdate(fn func(domain.PollSnapshot)) Option {
	return func(c *Client) { c.onUpdate = fn }
}

func New(baseURL string, userID domain.UserID, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userID:    userID,
		httpc:     http.DefaultClient,
		snapshots: make(map[domain.PollID]domain.PollSnapshot),
		joined:    make(map[domain.PollID]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens the realtime channel and keeps it alive until ctx is done or
// Close is called, reconnecting with backoff and rejoining every joined room
// after each reconnect (rejoin is idempotent on the server).
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.closed = false
	c.mu.Unlock()
	c.setConn(conn)
	c.rejoinAll()

	go c.run(ctx, conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws"
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", wsURL, err)
	}
	return conn, nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	backoff := initialBackoff
	for {
		c.readPump(conn)
		conn.Close()

		if c.isClosed() {
			return
		}

		// Connection gone: retry until ctx is canceled or Close is called,
		// then stop quietly.
		for {
			select {
			case <-ctx.Done():
				c.Close()
				return
			case <-time.After(backoff):
			}
			if c.isClosed() {
				return
			}

			next, err := c.dial(ctx)
			if err != nil {
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			backoff = initialBackoff
			conn = next
			c.setConn(conn)
			c.rejoinAll()
			break
		}
	}
}

type serverEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (c *Client) readPump(conn *websocket.Conn) {
	for {
		var ev serverEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		if ev.Event != "pollDataUpdated" {
			continue
		}

		var snapshot domain.PollSnapshot
		if err := json.Unmarshal(ev.Data, &snapshot); err != nil {
			continue
		}
		c.applyServerSnapshot(snapshot)
	}
}

// applyServerSnapshot replaces the local view wholesale: the server push is
// taken from committed state and overrides any optimistic bump.
func (c *Client) applyServerSnapshot(snapshot domain.PollSnapshot) {
	c.mu.Lock()
	c.snapshots[snapshot.PollID] = snapshot
	c.mu.Unlock()

	if c.onUpdate != nil {
		c.onUpdate(snapshot)
	}
}

// setConn installs the connection; if Close already ran, the new socket is
// closed right away so a racing reconnect cannot resurrect the client.
func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return
	}
	c.conn = conn
}

// Close ends the client's realtime lifetime: the reconnect loop stops and the
// current socket, if any, is closed. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// JoinPoll subscribes to a poll's room; membership is remembered so the room
// is rejoined after a reconnect.
func (c *Client) JoinPoll(pollID domain.PollID) error {
	c.mu.Lock()
	c.joined[pollID] = struct{}{}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("client: not connected")
	}
	return conn.WriteJSON(map[string]string{"event": "joinPoll", "pollId": string(pollID)})
}

func (c *Client) rejoinAll() {
	c.mu.RLock()
	conn := c.conn
	rooms := make([]domain.PollID, 0, len(c.joined))
	for pollID := range c.joined {
		rooms = append(rooms, pollID)
	}
	c.mu.RUnlock()

	for _, pollID := range rooms {
		_ = conn.WriteJSON(map[string]string{"event": "joinPoll", "pollId": string(pollID)})
	}
}

// Snapshot returns the local view of a poll, if any.
func (c *Client) Snapshot(pollID domain.PollID) (domain.PollSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot, ok := c.snapshots[pollID]
	return snapshot, ok
}

// Like likes a poll and optimistically bumps the local counter; the follow-up
// broadcast reconciles the view with committed state.
func (c *Client) Like(ctx context.Context, pollID domain.PollID) (domain.Like, error) {
	var like domain.Like
	err := c.do(ctx, http.MethodPost, "/like/"+string(pollID), nil, &like)
	if err != nil {
		return domain.Like{}, err
	}

	c.mu.Lock()
	if snapshot, ok := c.snapshots[pollID]; ok {
		snapshot.LikesCount++
		snapshot.LikedBy = append(snapshot.LikedBy, c.userID)
		c.snapshots[pollID] = snapshot
	}
	c.mu.Unlock()

	return like, nil
}

func (c *Client) Unlike(ctx context.Context, pollID domain.PollID) error {
	if err := c.do(ctx, http.MethodDelete, "/like/"+string(pollID), nil, nil); err != nil {
		return err
	}

	c.mu.Lock()
	if snapshot, ok := c.snapshots[pollID]; ok {
		if snapshot.LikesCount > 0 {
			snapshot.LikesCount--
		}
		kept := snapshot.LikedBy[:0]
		for _, id := range snapshot.LikedBy {
			if id != c.userID {
				kept = append(kept, id)
			}
		}
		snapshot.LikedBy = kept
		c.snapshots[pollID] = snapshot
	}
	c.mu.Unlock()

	return nil
}

// Vote casts the caller's vote and optimistically bumps the chosen option.
func (c *Client) Vote(ctx context.Context, pollID domain.PollID, optionID domain.OptionID) (domain.Vote, error) {
	body := map[string]string{"pollId": string(pollID), "optionId": string(optionID)}
	var vote domain.Vote
	if err := c.do(ctx, http.MethodPost, "/votes", body, &vote); err != nil {
		return domain.Vote{}, err
	}

	c.mu.Lock()
	if snapshot, ok := c.snapshots[pollID]; ok {
		snapshot.TotalVotes++
		for i := range snapshot.Options {
			if snapshot.Options[i].OptionID == optionID {
				snapshot.Options[i].Votes++
			}
		}
		c.snapshots[pollID] = snapshot
	}
	c.mu.Unlock()

	return vote, nil
}

// Poll fetches a fresh projection over REST and seeds the local view.
func (c *Client) Poll(ctx context.Context, pollID domain.PollID) (domain.PollSnapshot, error) {
	var snapshot domain.PollSnapshot
	if err := c.do(ctx, http.MethodGet, "/polls/"+string(pollID), nil, &snapshot); err != nil {
		return domain.PollSnapshot{}, err
	}

	c.mu.Lock()
	c.snapshots[pollID] = snapshot
	c.mu.Unlock()

	return snapshot, nil
}

func (c *Client) UserLikes(ctx context.Context) ([]domain.Like, error) {
	var result []domain.Like
	if err := c.do(ctx, http.MethodGet, "/like/user", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) PollLikes(ctx context.Context, pollID domain.PollID) ([]domain.Like, error) {
	var result []domain.Like
	if err := c.do(ctx, http.MethodGet, "/like/poll/"+string(pollID), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set(userIDHeader, string(c.userID))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}

	if !env.Success {
		return &APIError{StatusCode: res.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("client: decode payload: %w", err)
		}
	}
	return nil
}
