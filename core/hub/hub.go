// Package hub is the broadcast gateway: it keeps the registry of live
// WebSocket sessions per project channel and fans mutation notices out to
// them. Delivery is fire-and-forget; a disconnected session misses the
// notice and reconciles with a full fetch on reconnect.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gridloop/logger"

	"github.com/gorilla/websocket"
)

// MessageType tags a gateway frame.
type MessageType string

const (
	MsgTypeUpdate MessageType = "update" // a project-visible mutation happened
	MsgTypeStatus MessageType = "status" // member joined/left the channel
	MsgTypeError  MessageType = "error"
	MsgTypePing   MessageType = "ping"
	MsgTypePong   MessageType = "pong"
)

// Frame is the wire envelope for gateway traffic.
type Frame struct {
	Type      MessageType     `json:"type"`
	ProjectID string          `json:"projectId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Username  string          `json:"username,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Update names the mutated resource and carries the identifiers a client
// needs to re-fetch or patch its view. Body always includes ProjectId.
type Update struct {
	Path string                 `json:"path"`
	Body map[string]interface{} `json:"body"`
}

// Presence mirrors who is online on a project channel into shared state
// (backed by Redis), so presence survives across server instances.
type Presence interface {
	SetOnline(ctx context.Context, projectID, userID string) error
	SetOffline(ctx context.Context, projectID, userID string) error
	Heartbeat(ctx context.Context, projectID, userID string) error
}

// Session is one live WebSocket subscription to a project channel.
type Session struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	ProjectID string
	UserID    string
	Username  string
}

// NewSession creates a session for a verified credential and project.
func NewSession(h *Hub, conn *websocket.Conn, projectID, userID, username string) *Session {
	return &Session{
		Hub:       h,
		Conn:      conn,
		Send:      make(chan []byte, 64),
		ProjectID: projectID,
		UserID:    userID,
		Username:  username,
	}
}

type broadcastMessage struct {
	projectID string
	message   []byte
}

// Hub is the session registry. All subscribe/unsubscribe/publish traffic
// funnels through its run loop; reads take the lock directly.
type Hub struct {
	// project id -> live sessions
	projects map[string]map[*Session]bool

	register   chan *Session
	unregister chan *Session
	broadcast  chan *broadcastMessage

	mu       sync.RWMutex
	presence Presence
	done     chan struct{}
}

// NewHub creates a hub. presence may be nil.
func NewHub(presence Presence) *Hub {
	return &Hub{
		projects:   make(map[string]map[*Session]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		broadcast:  make(chan *broadcastMessage, 256),
		presence:   presence,
		done:       make(chan struct{}),
	}
}

// Run starts the hub main loop.
func (h *Hub) Run() {
	for {
		select {
		case session := <-h.register:
			h.subscribe(session)

		case session := <-h.unregister:
			h.unsubscribe(session)

		case msg := <-h.broadcast:
			h.publish(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop shuts the hub down.
func (h *Hub) Stop() {
	close(h.done)
}

// Subscribe registers a session on its project channel.
func (h *Hub) Subscribe(session *Session) {
	h.register <- session
}

// Unsubscribe removes a session from its project channel.
func (h *Hub) Unsubscribe(session *Session) {
	h.unregister <- session
}

func (h *Hub) subscribe(session *Session) {
	h.mu.Lock()
	if h.projects[session.ProjectID] == nil {
		h.projects[session.ProjectID] = make(map[*Session]bool)
	}
	h.projects[session.ProjectID][session] = true
	h.mu.Unlock()

	if h.presence != nil {
		if err := h.presence.SetOnline(context.Background(), session.ProjectID, session.UserID); err != nil {
			logger.Warn("failed to set presence on subscribe",
				logger.ErrorField(err),
				logger.String("project", session.ProjectID),
				logger.String("user", session.UserID))
		}
	}

	logger.Info("session subscribed",
		logger.String("project", session.ProjectID),
		logger.String("user", session.UserID),
		logger.String("username", session.Username))
}

func (h *Hub) unsubscribe(session *Session) {
	h.mu.Lock()
	removed := false
	if sessions, ok := h.projects[session.ProjectID]; ok {
		if _, ok := sessions[session]; ok {
			delete(sessions, session)
			close(session.Send)
			removed = true
			if len(sessions) == 0 {
				delete(h.projects, session.ProjectID)
			}
		}
	}
	h.mu.Unlock()

	if !removed {
		return
	}

	if h.presence != nil {
		if err := h.presence.SetOffline(context.Background(), session.ProjectID, session.UserID); err != nil {
			logger.Warn("failed to clear presence on unsubscribe",
				logger.ErrorField(err),
				logger.String("project", session.ProjectID),
				logger.String("user", session.UserID))
		}
	}

	logger.Info("session unsubscribed",
		logger.String("project", session.ProjectID),
		logger.String("user", session.UserID))
}

func (h *Hub) publish(msg *broadcastMessage) {
	h.mu.RLock()
	sessions, ok := h.projects[msg.projectID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	sessionList := make([]*Session, 0, len(sessions))
	for session := range sessions {
		sessionList = append(sessionList, session)
	}
	h.mu.RUnlock()

	for _, session := range sessionList {
		select {
		case session.Send <- msg.message:
		default:
			// send buffer full, drop the session; this runs on the hub
			// goroutine, so unsubscribe directly rather than through the
			// channel it is itself draining
			h.unsubscribe(session)
		}
	}
}

// reply queues a frame for a single session. Safe to call off the hub
// goroutine: the registry check and the send happen under the lock that
// guards the send channel's closure, so a session the hub already dropped
// is skipped instead of written to.
func (h *Hub) reply(session *Session, frame *Frame) {
	frame.Timestamp = time.Now().UnixMilli()
	message, err := json.Marshal(frame)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if sessions, ok := h.projects[session.ProjectID]; !ok || !sessions[session] {
		return
	}
	select {
	case session.Send <- message:
	default:
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sessions := range h.projects {
		for session := range sessions {
			close(session.Send)
		}
	}
	h.projects = make(map[string]map[*Session]bool)
}

// BroadcastUpdate notifies every session on the project's channel that the
// resource at path changed. body must carry the target ProjectId. Called
// once per successful mutation, after it is durably persisted; delivery is
// best-effort and never blocks the mutating request.
func (h *Hub) BroadcastUpdate(path string, body map[string]interface{}) error {
	projectID, ok := body["ProjectId"].(string)
	if !ok || projectID == "" {
		return fmt.Errorf("broadcast body must include ProjectId")
	}

	data, err := json.Marshal(&Update{Path: path, Body: body})
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}
	return h.send(projectID, &Frame{
		Type:      MsgTypeUpdate,
		ProjectID: projectID,
		Data:      data,
	})
}

// BroadcastStatus announces channel membership changes ("x has joined").
func (h *Hub) BroadcastStatus(projectID, userID, username, status string) error {
	data, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return h.send(projectID, &Frame{
		Type:      MsgTypeStatus,
		ProjectID: projectID,
		UserID:    userID,
		Username:  username,
		Data:      data,
	})
}

func (h *Hub) send(projectID string, frame *Frame) error {
	frame.Timestamp = time.Now().UnixMilli()
	message, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	h.broadcast <- &broadcastMessage{projectID: projectID, message: message}
	return nil
}

// SessionCount returns the number of live sessions on a project channel.
func (h *Hub) SessionCount(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.projects[projectID])
}
