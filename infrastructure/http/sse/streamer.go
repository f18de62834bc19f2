// Package sse pushes per-session events to open browser tabs so they learn
// about toasts and ended sessions without polling.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
	"github.com/securemedai/portal/infrastructure/service/logger"
)

const (
	EventConnected    = "connected"
	EventNotification = "notification"
	EventSessionEnded = "session_ended"
	heartbeatInterval = 15 * time.Second
	clientBuffer      = 16
)

// SSEEvent represents a Server-Sent Event
type SSEEvent struct {
	Type     string      `json:"type"`
	Data     interface{} `json:"data,omitempty"`
	Redirect string      `json:"redirect,omitempty"`
	Time     int64       `json:"time"`
}

// Client is one open event stream of a browser session.
type Client struct {
	SessionID string
	Channel   chan []byte
}

// Streamer fans events out to every stream of a session.
type Streamer struct {
	logger logger.Logger

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewStreamer(log logger.Logger) *Streamer {
	return &Streamer{
		logger:  log,
		clients: make(map[string]map[*Client]struct{}),
	}
}

// AddClient registers a stream; the returned func removes it.
func (s *Streamer) AddClient(sessionID string) (*Client, func()) {
	client := &Client{SessionID: sessionID, Channel: make(chan []byte, clientBuffer)}

	s.mu.Lock()
	set, ok := s.clients[sessionID]
	if !ok {
		set = make(map[*Client]struct{})
		s.clients[sessionID] = set
	}
	set[client] = struct{}{}
	s.mu.Unlock()

	return client, func() { s.removeClient(client) }
}

// Publish sends an event to every stream of sessionID. A stream whose
// buffer is full misses the event.
func (s *Streamer) Publish(sessionID string, event SSEEvent) error {
	if event.Time == 0 {
		event.Time = time.Now().Unix()
	}
	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients[sessionID] {
		select {
		case client.Channel <- message:
		default:
		}
	}
	return nil
}

// Invalidate tells open tabs that the session ended after a backend 401.
func (s *Streamer) Invalidate(_ context.Context, sessionID string) {
	_ = s.Publish(sessionID, SSEEvent{Type: EventSessionEnded, Redirect: entity.LoginPath})
}

// GetClientCount returns the number of open streams
func (s *Streamer) GetClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, set := range s.clients {
		n += len(set)
	}
	return n
}

// HandleSSE streams the calling session's events until the client leaves.
func (s *Streamer) HandleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := outbound.SessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}

	rc := http.NewResponseController(w)
	// streams outlive the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	client, remove := s.AddClient(sessionID)
	defer remove()

	if err := s.writeSSEEvent(w, SSEEvent{Type: EventConnected, Time: time.Now().Unix()}); err != nil {
		return
	}
	_ = rc.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case message := <-client.Channel:
			if err := s.writeSSEMessage(w, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.writeSSEComment(w, "ping"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			s.logger.Debug(r.Context(), "Event stream closed", map[string]interface{}{"error": err.Error()})
			return
		}
	}
}

func (s *Streamer) removeClient(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.clients[client.SessionID]
	delete(set, client)
	if len(set) == 0 {
		delete(s.clients, client.SessionID)
	}
}

func (s *Streamer) writeSSEEvent(w http.ResponseWriter, event SSEEvent) error {
	message, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, message)
	return err
}

func (s *Streamer) writeSSEMessage(w http.ResponseWriter, message []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(message, &head)
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", head.Type, message)
	return err
}

func (s *Streamer) writeSSEComment(w http.ResponseWriter, comment string) error {
	_, err := fmt.Fprintf(w, ":%s\n\n", comment)
	return err
}

// Notifier queues notifications in the wrapped store and signals open
// streams that new ones are waiting at /api/notifications.
type Notifier struct {
	outbound.Notifier
	streamer *Streamer
}

func NewNotifier(inner outbound.Notifier, streamer *Streamer) *Notifier {
	return &Notifier{Notifier: inner, streamer: streamer}
}

func (n *Notifier) Push(ctx context.Context, sessionID string, note outbound.Notification) error {
	if err := n.Notifier.Push(ctx, sessionID, note); err != nil {
		return err
	}
	return n.streamer.Publish(sessionID, SSEEvent{Type: EventNotification, Data: map[string]string{"level": string(note.Level)}})
}
