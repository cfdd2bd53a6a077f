// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Corphon/DialogWeaverMCP/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Editor clients connect from arbitrary dev origins
		return true
	},
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 45 * time.Second
)

// GraphEvent is one change notification pushed to editor clients
// watching a dialog
type GraphEvent struct {
	Type      string      `json:"type"`
	DialogID  string      `json:"dialog_id"`
	NodeID    string      `json:"node_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Graph event types
const (
	EventNodeAdded      = "node_added"
	EventNodeUpdated    = "node_updated"
	EventNodeDeleted    = "node_deleted"
	EventNodesLinked    = "nodes_linked"
	EventNodesUnlinked  = "nodes_unlinked"
	EventHistoryMoved   = "history_moved"
	EventDialogSaved    = "dialog_saved"
	EventPositionsMoved = "positions_moved"
)

// EventClient is one WebSocket subscriber
type EventClient struct {
	conn     *websocket.Conn
	dialogID string
	send     chan []byte
	closed   int32
}

// Close shuts the connection down once
func (client *EventClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		client.conn.Close()
	}
}

// IsClosed reports whether the client is shut down
func (client *EventClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// EventHub fans graph events out to the clients watching each dialog
type EventHub struct {
	mutex       sync.RWMutex
	subscribers map[string]map[*EventClient]bool
	logger      *utils.Logger
}

// NewEventHub creates the hub
func NewEventHub(logger *utils.Logger) *EventHub {
	return &EventHub{
		subscribers: make(map[string]map[*EventClient]bool),
		logger:      logger,
	}
}

// Subscribe upgrades the request and registers the client on a dialog's
// event feed. Blocks until the connection drops.
func (hub *EventHub) Subscribe(c *gin.Context, dialogID string) error {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return err
	}

	client := &EventClient{
		conn:     conn,
		dialogID: dialogID,
		send:     make(chan []byte, 64),
	}

	hub.mutex.Lock()
	if hub.subscribers[dialogID] == nil {
		hub.subscribers[dialogID] = make(map[*EventClient]bool)
	}
	hub.subscribers[dialogID][client] = true
	hub.mutex.Unlock()

	hub.logger.Info("websocket client subscribed", "dialog_id", dialogID)

	go hub.writePump(client)
	hub.readPump(client)
	return nil
}

// Broadcast sends an event to every client watching a dialog
func (hub *EventHub) Broadcast(event GraphEvent) {
	event.Timestamp = time.Now()
	data, err := json.Marshal(event)
	if err != nil {
		hub.logger.Error("marshaling graph event failed", "error", err)
		return
	}

	hub.mutex.RLock()
	defer hub.mutex.RUnlock()

	for client := range hub.subscribers[event.DialogID] {
		if client.IsClosed() {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Slow consumer, drop the event rather than block the editor
			hub.logger.Warn("websocket send queue full, event dropped", "dialog_id", event.DialogID)
		}
	}
}

// SubscriberCount reports how many clients watch a dialog
func (hub *EventHub) SubscriberCount(dialogID string) int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return len(hub.subscribers[dialogID])
}

// unsubscribe removes a client and closes its connection
func (hub *EventHub) unsubscribe(client *EventClient) {
	hub.mutex.Lock()
	if clients, ok := hub.subscribers[client.dialogID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(hub.subscribers, client.dialogID)
		}
	}
	hub.mutex.Unlock()

	client.Close()
}

// readPump drains incoming frames; the feed is one-directional, so
// client messages only serve liveness
func (hub *EventHub) readPump(client *EventClient) {
	defer hub.unsubscribe(client)

	client.conn.SetReadLimit(4096)
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump flushes queued events and keeps the connection pinged
func (hub *EventHub) writePump(client *EventClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
