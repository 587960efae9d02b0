package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Client messages are small
	// control frames, never job payloads.
	maxMessageSize = 64 * 1024

	// sendChannelSize buffers outbound messages per client
	sendChannelSize = 256
)

// Client represents a connected WebSocket client
type Client struct {
	server *Server
	conn   *websocket.Conn
	send   chan interface{}
	id     string

	closeOnce sync.Once
}

// ClientMessage is a control message from a client
type ClientMessage struct {
	Type  string `json:"type"`
	RunID string `json:"run_id,omitempty"`
}

func newClient(s *Server, conn *websocket.Conn) *Client {
	return &Client{
		server: s,
		conn:   conn,
		send:   make(chan interface{}, sendChannelSize),
		id:     uuid.New().String(),
	}
}

// close shuts down the client's send channel exactly once
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// sendJSON queues a message for delivery without blocking the caller
func (c *Client) sendJSON(msg interface{}) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// readPump reads control messages from the client until the connection drops
func (c *Client) readPump() {
	defer func() {
		// The hub may already be gone during shutdown
		select {
		case c.server.unregister <- c:
		case <-c.server.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debugw("WebSocket read error",
					"client_id", c.id,
					"error", err,
				)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.server.logger.Debugw("Invalid client message",
				"client_id", c.id,
				"error", err,
			)
			continue
		}

		c.routeMessage(msg)
	}
}

// routeMessage dispatches a client control message
func (c *Client) routeMessage(msg ClientMessage) {
	switch msg.Type {
	case "get_run":
		c.handleGetRun(msg.RunID)
	case "get_status":
		c.sendJSON(c.server.buildQueueStatus())
	case "ping":
		c.sendJSON(map[string]string{"type": "pong"})
	default:
		c.server.logger.Debugw("Unknown client message type",
			"client_id", c.id,
			"type", msg.Type,
		)
	}
}

// handleGetRun sends the current snapshot of a single run to this client.
// Live runs come from the queue, archived ones from the store.
func (c *Client) handleGetRun(runID string) {
	if runID == "" {
		return
	}

	queue := c.server.pool.GetQueue()
	if job, ok := queue.Get(runID); ok {
		c.sendJSON(newRunUpdateMessage(job))
		return
	}

	run, err := c.server.store.GetRun(c.server.ctx, runID)
	if err != nil {
		c.server.logger.Debugw("Run lookup for client failed",
			"client_id", c.id,
			"run_id", runID,
			"error", err,
		)
		return
	}
	c.sendJSON(newRunRecordMessage(run))
}

// writePump writes queued messages and pings to the client
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Debugw("WebSocket write error",
					"client_id", c.id,
					"error", err,
				)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.server.ctx.Done():
			return
		}
	}
}
