package bridge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cvfill/api/schemas"
)

// Constants for WebSocket timeouts and limits (based on Gorilla WebSocket examples).
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Profiles ride inside requests, so this is larger than a chat frame.
	maxMessageSize  = maxBodySize
	sendChannelSize = 64
)

// wsClient is one connected socket. All writes go through writePump.
type wsClient struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("Failed to upgrade connection to WebSocket", zap.Error(err), zap.String("origin", r.Header.Get("Origin")))
		return
	}

	client := &wsClient{
		server: s,
		conn:   conn,
		send:   make(chan []byte, sendChannelSize),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("WebSocket client connected.", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		client.writePump()
	}()

	var pending sync.WaitGroup
	client.readPump(ctx, &pending)

	cancel()
	pending.Wait()
	close(client.done)
	writer.Wait()

	s.logger.Info("WebSocket client disconnected.", zap.String("remote_addr", r.RemoteAddr))
	s.mu.Lock()
	delete(s.clients, client)
	s.mu.Unlock()
}

// readPump decodes request frames until the connection fails. Each request
// runs in its own goroutine so control frames keep flowing while a fill runs.
func (c *wsClient) readPump(ctx context.Context, pending *sync.WaitGroup) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.server.logger.Error("Failed to set initial read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("WebSocket closed unexpectedly", zap.Error(err))
			}
			return
		}

		var req schemas.Request
		if err := json.Unmarshal(frame, &req); err != nil {
			c.reply(schemas.Fail(schemas.ErrCodeInvalidParameters, "Invalid request frame"))
			continue
		}
		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}
		c.server.logger.Debug("Received request.", zap.String("action", string(req.Action)), zap.String("request_id", req.RequestID))

		pending.Add(1)
		go func(req *schemas.Request) {
			defer pending.Done()
			c.reply(c.server.dispatcher.Handle(ctx, req))
		}(&req)
	}
}

// writePump owns every write on the connection and keeps it alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.server.logger.Debug("Error writing to WebSocket", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (c *wsClient) reply(resp *schemas.Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		c.server.logger.Error("Failed to encode response", zap.Error(err))
		return
	}
	c.enqueue(payload)
}

// enqueue drops the frame when the client is gone or not keeping up.
func (c *wsClient) enqueue(payload []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- payload:
	default:
		c.server.logger.Warn("WebSocket send buffer full, dropping message. Client may be unresponsive.")
	}
}
