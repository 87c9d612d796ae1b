// Package ws exposes the game protocol over WebSocket. Each accepted
// connection gets a generated identity, a read pump feeding decoded events
// into the gateway, and a write pump draining the gateway's outbound
// channel back to the client.
package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/imposter/internal/config"
	"github.com/cory-johannsen/imposter/internal/gameserver"
)

// Dispatcher is the gateway surface the transport needs.
type Dispatcher interface {
	Connect(connID string) *gameserver.ClientEntity
	Disconnect(connID string)
	Dispatch(connID string, ev gameserver.ClientEvent)
}

// TokenVerifier validates a bearer token presented on the upgrade request.
type TokenVerifier interface {
	Verify(token string) (subject string, err error)
}

// Handler upgrades HTTP requests to WebSocket connections and runs the
// per-connection pumps.
type Handler struct {
	cfg      config.ServerConfig
	gateway  Dispatcher
	verifier TokenVerifier
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket handler.
//
// Precondition: gateway and logger must be non-nil. verifier may be nil,
// which disables token verification.
func NewHandler(cfg config.ServerConfig, gateway Dispatcher, verifier TokenVerifier, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		gateway:  gateway,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The game is served to browser clients on arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and starts the connection's pumps.
//
// Postcondition: On success the connection is registered with the gateway
// until its read pump exits.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.verifier != nil {
		subject, err := h.verifier.Verify(bearerToken(r))
		if err != nil {
			h.logger.Debug("rejecting upgrade",
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		h.logger.Debug("token verified", zap.String("subject", subject))
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrading connection",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	connID := uuid.NewString()
	c := &client{
		id:      connID,
		conn:    conn,
		entity:  h.gateway.Connect(connID),
		handler: h,
	}

	h.logger.Info("client connected",
		zap.String("conn", connID),
		zap.String("remote_addr", r.RemoteAddr),
	)

	go c.writePump()
	go c.readPump()
}

// bearerToken extracts the token from the Authorization header or, for
// browser WebSocket clients that cannot set headers, the token query
// parameter.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// client is one live WebSocket connection.
type client struct {
	id      string
	conn    *websocket.Conn
	entity  *gameserver.ClientEntity
	handler *Handler
}

// readPump decodes inbound envelopes and dispatches them until the
// connection dies. It owns the gateway disconnect.
func (c *client) readPump() {
	h := c.handler
	defer func() {
		h.gateway.Disconnect(c.id)
		c.conn.Close()
		h.logger.Info("client disconnected", zap.String("conn", c.id))
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout)); err != nil {
		h.logger.Error("setting read deadline", zap.String("conn", c.id), zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("read error", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env gameserver.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.reportError("malformed message")
			continue
		}
		ev, err := gameserver.DecodeClientEvent(env.Type, env.Data)
		if err != nil {
			c.reportError(err.Error())
			continue
		}
		h.gateway.Dispatch(c.id, ev)
	}
}

// reportError pushes an error event straight to this connection, bypassing
// the gateway for messages it never saw.
func (c *client) reportError(message string) {
	data, err := gameserver.EncodeServerEvent(gameserver.ErrorEvent{Message: message})
	if err != nil {
		return
	}
	if err := c.entity.Push(data); err != nil {
		c.handler.logger.Debug("dropping error event", zap.String("conn", c.id), zap.Error(err))
	}
}

// writePump drains the entity's events channel to the socket and keeps the
// connection alive with pings. It exits when the entity is closed or a
// write fails.
func (c *client) writePump() {
	h := c.handler
	pingInterval := h.cfg.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.entity.Events():
			if err := c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				h.logger.Error("setting write deadline", zap.String("conn", c.id), zap.Error(err))
			}
			if !ok {
				// The gateway closed the entity. Say goodbye properly.
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				h.logger.Error("setting write deadline", zap.String("conn", c.id), zap.Error(err))
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
