package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/gravitas-games/cellplan/internal/cluster"
	"github.com/gravitas-games/cellplan/internal/network"
	"github.com/gravitas-games/cellplan/internal/pattern"
	"github.com/gravitas-games/cellplan/pkg/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Time allowed for a submission to be applied
	submitTimeout = 5 * time.Second
)

// Connection represents a WebSocket connection to a planner
type Connection struct {
	id      string
	ws      *websocket.Conn
	server  *Server
	planner *models.Planner
	log     logrus.FieldLogger

	// Buffered channel for outbound messages
	send      chan []byte
	closeOnce sync.Once
}

// NewConnection creates a new connection for an authenticated planner
func NewConnection(ws *websocket.Conn, server *Server, planner *models.Planner) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:      id,
		ws:      ws,
		server:  server,
		planner: planner,
		log: server.log.WithFields(logrus.Fields{
			"connection": id,
			"planner":    planner.Username,
		}),
		send: make(chan []byte, 256),
	}
}

// Handle manages the connection lifecycle
func (c *Connection) Handle() {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.planner.Connected = true
	c.planner.ConnectedAt = time.Now()
	c.planner.SessionID = c.server.session.ID
	c.server.session.AddConnection(c)

	// A broadcast may overtake the welcome; clients keep the highest version.
	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeWelcome,
		Payload: network.WelcomePayload{
			ConnectionID: c.id,
			PlannerID:    c.planner.ID,
			Username:     c.planner.Username,
			SessionID:    c.server.session.ID,
			Plane:        network.NewPlanePayload(c.server.controller.Snapshot()),
		},
	})

	go c.writePump()
	c.readPump() // Blocking
}

// readPump pumps messages from the WebSocket connection to the server
func (c *Connection) readPump() {
	defer c.Close()

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("WebSocket read error")
			}
			break
		}

		var clientMsg network.ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.log.WithError(err).Debug("Failed to parse client message")
			c.SendError(network.CodeInvalidMessage, "Failed to parse message")
			continue
		}

		c.handleMessage(&clientMsg)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Warn("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.server.ctx.Done():
			return
		}
	}
}

// handleMessage routes messages to appropriate handlers
func (c *Connection) handleMessage(msg *network.ClientMessage) {
	c.log.WithField("type", msg.Type).Debug("Received message")

	switch msg.Type {
	case network.MsgTypeSubmit:
		var payload network.SubmitPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.SendError(network.CodeInvalidMessage, "Invalid submit payload")
			return
		}
		c.submit(payload.Parameters.NumCells, func(ctx context.Context) (pattern.Outcome, error) {
			_, outcome, err := c.server.controller.Submit(ctx, payload.Parameters)
			return outcome, err
		})

	case network.MsgTypeSetClusterSize:
		var payload network.SetClusterSizePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.SendError(network.CodeInvalidMessage, "Invalid cluster size payload")
			return
		}
		c.submit(payload.Value, func(ctx context.Context) (pattern.Outcome, error) {
			_, outcome, err := c.server.controller.SubmitClusterSize(ctx, payload.Value)
			return outcome, err
		})

	case network.MsgTypeGetPlane:
		c.SendMessage(&network.ServerMessage{
			Type:    network.MsgTypePlane,
			Payload: network.NewPlanePayload(c.server.controller.Snapshot()),
		})

	case network.MsgTypePing:
		c.SendMessage(&network.ServerMessage{
			Type:    network.MsgTypePong,
			Payload: map[string]interface{}{"timestamp": time.Now().Unix()},
		})

	default:
		c.log.WithField("type", msg.Type).Debug("Unknown message type")
		c.SendError(network.CodeUnknownMessageType, "Unknown message type")
	}
}

// submit runs apply for the raw cluster size input. A successful change
// reaches this connection through the session broadcast like everyone else;
// a rejection is sent to this connection only.
func (c *Connection) submit(input string, apply func(context.Context) (pattern.Outcome, error)) {
	if !c.planner.CanEdit() {
		c.SendError(network.CodeForbidden, "Planner may not change the plan")
		return
	}

	ctx, cancel := context.WithTimeout(c.server.ctx, submitTimeout)
	defer cancel()

	outcome, err := apply(ctx)
	switch {
	case pattern.IsRejection(err):
		c.SendMessage(&network.ServerMessage{
			Type: network.MsgTypeRejected,
			Payload: network.RejectedPayload{
				Code:    network.CodeInvalidClusterSize,
				Message: fmt.Sprintf("Not a valid cluster size: N must be i²+ij+j² and at most %d", cluster.MaxClusterSize),
				Input:   input,
			},
		})
	case err != nil:
		c.log.WithError(err).Warn("Submission failed")
		c.SendError(network.CodeSubmitFailed, "Submission could not be applied")
	default:
		c.log.WithField("outcome", outcome).Info("Submission applied")
	}
}

// SendMessage sends a message to the planner
func (c *Connection) SendMessage(msg *network.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.WithError(err).Error("Failed to marshal message")
		return
	}
	c.sendRaw(data)
}

func (c *Connection) sendRaw(data []byte) {
	select {
	case c.send <- data:
	default:
		c.log.Warn("Send buffer full, dropping message")
	}
}

// SendError sends an error message to the planner
func (c *Connection) SendError(code, message string) {
	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeError,
		Payload: network.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}

// Close leaves the session and stops the write pump. Safe to call twice.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.server.session.RemoveConnection(c)
		c.planner.Connected = false
		close(c.send)
	})
}
