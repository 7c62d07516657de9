package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gravitas-games/cellplan/internal/network"
	"github.com/gravitas-games/cellplan/internal/pattern"
)

// Session is the shared planning room: every connection sees the same plan
type Session struct {
	ID        string
	CreatedAt time.Time

	connections map[string]*Connection // connection ID -> Connection
	mu          sync.RWMutex

	controller  *pattern.Controller
	updates     <-chan pattern.Snapshot
	unsubscribe func()
	log         logrus.FieldLogger
}

// SessionStatus represents the current state of the session
type SessionStatus struct {
	ConnectionCount int    `json:"connection_count"`
	PlanVersion     uint64 `json:"plan_version"`
	ClusterSize     int    `json:"cluster_size"`
	Uptime          int64  `json:"uptime"` // seconds
}

// NewSession creates a new planning session around controller. The session
// follows plan changes from this point on; Run delivers them.
func NewSession(id string, controller *pattern.Controller, log logrus.FieldLogger) *Session {
	log.WithField("session", id).Info("Creating session")
	updates, unsubscribe := controller.Subscribe()
	return &Session{
		ID:          id,
		CreatedAt:   time.Now(),
		connections: make(map[string]*Connection),
		controller:  controller,
		updates:     updates,
		unsubscribe: unsubscribe,
		log:         log,
	}
}

// Run broadcasts every new plan until ctx is done
func (s *Session) Run(ctx context.Context) {
	defer s.unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-s.updates:
			if !ok {
				return
			}
			s.BroadcastMessage(&network.ServerMessage{
				Type:    network.MsgTypePlane,
				Payload: network.NewPlanePayload(snap),
			})
			s.log.WithFields(logrus.Fields{
				"version": snap.Version,
				"n":       snap.N,
				"cells":   len(snap.Cells),
			}).Debug("Plan broadcast")
		}
	}
}

// AddConnection registers a connection with the session
func (s *Session) AddConnection(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connections[conn.id] = conn
	s.log.WithFields(logrus.Fields{
		"planner":    conn.planner.Username,
		"connection": conn.id,
	}).Info("Planner joined session")
}

// RemoveConnection removes a connection from the session. After it returns
// no broadcast will reach the connection.
func (s *Session) RemoveConnection(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.connections[conn.id]; exists {
		delete(s.connections, conn.id)
		s.log.WithFields(logrus.Fields{
			"planner":    conn.planner.Username,
			"connection": conn.id,
		}).Info("Planner left session")
	}
}

// BroadcastMessage sends a message to all connected planners
func (s *Session) BroadcastMessage(msg *network.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.WithError(err).Error("Failed to marshal broadcast")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conn := range s.connections {
		conn.sendRaw(data)
	}
}

// ConnectionCount returns the number of registered connections
func (s *Session) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// GetStatus returns the current session status
func (s *Session) GetStatus() SessionStatus {
	snap := s.controller.Snapshot()
	return SessionStatus{
		ConnectionCount: s.ConnectionCount(),
		PlanVersion:     snap.Version,
		ClusterSize:     snap.N,
		Uptime:          int64(time.Since(s.CreatedAt).Seconds()),
	}
}
