package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/hiveobs/hive/pkg/telemetry"
)

// AgentRegistry receives SDK liveness derived from WebSocket traffic.
// Implemented by the agent status tracker.
type AgentRegistry interface {
	HeartbeatWS(teamID, instanceID, agentName, policyID, status string)
	DisconnectWS(teamID, instanceID string)
}

// Session is a single authenticated WebSocket client.
//
// subscriptions is accessed without a lock: all reads and writes happen on
// the goroutine that owns the connection (HandleSession's read loop and
// its deferred cleanup).
type Session struct {
	ID         string
	TeamID     string
	UserID     string
	InstanceID string // set when a heartbeat identifies an SDK instance
	Conn       *websocket.Conn

	subscriptions map[string]bool
	ctx           context.Context
	cancel        context.CancelFunc
}

// Hub maintains WebSocket sessions keyed by tenant and room. One Hub per
// process; cross-process distribution happens through the Bus.
type Hub struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	rooms  map[string]map[string]bool
	roomMu sync.RWMutex

	bus   Bus
	busMu sync.RWMutex

	registry AgentRegistry

	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(writeTimeout time.Duration) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{
		sessions:     make(map[string]*Session),
		rooms:        make(map[string]map[string]bool),
		writeTimeout: writeTimeout,
		logger:       slog.Default().With("component", "fanout-hub"),
	}
}

// SetBus wires the cross-process bus. Called once during startup, after
// the bus (which needs the hub for delivery) is constructed.
func (h *Hub) SetBus(b Bus) {
	h.busMu.Lock()
	defer h.busMu.Unlock()
	h.bus = b
}

// SetAgentRegistry wires the agent status tracker.
func (h *Hub) SetAgentRegistry(r AgentRegistry) {
	h.registry = r
}

// HandleSession manages the lifecycle of one authenticated WebSocket
// connection. Blocks until the connection closes.
func (h *Hub) HandleSession(parentCtx context.Context, conn *websocket.Conn, teamID, userID string) {
	ctx, cancel := context.WithCancel(parentCtx)
	s := &Session{
		ID:            uuid.New().String(),
		TeamID:        teamID,
		UserID:        userID,
		Conn:          conn,
		subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}

	h.register(s)
	defer h.unregister(s)
	telemetry.WSConnections.Inc()
	defer telemetry.WSConnections.Dec()

	// Every session joins its tenant's base rooms.
	h.join(s, TeamRoom(teamID))
	h.join(s, AlertsRoom(teamID))
	h.join(s, PolicyRoom(teamID))

	h.sendJSON(s, map[string]string{
		"type":       TypeConnectionEstablished,
		"session_id": s.ID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("Invalid WebSocket message", "session_id", s.ID, "error", err)
			continue
		}
		h.handleClientMessage(s, &msg)
	}
}

func (h *Hub) handleClientMessage(s *Session, msg *ClientMessage) {
	switch msg.Type {
	case TypeSubscribeLLMEvents:
		h.join(s, LLMEventsRoom(s.TeamID))
		h.sendJSON(s, map[string]string{"type": TypeSubscribed})

	case TypeHeartbeat:
		if msg.InstanceID == "" {
			h.sendJSON(s, map[string]string{
				"type":    TypeError,
				"message": "heartbeat requires sdk_instance_id",
			})
			return
		}
		if s.InstanceID == "" {
			s.InstanceID = msg.InstanceID
			h.join(s, InstanceRoom(s.TeamID, s.InstanceID))
		}
		if h.registry != nil {
			h.registry.HeartbeatWS(s.TeamID, msg.InstanceID, msg.AgentName, msg.PolicyID, msg.Status)
		}

	case TypePing:
		h.sendJSON(s, map[string]string{"type": TypePong})
	}
}

// Deliver broadcasts a payload to all local sessions in a room. Called by
// the bus; send failures evict the subscriber on its own read loop exit.
func (h *Hub) Deliver(room string, payload []byte) {
	h.roomMu.RLock()
	members, ok := h.rooms[room]
	if !ok {
		h.roomMu.RUnlock()
		return
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	h.roomMu.RUnlock()

	// Snapshot session pointers under the lock, then release before the
	// potentially slow sends.
	h.mu.RLock()
	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := h.sessions[id]; ok {
			sessions = append(sessions, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if err := h.sendRaw(s, payload); err != nil {
			h.logger.Warn("Dropping unreachable WebSocket subscriber",
				"session_id", s.ID, "room", room, "error", err)
			s.cancel()
		}
	}
}

// publish routes an envelope through the bus (falling back to local
// delivery when no bus is wired). Emits are fire-and-forget.
func (h *Hub) publish(ctx context.Context, room string, envelope any) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		h.logger.Error("Failed to marshal fan-out envelope", "room", room, "error", err)
		return
	}

	h.busMu.RLock()
	bus := h.bus
	h.busMu.RUnlock()

	if bus == nil {
		h.Deliver(room, payload)
		return
	}
	if err := bus.Publish(ctx, room, payload); err != nil {
		h.logger.Warn("Bus publish failed, delivering locally", "room", room, "error", err)
		h.Deliver(room, payload)
	}
}

// EmitPolicyUpdate broadcasts a policy change to the tenant's policy room.
func (h *Hub) EmitPolicyUpdate(ctx context.Context, teamID, policyID string, policy any) {
	h.publish(ctx, PolicyRoom(teamID), PolicyUpdateEnvelope{
		Type:     TypePolicyUpdate,
		TeamID:   teamID,
		PolicyID: policyID,
		Policy:   policy,
	})
}

// EmitAlert broadcasts a budget alert to the tenant's alert room.
func (h *Hub) EmitAlert(ctx context.Context, teamID, policyID string, payload any) {
	h.publish(ctx, AlertsRoom(teamID), AlertEnvelope{
		Type:      TypeAlert,
		TeamID:    teamID,
		PolicyID:  policyID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}

// EmitEventBatch broadcasts a flushed batch to the tenant's llm-events room.
func (h *Hub) EmitEventBatch(ctx context.Context, teamID string, envelope BatchEnvelope) {
	h.publish(ctx, LLMEventsRoom(teamID), envelope)
}

// EmitToInstance sends a payload to one connected SDK instance.
func (h *Hub) EmitToInstance(ctx context.Context, teamID, instanceID string, payload any) {
	h.publish(ctx, InstanceRoom(teamID, instanceID), payload)
}

// SessionCount returns the number of open sessions, optionally scoped to a
// team (empty teamID counts all).
func (h *Hub) SessionCount(teamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if teamID == "" {
		return len(h.sessions)
	}
	n := 0
	for _, s := range h.sessions {
		if s.TeamID == teamID {
			n++
		}
	}
	return n
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID] = s
}

func (h *Hub) unregister(s *Session) {
	for room := range s.subscriptions {
		h.leave(s, room)
	}

	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()

	if s.InstanceID != "" && h.registry != nil {
		h.registry.DisconnectWS(s.TeamID, s.InstanceID)
	}

	s.cancel()
	_ = s.Conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) join(s *Session, room string) {
	h.roomMu.Lock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]bool)
	}
	h.rooms[room][s.ID] = true
	h.roomMu.Unlock()

	s.subscriptions[room] = true
}

func (h *Hub) leave(s *Session, room string) {
	h.roomMu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, s.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.roomMu.Unlock()

	delete(s.subscriptions, room)
}

func (h *Hub) sendJSON(s *Session, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("Failed to marshal WebSocket message", "session_id", s.ID, "error", err)
		return
	}
	if err := h.sendRaw(s, data); err != nil {
		h.logger.Warn("Failed to send WebSocket message", "session_id", s.ID, "error", err)
	}
}

func (h *Hub) sendRaw(s *Session, data []byte) error {
	writeCtx, cancel := context.WithTimeout(s.ctx, h.writeTimeout)
	defer cancel()
	return s.Conn.Write(writeCtx, websocket.MessageText, data)
}
