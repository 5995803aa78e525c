package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type room map[string]*Client

// Hub tracks which clients sit in which meeting room and fans events out to
// them. With Redis pub/sub configured, events also reach rooms hosted on
// other instances.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[uuid.UUID]room
	cancel map[uuid.UUID]func() // per-room Redis subscription teardown

	logger *zap.Logger
	pub    RedisPublisher
	sub    RedisSubscriber
}

// RedisPublisher publishes a meeting event for other instances to pick up.
type RedisPublisher interface {
	PublishMeetingEvent(meetingID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to a meeting channel and invokes handler for
// every incoming event until cancel is called.
type RedisSubscriber interface {
	SubscribeMeeting(meetingID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a hub. pub and sub may be nil for single-instance setups.
func NewHub(logger *zap.Logger, pub RedisPublisher, sub RedisSubscriber) *Hub {
	return &Hub{
		rooms:  make(map[uuid.UUID]room),
		cancel: make(map[uuid.UUID]func()),
		logger: logger,
		pub:    pub,
		sub:    sub,
	}
}

// Register puts a client into its meeting room, creating the room and its
// Redis subscription on first join.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	r, ok := h.rooms[c.MeetingID]
	if !ok {
		r = make(room)
		h.rooms[c.MeetingID] = r
		if h.sub != nil {
			meetingID := c.MeetingID
			cancel, err := h.sub.SubscribeMeeting(meetingID, func(event string, payload []byte) {
				h.BroadcastToMeeting(meetingID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Error("meeting channel subscribe failed",
					zap.String("meeting_id", meetingID.String()), zap.Error(err))
			} else {
				h.cancel[meetingID] = cancel
			}
		}
	}
	r[c.ID] = c
	h.mu.Unlock()

	h.logger.Debug("client joined room",
		zap.String("client_id", c.ID), zap.String("meeting_id", c.MeetingID.String()))
}

// Unregister drops a client; the last one out tears the room and its Redis
// subscription down.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if r, ok := h.rooms[c.MeetingID]; ok {
		delete(r, c.ID)
		if len(r) == 0 {
			delete(h.rooms, c.MeetingID)
			if cancel, ok := h.cancel[c.MeetingID]; ok {
				cancel()
				delete(h.cancel, c.MeetingID)
			}
		}
	}
	h.mu.Unlock()

	h.logger.Debug("client left room",
		zap.String("client_id", c.ID), zap.String("meeting_id", c.MeetingID.String()))
}

// RoomCount returns how many clients are connected to a meeting room.
func (h *Hub) RoomCount(meetingID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[meetingID])
}

func encodePayload(payload interface{}) (json.RawMessage, bool) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, true
	case []byte:
		return v, true
	default:
		data, err := json.Marshal(payload)
		return data, err == nil
	}
}

// snapshot copies the room's clients so sends happen without holding the lock.
func (h *Hub) snapshot(meetingID uuid.UUID) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r := h.rooms[meetingID]
	if len(r) == 0 {
		return nil
	}
	clients := make([]*Client, 0, len(r))
	for _, c := range r {
		clients = append(clients, c)
	}
	return clients
}

// BroadcastToMeeting sends an event to every client in the room on this
// instance only.
func (h *Hub) BroadcastToMeeting(meetingID uuid.UUID, event string, payload interface{}) {
	data, ok := encodePayload(payload)
	if !ok {
		return
	}
	msg := WSMessage{Event: event, Data: data}
	for _, c := range h.snapshot(meetingID) {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastToMeetingAndPublish sends to local clients and publishes the event
// through Redis for rooms on other instances.
func (h *Hub) BroadcastToMeetingAndPublish(meetingID uuid.UUID, event string, payload interface{}) {
	data, ok := encodePayload(payload)
	if !ok {
		return
	}
	h.BroadcastToMeeting(meetingID, event, json.RawMessage(data))
	if h.pub != nil {
		if err := h.pub.PublishMeetingEvent(meetingID, event, data); err != nil {
			h.logger.Error("meeting event publish failed",
				zap.String("meeting_id", meetingID.String()), zap.String("event", event), zap.Error(err))
		}
	}
}

// SendToClient delivers an event to a single client, for per-client replies
// like timer sync.
func (h *Hub) SendToClient(meetingID uuid.UUID, clientID string, event string, payload interface{}) {
	data, ok := encodePayload(payload)
	if !ok {
		return
	}
	h.mu.RLock()
	c := h.rooms[meetingID][clientID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}
