package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/FacerAin/dnd-10th-2-backend/pkg/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a single WebSocket connection in a meeting room.
type Client struct {
	ID        string
	MeetingID uuid.UUID
	MemberID  uuid.UUID
	Nickname  string
	JoinedAt  time.Time
	hub       *Hub
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger
}

// ServeWs authenticates the query token, upgrades the connection and runs the
// read and write pumps until the peer goes away.
func ServeWs(hub *Hub, logger *zap.Logger, validate func(token string) (memberID, nickname string, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		meetingID, err := uuid.Parse(c.Query("meeting_id"))
		if err != nil {
			response.BadRequest(c, "valid meeting_id required")
			return
		}
		token := c.Query("token")
		if token == "" {
			response.Unauthorized(c, "token required")
			return
		}
		memberIDStr, nickname, err := validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		memberID, err := uuid.Parse(memberIDStr)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:        uuid.NewString(),
			MeetingID: meetingID,
			MemberID:  memberID,
			Nickname:  nickname,
			JoinedAt:  time.Now(),
			hub:       hub,
			conn:      conn,
			send:      make(chan WSMessage, sendBuffer),
			logger:    logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket closed unexpectedly",
					zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleMessage(msg)
	}
}

// handleMessage reacts to the two messages clients send; everything else the
// server pushes on its own.
func (c *Client) handleMessage(msg WSMessage) {
	switch msg.Event {
	case "join":
		c.hub.BroadcastToMeetingAndPublish(c.MeetingID, "room_count", map[string]int{
			"count": c.hub.RoomCount(c.MeetingID),
		})
		c.hub.BroadcastToMeetingAndPublish(c.MeetingID, "join", map[string]string{
			"member_id": c.MemberID.String(),
			"nickname":  c.Nickname,
		})
	case "sync":
		// clients resynchronize their countdown against the server clock
		c.hub.SendToClient(c.MeetingID, c.ID, "sync", map[string]string{
			"server_time": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
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
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
