package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sitterspot/realtime/internal/channel"
	"github.com/sitterspot/realtime/internal/domain"
)

type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return errBackpressure
	}
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var (
	errBackpressure = errors.New("backpressure")
	errClosed       = errors.New("connection closed")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans events out to connected dev clients. One user may hold
// several connections (tabs).
type Hub struct {
	store *Store

	mu      sync.Mutex
	clients map[domain.UserID][]*wsConn
}

func NewHub(store *Store) *Hub {
	return &Hub{store: store, clients: make(map[domain.UserID][]*wsConn)}
}

func bearerUser(c *gin.Context) domain.UserID {
	auth := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return domain.UserID(auth[len(prefix):])
	}
	return domain.UserID(c.Query("token"))
}

func (h *Hub) HandleSync(c *gin.Context) {
	user, err := h.store.GetOrCreateUser(string(bearerUser(c)))
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver").Msg("ws upgrade")
		return
	}
	conn := &wsConn{conn: ws, send: make(chan []byte, 32)}

	h.mu.Lock()
	h.clients[user.ID] = append(h.clients[user.ID], conn)
	h.mu.Unlock()
	log.Info().Str("module", "devserver").Str("user", user.Username).Msg("client connected")
	h.broadcast(channel.EventUserConnected, channel.UserPresencePayload{UserID: user.ID})

	go h.writePump(conn)
	h.readPump(user, conn)
}

func (h *Hub) writePump(c *wsConn) {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (h *Hub) readPump(user domain.User, c *wsConn) {
	defer func() {
		c.Close()
		h.mu.Lock()
		conns := h.clients[user.ID]
		for i, cc := range conns {
			if cc == c {
				h.clients[user.ID] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		gone := len(h.clients[user.ID]) == 0
		if gone {
			delete(h.clients, user.ID)
		}
		h.mu.Unlock()
		if gone {
			h.broadcast(channel.EventUserDisconnected, channel.UserPresencePayload{UserID: user.ID})
		}
		log.Info().Str("module", "devserver").Str("user", user.Username).Msg("client disconnected")
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleFrame(user, c, data)
	}
}

func (h *Hub) handleFrame(user domain.User, c *wsConn, data []byte) {
	var env channel.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "devserver").Msg("bad json")
		return
	}

	switch env.Type {
	case channel.EventGetRooms:
		h.sendEvent(c, channel.EventRoomsList, h.store.RoomsFor(user.ID))
	case channel.EventCreateRoom:
		h.handleCreateRoom(user, c, env)
	case channel.EventJoinRoom:
		h.handleJoinRoom(user, c, env)
	case channel.EventLeaveRoom:
		var p channel.RoomRefPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			h.store.LeaveRoom(p.RoomID, user.ID)
		}
	case channel.EventDeleteRoom:
		h.handleDeleteRoom(c, env)
	case channel.EventSendMessage:
		h.handleSendMessage(user, c, env)
	case channel.EventShareLocation:
		h.handleShareLocation(user, env)
	case channel.EventViewportUpdate:
		log.Debug().Str("module", "devserver").Str("user", user.Username).Msg("viewport update")
	case channel.EventGetActiveRooms:
		h.sendEvent(c, channel.EventActiveRooms, h.activeRooms())
	case channel.EventGetOnlineUsers:
		h.sendEvent(c, channel.EventUsersOnline, h.onlineUsers())
	default:
		log.Warn().Str("module", "devserver").Str("type", string(env.Type)).Msg("unknown event")
	}
}

func (h *Hub) handleCreateRoom(user domain.User, c *wsConn, env channel.Envelope) {
	var spec domain.RoomSpec
	if err := json.Unmarshal(env.Payload, &spec); err != nil {
		h.ackError(c, env.AckID, "bad create_room payload")
		return
	}
	room := h.store.CreateRoom(spec, user.ID)
	h.ack(c, env.AckID, room)
	for _, p := range room.ParticipantIDs {
		if p != user.ID {
			h.sendToUser(p, channel.EventRoomInvitation, room)
		}
	}
}

func (h *Hub) handleJoinRoom(user domain.User, c *wsConn, env channel.Envelope) {
	var p channel.RoomRefPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.ackError(c, env.AckID, "bad join_room payload")
		return
	}
	room, err := h.store.JoinRoom(p.RoomID, user.ID)
	if err != nil {
		h.ackError(c, env.AckID, err.Error())
		return
	}
	h.ack(c, env.AckID, room)
	h.sendToUser(user.ID, channel.EventRoomJoined, room)
}

func (h *Hub) handleDeleteRoom(c *wsConn, env channel.Envelope) {
	var p channel.RoomRefPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.ackError(c, env.AckID, "bad delete_room payload")
		return
	}
	members := h.store.MembersOf(p.RoomID)
	if err := h.store.DeleteRoom(p.RoomID); err != nil {
		h.ackError(c, env.AckID, err.Error())
		return
	}
	h.ack(c, env.AckID, nil)
	for _, m := range members {
		h.sendToUser(m, channel.EventRoomDeleted, channel.RoomDeletedPayload{RoomID: p.RoomID})
	}
}

func (h *Hub) handleSendMessage(user domain.User, c *wsConn, env channel.Envelope) {
	var p channel.SendMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.ackError(c, env.AckID, "bad send_message payload")
		return
	}
	msg, err := h.store.AddMessage(p.RoomID, user.ID, user.Username, p.Content)
	if err != nil {
		h.ackError(c, env.AckID, err.Error())
		return
	}
	h.ack(c, env.AckID, nil)
	for _, m := range h.store.MembersOf(p.RoomID) {
		h.sendToUser(m, channel.EventReceiveMessage, msg)
	}
}

func (h *Hub) handleShareLocation(user domain.User, env channel.Envelope) {
	var p channel.LocationPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	pin := h.store.UpsertPinAt(user.ID, domain.Coordinates{Lng: p.Lng, Lat: p.Lat})
	h.broadcast(channel.EventPinUpdated, pin)
}

func (h *Hub) activeRooms() channel.ActiveRoomsPayload {
	counts := make(map[domain.RoomID]int)
	h.mu.Lock()
	users := make([]domain.UserID, 0, len(h.clients))
	for u := range h.clients {
		users = append(users, u)
	}
	h.mu.Unlock()
	for _, u := range users {
		for _, room := range h.store.RoomsFor(u) {
			counts[room.ID]++
		}
	}
	return channel.ActiveRoomsPayload{Counts: counts}
}

func (h *Hub) onlineUsers() channel.UsersOnlinePayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.UserID, 0, len(h.clients))
	for u := range h.clients {
		out = append(out, u)
	}
	return channel.UsersOnlinePayload{UserIDs: out}
}

func (h *Hub) ack(c *wsConn, ackID string, payload any) {
	h.push(c, channel.Envelope{Type: channel.EventAck, AckID: ackID}, payload)
}

func (h *Hub) ackError(c *wsConn, ackID, reason string) {
	h.push(c, channel.Envelope{Type: channel.EventAck, AckID: ackID, Error: reason}, nil)
}

func (h *Hub) sendEvent(c *wsConn, ev channel.EventType, payload any) {
	h.push(c, channel.Envelope{Type: ev}, payload)
}

func (h *Hub) push(c *wsConn, env channel.Envelope, payload any) {
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("module", "devserver").Msg("marshal payload")
			return
		}
		env.Payload = b
	}
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver").Msg("marshal envelope")
		return
	}
	_ = c.TrySend(b)
}

func (h *Hub) sendToUser(user domain.UserID, ev channel.EventType, payload any) {
	h.mu.Lock()
	conns := append([]*wsConn{}, h.clients[user]...)
	h.mu.Unlock()
	for _, c := range conns {
		h.sendEvent(c, ev, payload)
	}
}

func (h *Hub) broadcast(ev channel.EventType, payload any) {
	h.mu.Lock()
	all := make([]*wsConn, 0)
	for _, conns := range h.clients {
		all = append(all, conns...)
	}
	h.mu.Unlock()
	for _, c := range all {
		h.sendEvent(c, ev, payload)
	}
}
