package channel

import (
	"encoding/json"

	"github.com/sitterspot/realtime/internal/domain"
)

// EventType is the closed set of event names on the sync channel.
// Each subsystem owns disjoint inbound events; the dispatcher rejects
// a second registration for the same name.
type EventType string

// Outbound (client -> server).
const (
	EventGetRooms       EventType = "get_rooms"
	EventCreateRoom     EventType = "create_room"
	EventJoinRoom       EventType = "join_room"
	EventLeaveRoom      EventType = "leave_room"
	EventDeleteRoom     EventType = "delete_room"
	EventSendMessage    EventType = "send_message"
	EventShareLocation  EventType = "share_location"
	EventViewportUpdate EventType = "viewport_update"
	EventGetActiveRooms EventType = "get_active_rooms"
	EventGetOnlineUsers EventType = "get_online_users"
)

// Inbound (server -> client).
const (
	EventRoomsList        EventType = "rooms_list"
	EventRoomCreated      EventType = "room_created"
	EventRoomJoined       EventType = "room_joined"
	EventRoomDeleted      EventType = "room_deleted"
	EventRoomInvitation   EventType = "room_invitation"
	EventReceiveMessage   EventType = "receive_message"
	EventPinCreated       EventType = "pin_created"
	EventPinUpdated       EventType = "pin_updated"
	EventPinDeleted       EventType = "pin_deleted"
	EventCenterMap        EventType = "center_map"
	EventActiveRooms      EventType = "active_rooms"
	EventUsersOnline      EventType = "users_online"
	EventUserConnected    EventType = "user_connected"
	EventUserDisconnected EventType = "user_disconnected"
	EventError            EventType = "error"

	// EventAck carries the server's reply to an acknowledged emit and is
	// consumed by the channel itself, never by a subsystem handler.
	EventAck EventType = "ack"
)

// Envelope is the wire frame. Payload stays raw until the owning
// subsystem decodes it.
type Envelope struct {
	Type    EventType       `json:"type"`
	AckID   string          `json:"ackId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type RoomRefPayload struct {
	RoomID domain.RoomID `json:"roomId"`
}

type SendMessagePayload struct {
	RoomID  domain.RoomID `json:"roomId"`
	Content string        `json:"content"`
}

type LocationPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type ViewportUpdatePayload struct {
	Longitude float64       `json:"longitude"`
	Latitude  float64       `json:"latitude"`
	Zoom      float64       `json:"zoom"`
	Bounds    domain.Bounds `json:"bounds"`
}

type PinDeletedPayload struct {
	PinID domain.PinID `json:"pinId"`
}

type RoomDeletedPayload struct {
	RoomID domain.RoomID `json:"roomId"`
}

type ActiveRoomsPayload struct {
	Counts map[domain.RoomID]int `json:"counts"`
}

type UsersOnlinePayload struct {
	UserIDs []domain.UserID `json:"userIds"`
}

type UserPresencePayload struct {
	UserID domain.UserID `json:"userId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
