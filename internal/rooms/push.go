package rooms

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/sitterspot/realtime/internal/channel"
	"github.com/sitterspot/realtime/internal/domain"
)

// Push handlers. Each decodes its own payload; a malformed push is
// logged and dropped, never authoritative.

func (m *Manager) HandleRoomsList(payload json.RawMessage) {
	var list []domain.Room
	if err := json.Unmarshal(payload, &list); err != nil {
		log.Error().Err(err).Str("module", "rooms").Msg("bad rooms_list payload")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[domain.RoomID]*roomState, len(list))
	order := make([]domain.RoomID, 0, len(list))
	for _, room := range list {
		st := &roomState{room: room, phase: PhaseJoined}
		if prev, ok := m.rooms[room.ID]; ok {
			st.phase = prev.phase
		}
		next[room.ID] = st
		order = append(order, room.ID)
	}
	m.rooms = next
	m.order = order
	if _, ok := m.rooms[m.active]; !ok {
		m.active = ""
	}
}

func (m *Manager) HandleRoomCreated(payload json.RawMessage) {
	var room domain.Room
	if err := json.Unmarshal(payload, &room); err != nil {
		log.Error().Err(err).Str("module", "rooms").Msg("bad room_created payload")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.ID]; ok {
		m.rooms[room.ID].room = room
		return
	}
	m.rooms[room.ID] = &roomState{room: room, phase: PhaseUnknown}
	m.order = append(m.order, room.ID)
}

// HandleRoomJoined covers the push half of the Joining -> Joined
// transition; the ack half lives in JoinRoom. Idempotent either way.
func (m *Manager) HandleRoomJoined(payload json.RawMessage) {
	var room domain.Room
	if err := json.Unmarshal(payload, &room); err != nil {
		log.Error().Err(err).Str("module", "rooms").Msg("bad room_joined payload")
		return
	}
	m.markJoined(room, false)
}

func (m *Manager) HandleRoomDeleted(payload json.RawMessage) {
	var p channel.RoomDeletedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "rooms").Msg("bad room_deleted payload")
		return
	}
	m.removeRoom(p.RoomID)
}

func (m *Manager) HandleRoomInvitation(payload json.RawMessage) {
	var room domain.Room
	if err := json.Unmarshal(payload, &room); err != nil {
		log.Error().Err(err).Str("module", "rooms").Msg("bad room_invitation payload")
		return
	}
	if m.onInvitation != nil {
		m.onInvitation(room)
	}
}

// NoteMessage updates a room's last-message preview; the message
// itself belongs to the chat stream.
func (m *Manager) NoteMessage(msg domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.rooms[msg.RoomID]; ok {
		cp := msg
		st.room.LastMessage = &cp
	}
}
