package rooms

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sitterspot/realtime/internal/channel"
	"github.com/sitterspot/realtime/internal/domain"
)

// Presence tracks who is online and how busy each room is. Push-fed;
// Refresh asks the server for a fresh snapshot after reconnect.
type Presence struct {
	emitter channel.Emitter

	mu          sync.Mutex
	online      map[domain.UserID]struct{}
	activeRooms map[domain.RoomID]int
}

func NewPresence(em channel.Emitter) *Presence {
	return &Presence{
		emitter:     em,
		online:      make(map[domain.UserID]struct{}),
		activeRooms: make(map[domain.RoomID]int),
	}
}

func (p *Presence) Refresh() {
	_ = p.emitter.Emit(channel.EventGetOnlineUsers, nil)
	_ = p.emitter.Emit(channel.EventGetActiveRooms, nil)
}

func (p *Presence) HandleUsersOnline(payload json.RawMessage) {
	var up channel.UsersOnlinePayload
	if err := json.Unmarshal(payload, &up); err != nil {
		log.Error().Err(err).Str("module", "presence").Msg("bad users_online payload")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = make(map[domain.UserID]struct{}, len(up.UserIDs))
	for _, id := range up.UserIDs {
		p.online[id] = struct{}{}
	}
}

func (p *Presence) HandleUserConnected(payload json.RawMessage) {
	var up channel.UserPresencePayload
	if err := json.Unmarshal(payload, &up); err != nil {
		log.Error().Err(err).Str("module", "presence").Msg("bad user_connected payload")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[up.UserID] = struct{}{}
}

func (p *Presence) HandleUserDisconnected(payload json.RawMessage) {
	var up channel.UserPresencePayload
	if err := json.Unmarshal(payload, &up); err != nil {
		log.Error().Err(err).Str("module", "presence").Msg("bad user_disconnected payload")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, up.UserID)
}

func (p *Presence) HandleActiveRooms(payload json.RawMessage) {
	var ap channel.ActiveRoomsPayload
	if err := json.Unmarshal(payload, &ap); err != nil {
		log.Error().Err(err).Str("module", "presence").Msg("bad active_rooms payload")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeRooms = ap.Counts
}

func (p *Presence) IsOnline(id domain.UserID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.online[id]
	return ok
}

func (p *Presence) Online() []domain.UserID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.UserID, 0, len(p.online))
	for id := range p.online {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Presence) ActiveCount(id domain.RoomID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeRooms[id]
}
