// Package rooms tracks room membership idempotently: join attempts are
// deduped per connection epoch, creates are single-flight, and the room
// list is reconciled against push events.
package rooms

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/sitterspot/realtime/internal/channel"
	"github.com/sitterspot/realtime/internal/domain"
)

var (
	ErrCreateInFlight = errors.New("room create already in flight")
	// ErrJoinPending means a join for this room was already requested
	// this epoch; the first request's ack will deliver the result.
	ErrJoinPending = errors.New("join already requested")
)

// Phase is the client-side view of membership in one room.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseJoining
	PhaseJoined
	PhaseLeft
)

type roomState struct {
	room  domain.Room
	phase Phase
}

// JoinResult delivers the outcome of an acked join/create exactly once.
type JoinResult func(room domain.Room, err error)

type Manager struct {
	emitter  channel.Emitter
	validate *validator.Validate

	mu     sync.Mutex
	rooms  map[domain.RoomID]*roomState
	order  []domain.RoomID
	active domain.RoomID

	// attempts is the per-epoch join dedupe set; OnConnect clears it
	// because server-side membership is unknown after a reconnect.
	attempts       map[domain.RoomID]struct{}
	createInFlight bool

	onInvitation func(domain.Room)
}

func NewManager(em channel.Emitter) *Manager {
	return &Manager{
		emitter:  em,
		validate: validator.New(),
		rooms:    make(map[domain.RoomID]*roomState),
		attempts: make(map[domain.RoomID]struct{}),
	}
}

// SetInvitationHook must be called before any events flow.
func (m *Manager) SetInvitationHook(fn func(domain.Room)) { m.onInvitation = fn }

// OnConnect invalidates all epoch-scoped dedupe state.
func (m *Manager) OnConnect(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = make(map[domain.RoomID]struct{})
	log.Info().Str("module", "rooms").Uint64("epoch", epoch).Msg("join attempts reset")
}

// JoinRoom validates locally, dedupes, then emits join_room with an
// ack. The returned error covers local rejection only; when it is nil
// the done callback fires exactly once.
//
// Check-and-set on the attempt set happens under one lock with no
// suspension in between: two rapid clicks produce one emission.
func (m *Manager) JoinRoom(id domain.RoomID, done JoinResult) error {
	if err := domain.ValidateRoomID(id); err != nil {
		return err
	}

	m.mu.Lock()
	if _, tried := m.attempts[id]; tried {
		if st, ok := m.rooms[id]; ok && m.active == id {
			room := st.room
			m.mu.Unlock()
			done(room, nil)
			return nil
		}
		m.mu.Unlock()
		return ErrJoinPending
	}
	m.attempts[id] = struct{}{}
	if st, ok := m.rooms[id]; ok && st.phase != PhaseJoined {
		st.phase = PhaseJoining
	}
	m.mu.Unlock()

	err := m.emitter.EmitAck(channel.EventJoinRoom, channel.RoomRefPayload{RoomID: id}, func(result json.RawMessage, err error) {
		if err != nil {
			// Attempt stays in the set: a silent automatic re-request
			// is exactly the double-join bug this layer exists to
			// prevent. RetryJoin is the explicit escape hatch.
			log.Warn().Err(err).Str("module", "rooms").Str("room", string(id)).Msg("join failed")
			done(domain.Room{}, err)
			return
		}
		room, derr := decodeRoom(result)
		if derr != nil {
			done(domain.Room{}, derr)
			return
		}
		m.markJoined(room, true)
		done(room, nil)
	})
	if err != nil {
		// Never reached the server, so the dedupe entry must not
		// block a later attempt.
		m.mu.Lock()
		delete(m.attempts, id)
		m.mu.Unlock()
		return err
	}
	return nil
}

// RetryJoin clears the dedupe entry first; it backs the explicit
// retry action in the UI.
func (m *Manager) RetryJoin(id domain.RoomID, done JoinResult) error {
	m.mu.Lock()
	delete(m.attempts, id)
	m.mu.Unlock()
	return m.JoinRoom(id, done)
}

// CreateRoom is guarded by a single in-flight flag so a double-click
// cannot emit create_room twice.
func (m *Manager) CreateRoom(spec domain.RoomSpec, done JoinResult) error {
	if err := m.validate.Struct(spec); err != nil {
		return err
	}

	m.mu.Lock()
	if m.createInFlight {
		m.mu.Unlock()
		return ErrCreateInFlight
	}
	m.createInFlight = true
	m.mu.Unlock()

	err := m.emitter.EmitAck(channel.EventCreateRoom, spec, func(result json.RawMessage, err error) {
		m.mu.Lock()
		m.createInFlight = false
		m.mu.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("module", "rooms").Msg("create failed")
			done(domain.Room{}, err)
			return
		}
		room, derr := decodeRoom(result)
		if derr != nil {
			done(domain.Room{}, derr)
			return
		}
		m.markJoined(room, true)
		done(room, nil)
	})
	if err != nil {
		m.mu.Lock()
		m.createInFlight = false
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) LeaveRoom(id domain.RoomID) error {
	if err := domain.ValidateRoomID(id); err != nil {
		return err
	}
	m.mu.Lock()
	if st, ok := m.rooms[id]; ok {
		st.phase = PhaseLeft
	}
	delete(m.attempts, id)
	if m.active == id {
		m.active = ""
	}
	m.mu.Unlock()
	return m.emitter.Emit(channel.EventLeaveRoom, channel.RoomRefPayload{RoomID: id})
}

func (m *Manager) DeleteRoom(id domain.RoomID, done func(err error)) error {
	if err := domain.ValidateRoomID(id); err != nil {
		return err
	}
	return m.emitter.EmitAck(channel.EventDeleteRoom, channel.RoomRefPayload{RoomID: id}, func(_ json.RawMessage, err error) {
		if err == nil {
			m.removeRoom(id)
		}
		done(err)
	})
}

// markJoined is shared by the ack path and the room_joined push;
// whichever arrives first wins and the other is a no-op.
func (m *Manager) markJoined(room domain.Room, activate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rooms[room.ID]
	if !ok {
		st = &roomState{}
		m.rooms[room.ID] = st
		m.order = append(m.order, room.ID)
	}
	st.room = room
	st.phase = PhaseJoined
	if activate {
		m.active = room.ID
	}
}

func (m *Manager) removeRoom(id domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, id)
	delete(m.attempts, id)
	for i, rid := range m.order {
		if rid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.active == id {
		m.active = ""
	}
}

func (m *Manager) Active() (domain.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == "" {
		return domain.Room{}, false
	}
	st, ok := m.rooms[m.active]
	if !ok {
		return domain.Room{}, false
	}
	return st.room, true
}

func (m *Manager) PhaseOf(id domain.RoomID) Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.rooms[id]; ok {
		return st.phase
	}
	return PhaseUnknown
}

// Rooms returns the list in arrival order.
func (m *Manager) Rooms() []domain.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Room, 0, len(m.order))
	for _, id := range m.order {
		if st, ok := m.rooms[id]; ok {
			out = append(out, st.room)
		}
	}
	return out
}

func decodeRoom(raw json.RawMessage) (domain.Room, error) {
	var room domain.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}
