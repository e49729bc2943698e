package rooms

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitterspot/realtime/internal/channel"
	"github.com/sitterspot/realtime/internal/domain"
)

const roomA = domain.RoomID("abc123abc123abc123abc123")

// fakeEmitter records emissions and lets the test fire acks by hand.
type fakeEmitter struct {
	mu    sync.Mutex
	emits []channel.EventType
	acks  []channel.AckFunc
	err   error
}

func (f *fakeEmitter) Emit(ev channel.EventType, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = append(f.emits, ev)
	return f.err
}

func (f *fakeEmitter) EmitAck(ev channel.EventType, payload any, ack channel.AckFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.emits = append(f.emits, ev)
	f.acks = append(f.acks, ack)
	return nil
}

func (f *fakeEmitter) count(ev channel.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.emits {
		if e == ev {
			n++
		}
	}
	return n
}

func (f *fakeEmitter) fireAck(i int, result any, err error) {
	f.mu.Lock()
	ack := f.acks[i]
	f.mu.Unlock()
	var raw json.RawMessage
	if result != nil {
		raw, _ = json.Marshal(result)
	}
	ack(raw, err)
}

func room(id domain.RoomID) domain.Room {
	return domain.Room{ID: id, Name: "walkies", Type: domain.RoomGroup, CreatorID: "u1"}
}

func TestJoinRoomRejectsBadID(t *testing.T) {
	em := &fakeEmitter{}
	m := NewManager(em)

	err := m.JoinRoom("short", func(domain.Room, error) { t.Fatal("no ack expected") })
	assert.ErrorIs(t, err, domain.ErrInvalidRoomID)

	err = m.JoinRoom("zzz123zzz123zzz123zzz123", func(domain.Room, error) { t.Fatal("no ack expected") })
	assert.ErrorIs(t, err, domain.ErrInvalidRoomID)

	assert.Zero(t, em.count(channel.EventJoinRoom), "invalid ids must never reach the wire")
}

func TestDoubleClickJoinEmitsOnce(t *testing.T) {
	em := &fakeEmitter{}
	m := NewManager(em)

	var results []error
	require.NoError(t, m.JoinRoom(roomA, func(_ domain.Room, err error) { results = append(results, err) }))
	err := m.JoinRoom(roomA, func(_ domain.Room, err error) { results = append(results, err) })
	assert.ErrorIs(t, err, ErrJoinPending)

	assert.Equal(t, 1, em.count(channel.EventJoinRoom))

	em.fireAck(0, room(roomA), nil)
	require.Len(t, results, 1)
	assert.NoError(t, results[0])

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, roomA, active.ID)
	assert.Equal(t, PhaseJoined, m.PhaseOf(roomA))
}

func TestJoinAfterActiveIsIdempotentSuccess(t *testing.T) {
	em := &fakeEmitter{}
	m := NewManager(em)

	require.NoError(t, m.JoinRoom(roomA, func(domain.Room, error) {}))
	em.fireAck(0, room(roomA), nil)

	got := domain.Room{}
	require.NoError(t, m.JoinRoom(roomA, func(r domain.Room, err error) {
		require.NoError(t, err)
		got = r
	}))
	assert.Equal(t, roomA, got.ID)
	assert.Equal(t, 1, em.count(channel.EventJoinRoom), "re-join of the active room is local")
}

func TestJoinAckErrorKeepsAttemptUntilRetry(t *testing.T) {
	em := &fakeEmitter{}
	m := NewManager(em)

	var joinErr error
	require.NoError(t, m.JoinRoom(roomA, func(_ domain.Room, err error) { joinErr = err }))
	em.fireAck(0, nil, &channel.AckError{Event: channel.EventJoinRoom, Reason: "room full"})
	require.Error(t, joinErr)

	// Still deduped: no silent re-request.
	assert.ErrorIs(t, m.JoinRoom(roomA, func(domain.Room, error) {}), ErrJoinPending)
	assert.Equal(t, 1, em.count(channel.EventJoinRoom))

	// Explicit retry clears the attempt first.
	require.NoError(t, m.RetryJoin(roomA, func(domain.Room, error) {}))
	assert.Equal(t, 2, em.count(channel.EventJoinRoom))
}

func TestReconnectClearsJoinAttempts(t *testing.T) {
	em := &fakeEmitter{}
	m := NewManager(em)

	require.NoError(t, m.JoinRoom(roomA, func(domain.Room, error) {}))
	m.OnConnect(2)
	require.NoError(t, m.JoinRoom(roomA, func(domain.Room, error) {}))
	assert.Equal(t, 2, em.count(channel.EventJoinRoom))
}

func TestCreateRoomSingleFlight(t *testing.T) {
	em := &fakeEmitter{}
	m := NewManager(em)
	spec := domain.RoomSpec{Name: "walkies", Type: domain.RoomGroup, ParticipantIDs: []domain.UserID{"u2"}}

	require.NoError(t, m.CreateRoom(spec, func(domain.Room, error) {}))
	assert.ErrorIs(t, m.CreateRoom(spec, func(domain.Room, error) {}), ErrCreateInFlight)
	assert.Equal(t, 1, em.count(channel.EventCreateRoom))

	em.fireAck(0, room(roomA), nil)
	require.NoError(t, m.CreateRoom(spec, func(domain.Room, error) {}))
	assert.Equal(t, 2, em.count(channel.EventCreateRoom))
}

func TestCreateRoomValidatesSpec(t *testing.T) {
	em := &fakeEmitter{}
	m := NewManager(em)

	err := m.CreateRoom(domain.RoomSpec{Name: "x", Type: "party"}, func(domain.Room, error) {})
	require.Error(t, err)
	assert.Zero(t, em.count(channel.EventCreateRoom))
}

func TestRoomDeletedPushRemovesAndDeactivates(t *testing.T) {
	em := &fakeEmitter{}
	m := NewManager(em)

	require.NoError(t, m.JoinRoom(roomA, func(domain.Room, error) {}))
	em.fireAck(0, room(roomA), nil)
	_, ok := m.Active()
	require.True(t, ok)

	payload, _ := json.Marshal(channel.RoomDeletedPayload{RoomID: roomA})
	m.HandleRoomDeleted(payload)

	_, ok = m.Active()
	assert.False(t, ok)
	assert.Empty(t, m.Rooms())

	// The dedupe entry is gone too, so the room can be re-joined if it
	// ever comes back.
	require.NoError(t, m.JoinRoom(roomA, func(domain.Room, error) {}))
	assert.Equal(t, 2, em.count(channel.EventJoinRoom))
}

func TestRoomJoinedPushBeforeAck(t *testing.T) {
	em := &fakeEmitter{}
	m := NewManager(em)

	require.NoError(t, m.JoinRoom(roomA, func(domain.Room, error) {}))

	payload, _ := json.Marshal(room(roomA))
	m.HandleRoomJoined(payload)
	assert.Equal(t, PhaseJoined, m.PhaseOf(roomA))

	// Ack arriving second is idempotent.
	em.fireAck(0, room(roomA), nil)
	assert.Equal(t, PhaseJoined, m.PhaseOf(roomA))
	assert.Len(t, m.Rooms(), 1)
}

func TestRoomsListReconciliation(t *testing.T) {
	em := &fakeEmitter{}
	m := NewManager(em)

	other := room("def456def456def456def456")
	list, _ := json.Marshal([]domain.Room{room(roomA), other})
	m.HandleRoomsList(list)
	assert.Len(t, m.Rooms(), 2)

	// Server now says only one room; the list is authoritative.
	list, _ = json.Marshal([]domain.Room{other})
	m.HandleRoomsList(list)
	got := m.Rooms()
	require.Len(t, got, 1)
	assert.Equal(t, other.ID, got[0].ID)
}

func TestNoteMessageUpdatesPreview(t *testing.T) {
	em := &fakeEmitter{}
	m := NewManager(em)

	list, _ := json.Marshal([]domain.Room{room(roomA)})
	m.HandleRoomsList(list)

	m.NoteMessage(domain.Message{ID: "m1", RoomID: roomA, Content: "hi"})
	got := m.Rooms()
	require.Len(t, got, 1)
	require.NotNil(t, got[0].LastMessage)
	assert.Equal(t, "hi", got[0].LastMessage.Content)
}

func TestEmitFailureUnblocksJoin(t *testing.T) {
	em := &fakeEmitter{err: channel.ErrDisconnected}
	m := NewManager(em)

	err := m.JoinRoom(roomA, func(domain.Room, error) { t.Fatal("no ack expected") })
	assert.ErrorIs(t, err, channel.ErrDisconnected)

	// The failed emit never reached the server, so the next try must
	// not be deduped away.
	em.err = nil
	require.NoError(t, m.JoinRoom(roomA, func(domain.Room, error) {}))
	assert.Equal(t, 1, em.count(channel.EventJoinRoom))
}
