package devserver

import (
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sitterspot/realtime/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrPinNotFound  = errors.New("pin not found")
)

func newRoomID() domain.RoomID {
	u := uuid.New()
	return domain.RoomID(hex.EncodeToString(u[:12]))
}

func newPinID() domain.PinID {
	u := uuid.New()
	return domain.PinID(hex.EncodeToString(u[:12]))
}

// Store is the in-memory backend behind the dev server. It mimics the
// production API shapes; persistence is deliberately absent.
type Store struct {
	mu       sync.Mutex
	users    map[domain.UserID]*domain.User
	rooms    map[domain.RoomID]*domain.Room
	members  map[domain.RoomID]map[domain.UserID]struct{}
	pins     map[domain.PinID]domain.Pin
	byOwner  map[domain.UserID]domain.PinID
	messages map[domain.RoomID][]domain.Message
}

func NewStore() *Store {
	return &Store{
		users:    make(map[domain.UserID]*domain.User),
		rooms:    make(map[domain.RoomID]*domain.Room),
		members:  make(map[domain.RoomID]map[domain.UserID]struct{}),
		pins:     make(map[domain.PinID]domain.Pin),
		byOwner:  make(map[domain.UserID]domain.PinID),
		messages: make(map[domain.RoomID][]domain.Message),
	}
}

// GetOrCreateUser resolves a dev bearer token to a profile. Dev tokens
// double as both id and username, so reconnects land on the same user.
func (s *Store) GetOrCreateUser(token string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[domain.UserID(token)]; ok {
		return *u, nil
	}
	u, err := domain.NewUser(domain.UserID(token), token)
	if err != nil {
		return domain.User{}, err
	}
	s.users[u.ID] = u
	return *u, nil
}

func (s *Store) CreateRoom(spec domain.RoomSpec, creator domain.UserID) domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := domain.Room{
		ID:             newRoomID(),
		Name:           spec.Name,
		Type:           spec.Type,
		CreatorID:      creator,
		ParticipantIDs: append([]domain.UserID{creator}, spec.ParticipantIDs...),
	}
	s.rooms[room.ID] = &room
	s.members[room.ID] = map[domain.UserID]struct{}{creator: {}}
	return room
}

func (s *Store) JoinRoom(id domain.RoomID, user domain.UserID) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, ErrRoomNotFound
	}
	s.members[id][user] = struct{}{}
	found := false
	for _, p := range room.ParticipantIDs {
		if p == user {
			found = true
			break
		}
	}
	if !found {
		room.ParticipantIDs = append(room.ParticipantIDs, user)
	}
	return *room, nil
}

func (s *Store) LeaveRoom(id domain.RoomID, user domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.members[id]; ok {
		delete(m, user)
	}
}

func (s *Store) DeleteRoom(id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return ErrRoomNotFound
	}
	delete(s.rooms, id)
	delete(s.members, id)
	delete(s.messages, id)
	return nil
}

func (s *Store) RoomsFor(user domain.UserID) []domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Room, 0)
	for id, room := range s.rooms {
		if _, ok := s.members[id][user]; ok {
			out = append(out, *room)
		}
	}
	return out
}

func (s *Store) MembersOf(id domain.RoomID) []domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserID, 0, len(s.members[id]))
	for u := range s.members[id] {
		out = append(out, u)
	}
	return out
}

func (s *Store) AddMessage(roomID domain.RoomID, sender domain.UserID, username, content string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Message{}, ErrRoomNotFound
	}
	msg := domain.Message{
		ID:             domain.MessageID(uuid.NewString()),
		RoomID:         roomID,
		SenderID:       sender,
		SenderUsername: username,
		Content:        content,
		Timestamp:      time.Now().UTC(),
	}
	s.messages[roomID] = append(s.messages[roomID], msg)
	cp := msg
	room.LastMessage = &cp
	return msg, nil
}

func (s *Store) Messages(roomID domain.RoomID) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[roomID]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

// UpsertPinAt keeps one live pin per owner: sharing a location moves
// the owner's existing pin instead of minting a second one.
func (s *Store) UpsertPinAt(owner domain.UserID, c domain.Coordinates) domain.Pin {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byOwner[owner]; ok {
		pin := s.pins[id]
		pin.Coordinates = c
		s.pins[id] = pin
		return pin
	}
	pin := domain.Pin{
		ID:          newPinID(),
		OwnerID:     owner,
		Coordinates: c,
		Title:       string(owner),
	}
	s.pins[pin.ID] = pin
	s.byOwner[owner] = pin.ID
	return pin
}

func (s *Store) DeletePin(id domain.PinID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pin, ok := s.pins[id]
	if !ok {
		return ErrPinNotFound
	}
	delete(s.pins, id)
	delete(s.byOwner, pin.OwnerID)
	return nil
}

func (s *Store) AllPins() []domain.Pin {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Pin, 0, len(s.pins))
	for _, p := range s.pins {
		out = append(out, p)
	}
	return out
}

func (s *Store) PinsInBounds(b domain.Bounds) []domain.Pin {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Pin, 0)
	for _, p := range s.pins {
		if b.Contains(p.Coordinates) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) PinsOf(owner domain.UserID) []domain.Pin {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Pin, 0, 1)
	if id, ok := s.byOwner[owner]; ok {
		out = append(out, s.pins[id])
	}
	return out
}
