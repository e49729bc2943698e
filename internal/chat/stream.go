// Package chat keeps per-room message caches: one REST backfill per
// room open, then incremental push events, append-only in arrival
// order.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sitterspot/realtime/internal/channel"
	"github.com/sitterspot/realtime/internal/domain"
)

var ErrEmptyMessage = errors.New("empty message")

// Backfill is the REST surface for message history.
type Backfill interface {
	FetchMessages(ctx context.Context, roomID domain.RoomID) ([]domain.Message, error)
}

// LoadResult delivers one room's history exactly once per Load call.
type LoadResult func(msgs []domain.Message, err error)

type Stream struct {
	emitter  channel.Emitter
	backfill Backfill

	mu       sync.Mutex
	byRoom   map[domain.RoomID][]domain.Message
	loaded   map[domain.RoomID]bool
	inflight map[domain.RoomID][]LoadResult

	onMessage func(domain.Message)
}

func NewStream(em channel.Emitter, bf Backfill) *Stream {
	return &Stream{
		emitter:  em,
		backfill: bf,
		byRoom:   make(map[domain.RoomID][]domain.Message),
		loaded:   make(map[domain.RoomID]bool),
		inflight: make(map[domain.RoomID][]LoadResult),
	}
}

// SetMessageHook must be called before any events flow.
func (s *Stream) SetMessageHook(fn func(domain.Message)) { s.onMessage = fn }

// Load backfills a room's history. Re-entrant opens of the same room
// collapse onto the single in-flight fetch; other rooms' caches stay
// untouched.
func (s *Stream) Load(ctx context.Context, roomID domain.RoomID, done LoadResult) error {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return err
	}

	s.mu.Lock()
	if s.loaded[roomID] {
		msgs := s.copyLocked(roomID)
		s.mu.Unlock()
		done(msgs, nil)
		return nil
	}
	if waiters, ok := s.inflight[roomID]; ok {
		s.inflight[roomID] = append(waiters, done)
		s.mu.Unlock()
		return nil
	}
	s.inflight[roomID] = []LoadResult{done}
	s.mu.Unlock()

	go s.fetch(ctx, roomID)
	return nil
}

func (s *Stream) fetch(ctx context.Context, roomID domain.RoomID) {
	history, err := s.backfill.FetchMessages(ctx, roomID)

	s.mu.Lock()
	waiters := s.inflight[roomID]
	delete(s.inflight, roomID)
	if err == nil {
		// Pushes that raced the backfill are already cached; keep them
		// after the history, deduped by id.
		seen := make(map[domain.MessageID]struct{}, len(history))
		for _, m := range history {
			seen[m.ID] = struct{}{}
		}
		merged := history
		for _, m := range s.byRoom[roomID] {
			if _, ok := seen[m.ID]; !ok {
				merged = append(merged, m)
			}
		}
		s.byRoom[roomID] = merged
		s.loaded[roomID] = true
	}
	var out []domain.Message
	if err == nil {
		out = s.copyLocked(roomID)
	}
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("module", "chat").Str("room", string(roomID)).Msg("backfill failed")
	}
	for _, w := range waiters {
		w(out, err)
	}
}

// HandleReceiveMessage appends the authoritative pushed message. The
// sender's own messages arrive here too; nothing is inserted
// optimistically on send.
func (s *Stream) HandleReceiveMessage(payload json.RawMessage) {
	var msg domain.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Error().Err(err).Str("module", "chat").Msg("bad receive_message payload")
		return
	}
	s.mu.Lock()
	s.byRoom[msg.RoomID] = append(s.byRoom[msg.RoomID], msg)
	s.mu.Unlock()
	if s.onMessage != nil {
		s.onMessage(msg)
	}
}

// Send emits the message; the caller clears its input on a nil return
// and gets the content handed back through restore only on ack
// failure.
func (s *Stream) Send(roomID domain.RoomID, content string, restore func(content string)) error {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return err
	}
	if content == "" {
		return ErrEmptyMessage
	}
	payload := channel.SendMessagePayload{RoomID: roomID, Content: content}
	return s.emitter.EmitAck(channel.EventSendMessage, payload, func(_ json.RawMessage, err error) {
		if err != nil {
			log.Warn().Err(err).Str("module", "chat").Str("room", string(roomID)).Msg("send failed, restoring draft")
			if restore != nil {
				restore(content)
			}
		}
	})
}

func (s *Stream) Messages(roomID domain.RoomID) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked(roomID)
}

func (s *Stream) copyLocked(roomID domain.RoomID) []domain.Message {
	msgs := s.byRoom[roomID]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}
