// Package app wires the sync subsystems together: one channel, one
// marker arena, and the reconcilers feeding off it. The Syncer is the
// only place inbound events are registered, which keeps event
// ownership disjoint by construction.
package app

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sitterspot/realtime/internal/channel"
	"github.com/sitterspot/realtime/internal/chat"
	"github.com/sitterspot/realtime/internal/config"
	"github.com/sitterspot/realtime/internal/domain"
	"github.com/sitterspot/realtime/internal/markers"
	"github.com/sitterspot/realtime/internal/pins"
	"github.com/sitterspot/realtime/internal/rooms"
	"github.com/sitterspot/realtime/internal/viewport"
)

// Hooks are optional UI callbacks. All fire on channel goroutines.
type Hooks struct {
	OnMessage    func(domain.Message)
	OnInvitation func(domain.Room)
	OnCenterMap  func(domain.Coordinates)
	OnError      func(string)
}

type Syncer struct {
	Channel  *channel.Channel
	Markers  *markers.Registry
	Pins     *pins.Reconciler
	Rooms    *rooms.Manager
	Presence *rooms.Presence
	Chat     *chat.Stream
	Gate     *viewport.Gate

	hooks Hooks

	mu    sync.Mutex
	token string
}

func NewSyncer(cfg *config.Config, hooks Hooks) (*Syncer, error) {
	s := &Syncer{hooks: hooks}

	dispatcher := channel.NewDispatcher()
	s.Channel = channel.New(channel.Options{
		URL:         cfg.SocketURL,
		MaxAttempts: cfg.ReconnectAttempts,
		Backoff:     cfg.ReconnectBackoff,
		AckTimeout:  cfg.AckTimeout,
		SendBuffer:  cfg.SendBuffer,
	}, dispatcher)

	s.Markers = markers.NewRegistry()
	s.Pins = pins.NewReconciler(pins.NewClient(cfg.ServerURL, s.bearer), s.Markers)
	s.Rooms = rooms.NewManager(s.Channel)
	s.Presence = rooms.NewPresence(s.Channel)
	s.Chat = chat.NewStream(s.Channel, chat.NewClient(cfg.ServerURL, s.bearer))
	s.Gate = viewport.NewGate(cfg.ViewportQuiet, cfg.MinZoom, s.queryViewport)

	s.Rooms.SetInvitationHook(hooks.OnInvitation)
	s.Chat.SetMessageHook(func(m domain.Message) {
		s.Rooms.NoteMessage(m)
		if hooks.OnMessage != nil {
			hooks.OnMessage(m)
		}
	})

	if err := s.register(dispatcher); err != nil {
		return nil, err
	}

	s.Channel.OnConnect(func(epoch uint64) {
		s.Rooms.OnConnect(epoch)
		_ = s.Channel.Emit(channel.EventGetRooms, nil)
		s.Presence.Refresh()
		go func() {
			_ = s.Pins.Refresh(context.Background())
		}()
	})

	return s, nil
}

func (s *Syncer) register(d *channel.Dispatcher) error {
	regs := []struct {
		ev channel.EventType
		h  channel.Handler
	}{
		{channel.EventRoomsList, s.Rooms.HandleRoomsList},
		{channel.EventRoomCreated, s.Rooms.HandleRoomCreated},
		{channel.EventRoomJoined, s.Rooms.HandleRoomJoined},
		{channel.EventRoomDeleted, s.Rooms.HandleRoomDeleted},
		{channel.EventRoomInvitation, s.Rooms.HandleRoomInvitation},
		{channel.EventReceiveMessage, s.Chat.HandleReceiveMessage},
		{channel.EventPinCreated, s.handlePinUpsert},
		{channel.EventPinUpdated, s.handlePinUpsert},
		{channel.EventPinDeleted, s.handlePinDeleted},
		{channel.EventCenterMap, s.handleCenterMap},
		{channel.EventActiveRooms, s.Presence.HandleActiveRooms},
		{channel.EventUsersOnline, s.Presence.HandleUsersOnline},
		{channel.EventUserConnected, s.Presence.HandleUserConnected},
		{channel.EventUserDisconnected, s.Presence.HandleUserDisconnected},
		{channel.EventError, s.handleServerError},
	}
	for _, r := range regs {
		if err := d.Register(r.ev, r.h); err != nil {
			return err
		}
	}
	return nil
}

// Connect attaches the auth token and starts the channel. Nothing
// connects until the user is signed in.
func (s *Syncer) Connect(ctx context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return s.Channel.Connect(ctx, token)
}

func (s *Syncer) Reconnect(ctx context.Context) error {
	return s.Channel.Reconnect(ctx)
}

func (s *Syncer) Close() {
	s.Gate.Close()
	s.Channel.Close()
}

func (s *Syncer) bearer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// OnViewportChange feeds the debounce gate; a settled viewport becomes
// one viewport_update emit plus one in-bounds fetch.
func (s *Syncer) OnViewportChange(v domain.Viewport) {
	s.Gate.OnViewportChange(v)
}

func (s *Syncer) queryViewport(v domain.Viewport) {
	_ = s.Channel.Emit(channel.EventViewportUpdate, channel.ViewportUpdatePayload{
		Longitude: v.Longitude,
		Latitude:  v.Latitude,
		Zoom:      v.Zoom,
		Bounds:    v.Bounds,
	})
	go func() {
		_ = s.Pins.RefreshInBounds(context.Background(), v.Bounds)
	}()
}

// ShareLocation publishes the user's own position and pins the "self"
// marker locally.
func (s *Syncer) ShareLocation(c domain.Coordinates) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.pinSelf(c)
	return s.Channel.Emit(channel.EventShareLocation, channel.LocationPayload{Lat: c.Lat, Lng: c.Lng})
}

func (s *Syncer) pinSelf(c domain.Coordinates) {
	s.Markers.Upsert(domain.SelfMarkerID, c, markers.Options{Title: "You"})
}

func (s *Syncer) handlePinUpsert(payload json.RawMessage) {
	var p domain.Pin
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "app").Msg("bad pin payload")
		return
	}
	s.Pins.HandleUpdated(p)
}

func (s *Syncer) handlePinDeleted(payload json.RawMessage) {
	var p channel.PinDeletedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "app").Msg("bad pin_deleted payload")
		return
	}
	s.Pins.ApplyDelete(p.PinID)
}

// handleCenterMap follows the server's confirmation of a shared
// location: the self marker moves to the confirmed position before the
// UI recenters.
func (s *Syncer) handleCenterMap(payload json.RawMessage) {
	var p channel.LocationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "app").Msg("bad center_map payload")
		return
	}
	c := domain.Coordinates{Lng: p.Lng, Lat: p.Lat}
	if err := c.Validate(); err != nil {
		log.Warn().Err(err).Str("module", "app").Msg("center_map out of range")
		return
	}
	s.pinSelf(c)
	if s.hooks.OnCenterMap != nil {
		s.hooks.OnCenterMap(c)
	}
}

// handleServerError logs and optionally toasts; an error push is never
// treated as a state change.
func (s *Syncer) handleServerError(payload json.RawMessage) {
	var p channel.ErrorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "app").Msg("bad error payload")
		return
	}
	log.Warn().Str("module", "app").Str("server_error", p.Message).Msg("error push")
	if s.hooks.OnError != nil {
		s.hooks.OnError(p.Message)
	}
}
