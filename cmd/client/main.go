package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sitterspot/realtime/internal/app"
	"github.com/sitterspot/realtime/internal/config"
	"github.com/sitterspot/realtime/internal/domain"
)

// Demo client: connects, shares a location, optionally joins a room
// given as the first argument, and prints whatever the server pushes.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	token := os.Getenv("SYNC_TOKEN")
	if token == "" {
		log.Fatal().Msg("SYNC_TOKEN is not set")
	}

	syncer, err := app.NewSyncer(cfg, app.Hooks{
		OnMessage: func(m domain.Message) {
			log.Info().Str("room", string(m.RoomID)).Str("from", m.SenderUsername).Str("text", m.Content).Msg("message")
		},
		OnInvitation: func(r domain.Room) {
			log.Info().Str("room", string(r.ID)).Str("name", r.Name).Msg("invited")
		},
		OnError: func(msg string) {
			log.Warn().Str("server_error", msg).Msg("error push")
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build syncer")
	}
	defer syncer.Close()

	if err := syncer.Connect(ctx, token); err != nil {
		log.Fatal().Err(err).Msg("connect")
	}

	if err := syncer.ShareLocation(domain.Coordinates{Lng: -123.12, Lat: 49.28}); err != nil {
		log.Warn().Err(err).Msg("share location")
	}

	if len(os.Args) > 1 {
		roomID := domain.RoomID(os.Args[1])
		err := syncer.Rooms.JoinRoom(roomID, func(room domain.Room, err error) {
			if err != nil {
				log.Warn().Err(err).Str("room", string(roomID)).Msg("join failed, retry explicitly")
				return
			}
			log.Info().Str("room", string(room.ID)).Str("name", room.Name).Msg("joined")
		})
		if err != nil {
			log.Warn().Err(err).Msg("join rejected locally")
		}
	}

	<-ctx.Done()
	log.Info().Msg("bye")
}
