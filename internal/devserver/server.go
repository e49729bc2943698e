// Package devserver is an in-memory stand-in for the production
// backend: the socket endpoint plus the REST collaborators the client
// core consumes. It exists for local development and integration
// tests.
package devserver

import (
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sitterspot/realtime/internal/config"
	"github.com/sitterspot/realtime/internal/domain"
)

// ClientTokenMiddleware tags every browser with a stable dev token.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, store *Store, hub *Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	sessionStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("SitterSpotDev", sessionStore))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "devserver").Msg("router setup")

	api := r.Group("/api")
	api.GET("/ws/sync", hub.HandleSync)

	pins := api.Group("/location-pins")
	pins.GET("/all-pins", func(c *gin.Context) {
		c.JSON(http.StatusOK, store.AllPins())
	})
	pins.GET("/in-bounds", func(c *gin.Context) {
		b, err := parseBounds(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, store.PinsInBounds(b))
	})
	pins.GET("/search", func(c *gin.Context) {
		owner := domain.UserID(c.Query("userId"))
		found := store.PinsOf(owner)
		if len(found) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"pinId": ""})
			return
		}
		c.JSON(http.StatusOK, found)
	})

	r.GET("/messages/chat/:roomId", func(c *gin.Context) {
		roomID := domain.RoomID(c.Param("roomId"))
		if err := domain.ValidateRoomID(roomID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, store.Messages(roomID))
	})

	return r
}

func parseBounds(c *gin.Context) (domain.Bounds, error) {
	var b domain.Bounds
	var err error
	if b.North, err = strconv.ParseFloat(c.Query("north"), 64); err != nil {
		return b, err
	}
	if b.South, err = strconv.ParseFloat(c.Query("south"), 64); err != nil {
		return b, err
	}
	if b.East, err = strconv.ParseFloat(c.Query("east"), 64); err != nil {
		return b, err
	}
	if b.West, err = strconv.ParseFloat(c.Query("west"), 64); err != nil {
		return b, err
	}
	return b, b.Validate()
}
