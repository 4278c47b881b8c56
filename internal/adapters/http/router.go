package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	wsadapter "github.com/wavechat/wave/internal/adapters/ws"
	"github.com/wavechat/wave/internal/config"
	"github.com/wavechat/wave/internal/domain"
)

// SetupRouter wires the websocket endpoint and the read-only REST
// surface for voice room occupancy.
func SetupRouter(ctx context.Context, cfg *config.Config, ctl *wsadapter.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	api := r.Group("/api")

	api.GET("/ws", func(c *gin.Context) {
		ctl.Handle(ctx, c)
	})

	api.GET("/voice/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": ctl.Coord.Rooms.List()})
	})

	api.GET("/voice/rooms/:id", func(c *gin.Context) {
		id := domain.ChannelID(c.Param("id"))
		room, ok := ctl.Coord.Rooms.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active room"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"channelId":    id,
			"name":         room.Channel().Name,
			"participants": room.Participants(),
		})
	})

	return r
}
