// Package ws upgrades authenticated clients and pumps events between
// the transport and the coordination core.
package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/wavechat/wave/internal/app"
	"github.com/wavechat/wave/internal/core"
)

const writeWait = 5 * time.Second

type Controller struct {
	Coord      *app.Coordinator
	Verify     core.TokenVerifier
	ReadLimit  int64
	PingPeriod time.Duration
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func bearerToken(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	h := c.GetHeader("Authorization")
	if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
		return rest
	}
	return ""
}

// Handle authenticates the handshake before upgrading. A bad or
// expired token is refused outright; there is no anonymous access.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	claims, err := ctl.Verify(bearerToken(c))
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("handshake refused")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
		return
	}

	wsock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}

	conn := newWSConn(wsock)
	client, err := ctl.Coord.Connect(c.Request.Context(), conn, claims)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("user", string(claims.UserID)).Msg("connect failed")
		conn.Close()
		return
	}
	log.Info().Str("module", "ws").Str("sid", string(client.SID)).Str("user", string(claims.UserID)).Msg("client connected")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, client, conn)
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump dispatches inbound events one at a time; each is handled to
// completion, including its broadcasts, before the next is read. The
// deferred cleanup runs no matter how the loop exits.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, client *app.Client, c *wsConn) {
	defer func() {
		log.Info().Str("module", "ws").Str("sid", string(client.SID)).Msg("readPump closing")
		ctl.Coord.Disconnect(client)
		cancel()
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.ReadLimit)
	pongWait := ctl.PingPeriod + 10*time.Second
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.dispatch(ctx, client, c, data)
		}
	}
}
