package fakeserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetupRouter serves the game websocket at "/" and a JSON view of the table at "/status".
func SetupRouter(ctx context.Context, s *Server) *gin.Engine {
	if s.cfg.Mode == gin.ReleaseMode || s.cfg.Mode == gin.TestMode {
		gin.SetMode(s.cfg.Mode)
	}

	r := gin.New()
	if s.cfg.Mode == gin.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		s.HandleWS(ctx, c)
	})
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"players": s.table.Snapshot(),
			"dealt":   s.table.Dealt(),
		})
	})

	log.Info().Str("module", "fakeserver").Str("mode", s.cfg.Mode).Msg("router setup")
	return r
}

func (s *Server) HandleWS(ctx context.Context, c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "fakeserver").Msg("ws upgrade")
		return
	}
	conn.SetReadLimit(s.cfg.ReadLimit)

	p := newPeer(conn)
	if !s.track(p) {
		p.Close()
		return
	}
	log.Info().Str("module", "fakeserver").Str("addr", p.addr).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		s.writePump(ctx, p)
		cancel()
		p.Close()
	}()
	go func() {
		s.readPump(ctx, p)
		cancel()
	}()
}
