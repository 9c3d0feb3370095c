package http

import (
	"context"

	"github.com/dkeye/SignMeet/internal/adapters/signal"
	"github.com/dkeye/SignMeet/internal/app"
	"github.com/dkeye/SignMeet/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const sessionName = "SignMeetSession"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags every browser with a long-lived token used to
// correlate its REST and websocket log lines.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator, ctl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{orch: orch}
	api := r.Group("/api")

	api.GET("/", h.health)
	api.GET("/rooms", h.listRooms)
	api.POST("/rooms", h.createRoom)
	api.GET("/rooms/:id", h.getRoom)
	api.POST("/rooms/:id/join", h.joinRoom)
	api.POST("/rooms/:id/leave", h.leaveRoom)
	api.GET("/rooms/:id/captions", h.captions)
	api.GET("/me", h.me)
	api.POST("/predict", h.predict)

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	return r
}
