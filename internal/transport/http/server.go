package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/VRMX2/USTHB-APP/internal/auth"
	"github.com/VRMX2/USTHB-APP/internal/config"
	"github.com/VRMX2/USTHB-APP/internal/core"
	"github.com/VRMX2/USTHB-APP/internal/service/notify"
	"github.com/VRMX2/USTHB-APP/internal/store"
)

// NewServer builds the HTTP server: account endpoints, portal endpoints and
// the WebSocket upgrade route.
func NewServer(hub *core.Hub, authService *auth.Service, notifier *notify.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	resolver := core.NewResolver(st)
	api := NewAPIHandlers(authService, logger)
	portal := NewPortalHandlers(hub, notifier, resolver, st, logger)

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	router.POST("/api/register", api.Register)
	router.POST("/api/login", api.Login)

	authorized := router.Group("/api", AuthMiddleware(authService, logger))
	authorized.GET("/me", api.Me)
	authorized.GET("/presence/:id", portal.Presence)
	authorized.GET("/channels/:channel/messages", portal.ChannelMessages)
	authorized.GET("/announcements", portal.ListAnnouncements)
	authorized.POST("/announcements", portal.PostAnnouncement)
	authorized.POST("/courses/:id/grades", portal.PostGrade)
	authorized.GET("/grades", portal.MyGrades)

	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, resolver, st, cfg, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
