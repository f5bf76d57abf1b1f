package http

import (
	"context"

	"github.com/dkeye/Tandem/internal/adapters/signal"
	"github.com/dkeye/Tandem/internal/app"
	"github.com/dkeye/Tandem/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware gives every browser a stable "ct" cookie used to
// correlate HTTP requests with websocket attaches in the logs.
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

type Deps struct {
	Registry *app.Registry
	Relay    *app.Relay
	// Contacts is optional; without it the contacts API is not mounted.
	Contacts ContactBook
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("TandemSessions", store))
	r.Use(ClientTokenMiddleware())

	h := &handlers{registry: deps.Registry, contacts: deps.Contacts}
	ctrl := signal.NewSignalWSController(deps.Registry, deps.Relay, signal.OptionsFromConfig(cfg))

	api := r.Group("/api")
	api.GET("/health", h.health)
	api.POST("/identify", h.identify)
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client_token", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	if deps.Contacts != nil {
		contacts := api.Group("/contacts", requireIdentity())
		contacts.GET("", h.listContacts)
		contacts.POST("/request", h.requestContact)
		contacts.GET("/requests/pending", h.pendingRequests)
		contacts.POST("/:contactId/accept", h.acceptContact)
	}

	log.Info().Str("module", "adapters.http").Bool("contacts", deps.Contacts != nil).Msg("router setup")
	return r
}
