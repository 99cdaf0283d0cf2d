package http

import (
	"context"
	"net/http"

	"github.com/dkeye/voicematch/internal/config"
	"github.com/dkeye/voicematch/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	sessionName    = "VoicematchSession"
	sessionUserKey = "user_id"
	sessionTheme   = "theme"
	ctxUserID      = "user_id"
)

// Session is the part of the session manager the control API drives.
type Session interface {
	Connect(ctx context.Context, cfg domain.SessionConfig) error
	ToggleMute() bool
	Muted() bool
	Disconnect()
	State() domain.ConnectionState
	IsConnected() bool
}

// UserMiddleware gives every browser a persistent anonymous user id kept in
// the cookie session.
func UserMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		id, _ := s.Get(sessionUserKey).(string)
		if id == "" {
			id = string(domain.NewAnonymousUser().ID)
			s.Set(sessionUserKey, id)
			if err := s.Save(); err != nil {
				log.Error().Err(err).Msg("failed to persist anonymous user")
			}
		}
		c.Set(ctxUserID, domain.UserID(id))
		c.Next()
	}
}

func userID(c *gin.Context) domain.UserID {
	id, _ := c.Get(ctxUserID)
	uid, _ := id.(domain.UserID)
	return uid
}

func SetupRouter(cfg *config.Config, svc Session, hub *Hub, log zerolog.Logger) *gin.Engine {
	log = log.With().Str("module", "adapters.http").Logger()
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	secret := cfg.HTTP.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn().Msg("no http.secret configured, preferences will not survive a restart")
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   3600 * 24 * 365,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(UserMiddleware(log))

	if cfg.HTTP.StaticPath != "" {
		r.Static("/static", cfg.HTTP.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.HTTP.StaticPath + "/index.html")
		})
	}

	ctrl := &controller{
		svc:     svc,
		hub:     hub,
		limiter: NewConnectLimiter(cfg.HTTP.ConnectLimit, cfg.HTTP.ConnectInterval),
		log:     log,
	}

	api := r.Group("/api")

	session := api.Group("/session")
	session.POST("/connect", ctrl.connect)
	session.POST("/mute", ctrl.mute)
	session.POST("/disconnect", ctrl.disconnect)
	session.GET("/state", ctrl.state)
	session.GET("/events", ctrl.events)

	api.GET("/prefs/theme", ctrl.getTheme)
	api.PUT("/prefs/theme", ctrl.putTheme)
	api.GET("/languages", ctrl.languages)

	log.Info().Str("static", cfg.HTTP.StaticPath).Msg("router setup")
	return r
}
