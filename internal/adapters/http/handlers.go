package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/dkeye/voicematch/internal/app/session"
	"github.com/dkeye/voicematch/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type ConnectRequest struct {
	Role     string `json:"role" binding:"required"`
	Language string `json:"language"`
}

type StateResponse struct {
	State     domain.ConnectionState `json:"state"`
	Connected bool                   `json:"connected"`
	Muted     bool                   `json:"muted"`
}

type ThemeRequest struct {
	Theme string `json:"theme" binding:"required,oneof=light dark"`
}

type controller struct {
	svc     Session
	hub     *Hub
	limiter *ConnectLimiter
	log     zerolog.Logger
}

func (h *controller) snapshot() StateResponse {
	return StateResponse{
		State:     h.svc.State(),
		Connected: h.svc.IsConnected(),
		Muted:     h.svc.Muted(),
	}
}

func (h *controller) connect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid role"})
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Language == "" {
		req.Language = domain.DefaultLanguage
	}

	uid := userID(c)
	if !h.limiter.Allow(uid) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
		return
	}

	cfg := domain.SessionConfig{Role: role, UserID: uid, Language: req.Language}
	h.log.Info().Str("user", string(uid)).Str("role", string(role)).Str("language", req.Language).Msg("connect requested")

	err = h.svc.Connect(c.Request.Context(), cfg)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, h.snapshot())
	case errors.Is(err, session.ErrSessionActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidConfig):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Warn().Err(err).Str("user", string(uid)).Msg("connect failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "state": h.svc.State()})
	}
}

func (h *controller) mute(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"muted": h.svc.ToggleMute()})
}

func (h *controller) disconnect(c *gin.Context) {
	h.svc.Disconnect()
	c.Status(http.StatusNoContent)
}

func (h *controller) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.snapshot())
}

// events streams session events as SSE, starting with the current state.
func (h *controller) events(c *gin.Context) {
	_, ch, cancel := h.hub.Subscribe()
	defer cancel()

	current := h.svc.State()
	c.SSEvent(EventState, Event{Type: EventState, State: &current})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(e.Type, e)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (h *controller) getTheme(c *gin.Context) {
	theme, _ := sessions.Default(c).Get(sessionTheme).(string)
	if theme == "" {
		theme = "light"
	}
	c.JSON(http.StatusOK, gin.H{"theme": theme})
}

func (h *controller) putTheme(c *gin.Context) {
	var req ThemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "theme must be light or dark"})
		return
	}
	s := sessions.Default(c)
	s.Set(sessionTheme, req.Theme)
	if err := s.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save preference"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": req.Theme})
}

func (h *controller) languages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"languages": domain.Languages(),
		"default":   domain.DefaultLanguage,
	})
}
