package handlers

import (
	"net/http"

	"chronotick/internal/engines/session"
	"chronotick/internal/models"

	"github.com/gin-gonic/gin"
)

// SessionController is the session controller surface used by the API
type SessionController interface {
	SetParams(params models.ReplaySessionParams) error
	SetEnabled(enabled bool)
	SetPlaying(playing bool)
	CloseSocket()
	Reconnect()
	Status() session.Status
}

// LocalPauser toggles the replay store's drop-on-append flag
type LocalPauser interface {
	SetPaused(paused bool)
	Paused() bool
}

type SessionHandler struct {
	controller SessionController
	store      LocalPauser
}

func NewSessionHandler(controller SessionController, store LocalPauser) *SessionHandler {
	return &SessionHandler{
		controller: controller,
		store:      store,
	}
}

type SetSessionRequest struct {
	Symbol    string `json:"symbol"`
	Start     string `json:"start"`
	End       string `json:"end"`
	TimeScale int    `json:"timeScale"`
	GapScale  int    `json:"gapScale"`
	Enabled   *bool  `json:"enabled"`
}

type LocalPauseRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

// PUT /api/v1/session
func (sh *SessionHandler) SetSession(c *gin.Context) {
	var req SetSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid session request", err)
		return
	}

	// Unset fields take the dashboard defaults
	params := models.DefaultSessionParams(req.Symbol)
	if req.Start != "" {
		params.RangeStart = req.Start
	}
	if req.End != "" {
		params.RangeEnd = req.End
	}
	if req.TimeScale != 0 {
		params.SpeedMs = req.TimeScale
	}
	if req.GapScale != 0 {
		params.GapSpeedFactor = req.GapScale
	}

	if err := sh.controller.SetParams(params); err != nil {
		respondError(c, http.StatusBadRequest, "invalid session params", err)
		return
	}
	if req.Enabled != nil {
		sh.controller.SetEnabled(*req.Enabled)
	}

	c.JSON(http.StatusOK, sh.controller.Status())
}

// POST /api/v1/session/play
func (sh *SessionHandler) Play(c *gin.Context) {
	sh.controller.SetPlaying(true)
	c.JSON(http.StatusOK, sh.controller.Status())
}

// POST /api/v1/session/pause
func (sh *SessionHandler) Pause(c *gin.Context) {
	sh.controller.SetPlaying(false)
	c.JSON(http.StatusOK, sh.controller.Status())
}

// POST /api/v1/session/stop
func (sh *SessionHandler) Stop(c *gin.Context) {
	sh.controller.CloseSocket()
	c.JSON(http.StatusOK, sh.controller.Status())
}

// POST /api/v1/session/reconnect
func (sh *SessionHandler) Reconnect(c *gin.Context) {
	sh.controller.Reconnect()
	c.JSON(http.StatusOK, sh.controller.Status())
}

// GET /api/v1/session/status
func (sh *SessionHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, sh.controller.Status())
}

// POST /api/v1/session/local-pause
func (sh *SessionHandler) SetLocalPause(c *gin.Context) {
	var req LocalPauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "paused flag is required", err)
		return
	}

	sh.store.SetPaused(*req.Paused)
	c.JSON(http.StatusOK, gin.H{"paused": sh.store.Paused()})
}
