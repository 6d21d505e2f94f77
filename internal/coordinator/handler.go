package coordinator

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/btlivestream/backend/internal/middleware"
	"github.com/btlivestream/backend/pkg/response"
)

// Handler exposes the coordinator over HTTP. Every route expects middleware.JWT.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a coordinator handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the session and analytics routes on api.
func (h *Handler) Register(api *gin.RouterGroup) {
	s := api.Group("/sessions")
	{
		s.POST("", h.CreateSession)
		s.GET("", h.ListSessions)
		s.GET("/my-sessions", h.MySessions)
		s.GET("/room/:roomCode", h.GetSessionByRoomCode)
		s.GET("/:id", h.GetSession)
		s.POST("/:id/start", h.StartSession)
		s.POST("/:id/end", h.EndSession)
		s.POST("/:id/recording", h.SetRecording)
		s.POST("/:id/join", h.JoinSession)
		s.POST("/:id/leave", h.LeaveSession)
		s.GET("/:id/participants", h.ListParticipants)
	}
	a := api.Group("/analytics")
	{
		a.POST("/track", h.Track)
		a.POST("/batch-track", h.BatchTrack)
		a.GET("/session/:sessionId", h.SessionAnalytics)
		a.GET("/session/:sessionId/stats", h.SessionStats)
		a.GET("/session/:sessionId/export-url", h.ExportURL)
		a.GET("/user", h.UserAnalytics)
	}
}

// actor returns the authenticated user or writes 401.
func actor(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
	}
	return id, ok
}

// pathID parses a uuid path parameter or writes 400.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}
