package coordinator

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/btlivestream/backend/pkg/response"
)

// CreateSessionRequest is the body for POST /sessions.
type CreateSessionRequest struct {
	Title           string     `json:"title"`
	Description     *string    `json:"description"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
	MaxParticipants *int       `json:"max_participants"`
}

// RecordingRequest is the body for POST /sessions/:id/recording.
type RecordingRequest struct {
	Recording *bool `json:"recording" binding:"required"`
}

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(c *gin.Context) {
	host, ok := actor(c)
	if !ok {
		return
	}
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sess, err := h.svc.Create(c.Request.Context(), host, CreateInput{
		Title:           req.Title,
		Description:     req.Description,
		ScheduledAt:     req.ScheduledAt,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sess)
}

// ListSessions handles GET /sessions?limit=&offset=.
func (h *Handler) ListSessions(c *gin.Context) {
	limit := cast.ToInt(c.Query("limit"))
	offset := cast.ToInt(c.Query("offset"))
	list, err := h.svc.ListAll(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// MySessions handles GET /sessions/my-sessions.
func (h *Handler) MySessions(c *gin.Context) {
	host, ok := actor(c)
	if !ok {
		return
	}
	list, err := h.svc.ListByHost(c.Request.Context(), host)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// GetSession handles GET /sessions/:id.
func (h *Handler) GetSession(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sess, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sess)
}

// GetSessionByRoomCode handles GET /sessions/room/:roomCode.
func (h *Handler) GetSessionByRoomCode(c *gin.Context) {
	sess, err := h.svc.GetByRoomCode(c.Request.Context(), c.Param("roomCode"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sess)
}

// StartSession handles POST /sessions/:id/start. Host only.
func (h *Handler) StartSession(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sess, err := h.svc.Start(c.Request.Context(), id, user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OKMessage(c, "session started", sess)
}

// EndSession handles POST /sessions/:id/end. Host only.
func (h *Handler) EndSession(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sess, err := h.svc.End(c.Request.Context(), id, user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OKMessage(c, "session ended", sess)
}

// SetRecording handles POST /sessions/:id/recording. Host only, live sessions only.
func (h *Handler) SetRecording(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req RecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: recording is required")
		return
	}
	sess, err := h.svc.SetRecording(c.Request.Context(), id, user, *req.Recording)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sess)
}

// JoinSession handles POST /sessions/:id/join.
func (h *Handler) JoinSession(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.Join(c.Request.Context(), id, user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OKMessage(c, "joined session", res)
}

// LeaveSession handles POST /sessions/:id/leave. Always succeeds when the caller had no
// active membership.
func (h *Handler) LeaveSession(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.svc.Leave(c.Request.Context(), id, user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OKMessage(c, "left session", p)
}

// ListParticipants handles GET /sessions/:id/participants.
func (h *Handler) ListParticipants(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.ListParticipants(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
