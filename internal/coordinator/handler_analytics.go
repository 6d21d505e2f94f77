package coordinator

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/btlivestream/backend/internal/analytics"
	"github.com/btlivestream/backend/pkg/response"
)

// BatchTrackRequest is the body for POST /analytics/batch-track. Events are decoded one
// by one so a malformed entry fails alone.
type BatchTrackRequest struct {
	Events []json.RawMessage `json:"events"`
}

// Track handles POST /analytics/track.
func (h *Handler) Track(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var in analytics.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	e, err := h.svc.Track(c.Request.Context(), user, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, e)
}

// BatchTrack handles POST /analytics/batch-track.
func (h *Handler) BatchTrack(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req BatchTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.BatchTrack(c.Request.Context(), user, req.Events)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Debug("batch tracked", zap.Int("succeeded", res.Succeeded), zap.Int("failed", res.Failed))
	response.OKMessage(c, fmt.Sprintf("Tracked %d of %d events", res.Succeeded, res.Total), res)
}

// SessionAnalytics handles GET /analytics/session/:sessionId.
func (h *Handler) SessionAnalytics(c *gin.Context) {
	id, ok := pathID(c, "sessionId")
	if !ok {
		return
	}
	events, err := h.svc.SessionAnalytics(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, events)
}

// SessionStats handles GET /analytics/session/:sessionId/stats.
func (h *Handler) SessionStats(c *gin.Context) {
	id, ok := pathID(c, "sessionId")
	if !ok {
		return
	}
	stats, err := h.svc.Stats(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// ExportURL handles GET /analytics/session/:sessionId/export-url. Host only.
func (h *Handler) ExportURL(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "sessionId")
	if !ok {
		return
	}
	link, err := h.svc.ExportURL(c.Request.Context(), id, user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, link)
}

// UserAnalytics handles GET /analytics/user?limit=.
func (h *Handler) UserAnalytics(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	events, err := h.svc.UserAnalytics(c.Request.Context(), user, cast.ToInt(c.Query("limit")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, events)
}
