package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/btlivestream/backend/internal/apperr"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    apperr.Kind `json:"kind,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// OKMessage sends a 200 JSON response with a message and optional data.
func OKMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Message: message, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err, Kind: apperr.KindValidation})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Error: err})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Error: err, Kind: apperr.KindAuthorization})
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Error: err, Kind: apperr.KindNotFound})
}

// Conflict sends 409.
func Conflict(c *gin.Context, err string) {
	c.JSON(http.StatusConflict, Body{Success: false, Error: err, Kind: apperr.KindConflict})
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, err string) {
	c.JSON(http.StatusServiceUnavailable, Body{Success: false, Error: err, Kind: apperr.KindTransient})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: err})
}

// Error maps an apperr kind to its HTTP status. Unclassified errors become 500
// without leaking their text; server-side failures are attached to the context for the
// request logger.
func Error(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		BadRequest(c, err.Error())
	case apperr.KindNotFound:
		NotFound(c, err.Error())
	case apperr.KindAuthorization:
		Forbidden(c, err.Error())
	case apperr.KindConflict:
		Conflict(c, err.Error())
	case apperr.KindTransient:
		_ = c.Error(err)
		ServiceUnavailable(c, "storage temporarily unavailable, retry later")
	default:
		_ = c.Error(err)
		Internal(c, "internal server error")
	}
}
