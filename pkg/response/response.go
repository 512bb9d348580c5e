// Package response writes the JSON envelope every endpoint answers with.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aura-studio/backend/internal/apperror"
)

// Body is the standard API response envelope. Code is a stable machine-readable failure
// class and is empty on success.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// Accepted sends a 202 for work that continues in the background.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func fail(c *gin.Context, status int, code apperror.Kind, msg string) {
	c.JSON(status, Body{Success: false, Error: msg, Code: string(code)})
}

// BadRequest sends 400 for a malformed request.
func BadRequest(c *gin.Context, msg string) {
	fail(c, http.StatusBadRequest, apperror.KindInvalidInput, msg)
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Error: msg, Code: "unauthorized"})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Error: msg, Code: "forbidden"})
}

// Conflict sends 409.
func Conflict(c *gin.Context, msg string) {
	c.JSON(http.StatusConflict, Body{Success: false, Error: msg, Code: "conflict"})
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, msg string) {
	c.JSON(http.StatusServiceUnavailable, Body{Success: false, Error: msg, Code: "unavailable"})
}

// Internal sends 500.
func Internal(c *gin.Context, msg string) {
	fail(c, http.StatusInternalServerError, apperror.KindInternal, msg)
}

// Error maps err to its status and stable code. Only the client-safe message is written.
func Error(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	code := string(kind)
	if sub := apperror.CodeOf(err); sub != "" {
		code = sub
	}
	c.JSON(apperror.HTTPStatus(kind), Body{Success: false, Error: apperror.PublicMessage(err), Code: code})
}
