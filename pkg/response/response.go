package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corkboard/backend/internal/errdef"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Code    errdef.Kind `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	fail(c, http.StatusBadRequest, errdef.KindValidationFailed, err)
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	fail(c, http.StatusUnauthorized, errdef.KindUnauthenticated, err)
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	fail(c, http.StatusForbidden, errdef.KindForbidden, err)
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	fail(c, http.StatusNotFound, errdef.KindNotFound, err)
}

// Conflict sends 409.
func Conflict(c *gin.Context, err string) {
	fail(c, http.StatusConflict, errdef.KindConflict, err)
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	fail(c, http.StatusInternalServerError, errdef.KindInternal, err)
}

// Error maps an errdef error to its status code and writes it. Errors of
// unknown kind are answered with a generic 500 so storage details never leak;
// callers log them before calling Error.
func Error(c *gin.Context, err error) {
	kind := errdef.KindOf(err)
	status := StatusFor(kind)
	msg := "internal error"
	if kind != errdef.KindInternal {
		msg = err.Error()
	}
	fail(c, status, kind, msg)
}

// StatusFor returns the HTTP status for an error kind.
func StatusFor(kind errdef.Kind) int {
	switch kind {
	case errdef.KindUnauthenticated:
		return http.StatusUnauthorized
	case errdef.KindForbidden:
		return http.StatusForbidden
	case errdef.KindNotFound:
		return http.StatusNotFound
	case errdef.KindConflict, errdef.KindCapacityExceeded:
		return http.StatusConflict
	case errdef.KindValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, status int, kind errdef.Kind, err string) {
	c.JSON(status, Body{Success: false, Code: kind, Error: err})
}
