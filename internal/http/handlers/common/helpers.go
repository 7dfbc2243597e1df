package common

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/middleware"
)

var (
	// ErrUserNotFound is returned when the auth middleware did not put
	// a user into the request context
	ErrUserNotFound = errors.New("пользователь не найден в контексте")

	// ErrInvalidUUID is returned when a path parameter is not a UUID
	ErrInvalidUUID = errors.New("неверный формат UUID")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CurrentUserID reads the authenticated user id from the Gin context
func CurrentUserID(c *gin.Context) (uuid.UUID, error) {
	raw, ok := c.Get(middleware.ContextUserIDKey)
	if !ok {
		return uuid.Nil, ErrUserNotFound
	}
	id, ok := raw.(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrUserNotFound
	}
	return id, nil
}

// CurrentUserRole reads the authenticated user role from the Gin context
func CurrentUserRole(c *gin.Context) (string, error) {
	raw, ok := c.Get(middleware.ContextRoleKey)
	if !ok {
		return "", ErrUserNotFound
	}
	role, ok := raw.(string)
	if !ok {
		return "", ErrUserNotFound
	}
	return role, nil
}

// ParseUUIDParam parses a UUID path parameter
func ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	raw := c.Param(name)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("параметр %s отсутствует", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidUUID
	}
	return id, nil
}

// BindAndValidate binds the JSON body into req, wrapping binding errors
// with a uniform message
func BindAndValidate(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return fmt.Errorf("ошибка валидации запроса: %w", err)
	}
	return nil
}

// Fail hands the error to the error handler middleware and aborts
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// RespondError writes a uniform error body
func RespondError(c *gin.Context, status int, message string) {
	c.JSON(status, dto.ErrorResponse{Error: message})
}

// RespondSuccess writes a uniform message+data body
func RespondSuccess(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, dto.SuccessResponse{Message: message, Data: data})
}

// RespondJSON writes data as-is
func RespondJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// RespondUnauthorized writes a 401 with an optional custom message
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "требуется авторизация"
	}
	RespondError(c, http.StatusUnauthorized, message)
}

// RespondBadRequest writes a 400 with an optional custom message
func RespondBadRequest(c *gin.Context, message string) {
	if message == "" {
		message = "некорректный запрос"
	}
	RespondError(c, http.StatusBadRequest, message)
}

// ParseIntQuery reads an integer query parameter, falling back on
// missing or malformed values
func ParseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// GetPagination reads limit/offset query parameters with clamping
func GetPagination(c *gin.Context) (limit, offset int) {
	limit = ParseIntQuery(c, "limit", defaultPageSize)
	offset = ParseIntQuery(c, "offset", 0)

	switch {
	case limit < 1:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
