package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

func setupErrorRouter(fail func(c *gin.Context)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	r := gin.New()
	r.Use(ErrorHandler(log))
	r.GET("/fail", fail)
	return r
}

func TestErrorHandler_AppErrorStatusAndCode(t *testing.T) {
	r := setupErrorRouter(func(c *gin.Context) {
		_ = c.Error(apperror.New(apperror.ErrCodeInvalidState, "транзакция уже закрыта"))
		c.Abort()
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_STATE")
	assert.Contains(t, w.Body.String(), "транзакция уже закрыта")
}

func TestErrorHandler_ProcessorErrorIsRetryable(t *testing.T) {
	r := setupErrorRouter(func(c *gin.Context) {
		_ = c.Error(apperror.Processor(errors.New("timeout"), "платёж не может быть обработан"))
		c.Abort()
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"retryable":true`)
}

func TestErrorHandler_MasksUnknownErrors(t *testing.T) {
	r := setupErrorRouter(func(c *gin.Context) {
		_ = c.Error(errors.New("pq: connection reset"))
		c.Abort()
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "внутренняя ошибка сервера")
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestErrorHandler_SkipsWrittenResponses(t *testing.T) {
	r := setupErrorRouter(func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)
}
