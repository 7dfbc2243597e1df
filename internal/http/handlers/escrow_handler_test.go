package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/escrow-backend/internal/http/middleware"
	"github.com/ignatzorin/escrow-backend/internal/models"
)

func setupEscrowRouter(h *EscrowHandler, authenticated bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	withUser := func(c *gin.Context) {
		if authenticated {
			c.Set(middleware.ContextUserIDKey, uuid.New())
			c.Set(middleware.ContextRoleKey, models.RoleClient)
		}
		c.Next()
	}

	r.POST("/api/escrow", withUser, h.Create)
	r.POST("/api/escrow/:id/release", withUser, h.Release)
	r.POST("/api/escrow/:id/refund", withUser, h.Refund)
	return r
}

func TestEscrowHandler_Create_Unauthorized(t *testing.T) {
	h := NewEscrowHandler(nil, nil, nil)
	r := setupEscrowRouter(h, false)

	body := bytes.NewBufferString(`{"job_id":"x","worker_id":"y","amount":100}`)
	req := httptest.NewRequest(http.MethodPost, "/api/escrow", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEscrowHandler_Create_MissingFields(t *testing.T) {
	h := NewEscrowHandler(nil, nil, nil)
	r := setupEscrowRouter(h, true)

	body := bytes.NewBufferString(`{"amount":100}`)
	req := httptest.NewRequest(http.MethodPost, "/api/escrow", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ошибка валидации запроса")
}

func TestEscrowHandler_Create_InvalidJobID(t *testing.T) {
	h := NewEscrowHandler(nil, nil, nil)
	r := setupEscrowRouter(h, true)

	body := bytes.NewBufferString(`{"job_id":"не-uuid","worker_id":"` + uuid.NewString() + `","amount":100}`)
	req := httptest.NewRequest(http.MethodPost, "/api/escrow", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "UUID")
}

func TestEscrowHandler_Release_InvalidTransactionID(t *testing.T) {
	h := NewEscrowHandler(nil, nil, nil)
	r := setupEscrowRouter(h, true)

	body := bytes.NewBufferString(`{"reason":"работа принята"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/escrow/abc/release", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEscrowHandler_Refund_Unauthorized(t *testing.T) {
	h := NewEscrowHandler(nil, nil, nil)
	r := setupEscrowRouter(h, false)

	body := bytes.NewBufferString(`{"reason":"отмена заказа"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/escrow/"+uuid.NewString()+"/refund", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
