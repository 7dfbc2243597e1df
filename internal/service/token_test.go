package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

func TestTokenManager_GenerateAndParse(t *testing.T) {
	manager := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	user := &models.User{ID: uuid.New(), Role: models.RoleClient}

	pair, err := manager.GeneratePair(user)
	assert.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, 15*time.Minute, pair.ExpiresIn)

	userID, role, err := manager.ParseAccess(pair.AccessToken)
	assert.NoError(t, err)
	assert.Equal(t, user.ID, userID)
	assert.Equal(t, models.RoleClient, role)

	claims, err := manager.ParseRefresh(pair.RefreshToken)
	assert.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
}

func TestTokenManager_RejectsForeignToken(t *testing.T) {
	manager := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	other := NewTokenManager("other-access", "other-refresh", 15*time.Minute, 24*time.Hour)
	user := &models.User{ID: uuid.New(), Role: models.RoleWorker}

	pair, err := other.GeneratePair(user)
	assert.NoError(t, err)

	_, _, err = manager.ParseAccess(pair.AccessToken)
	assert.Error(t, err)

	_, err = manager.ParseRefresh(pair.RefreshToken)
	assert.Error(t, err)
}

func TestTokenManager_RejectsExpiredAccess(t *testing.T) {
	manager := NewTokenManager("access-secret", "refresh-secret", -time.Minute, 24*time.Hour)
	user := &models.User{ID: uuid.New(), Role: models.RoleClient}

	pair, err := manager.GeneratePair(user)
	assert.NoError(t, err)

	_, _, err = manager.ParseAccess(pair.AccessToken)
	assert.Error(t, err)
}

func TestTokenManager_AccessAndRefreshNotInterchangeable(t *testing.T) {
	manager := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	user := &models.User{ID: uuid.New(), Role: models.RoleClient}

	pair, err := manager.GeneratePair(user)
	assert.NoError(t, err)

	_, err = manager.ParseRefresh(pair.AccessToken)
	assert.Error(t, err)

	_, _, err = manager.ParseAccess(pair.RefreshToken)
	assert.Error(t, err)
}
