package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// DeadlineHandler отвечает за просмотр и продление дедлайнов.
type DeadlineHandler struct {
	deadlines *service.DeadlineService
	ledger    *service.LedgerService
}

// NewDeadlineHandler создаёт новый хэндлер.
func NewDeadlineHandler(deadlines *service.DeadlineService, ledger *service.LedgerService) *DeadlineHandler {
	return &DeadlineHandler{deadlines: deadlines, ledger: ledger}
}

// ListByTransaction обрабатывает GET /api/escrow/:id/deadlines.
func (h *DeadlineHandler) ListByTransaction(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	txID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	tx, err := h.ledger.Get(c.Request.Context(), txID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	if tx.ClientID != userID && tx.WorkerID != userID && role != models.RoleAdmin {
		common.RespondError(c, http.StatusForbidden, "транзакция недоступна")
		return
	}

	list, err := h.deadlines.ListByTransaction(c.Request.Context(), txID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"deadlines": list})
}

// Extend обрабатывает POST /api/deadlines/:id/extend.
func (h *DeadlineHandler) Extend(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	deadlineID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.ExtendDeadlineRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if req.ExtraHours <= 0 {
		common.RespondBadRequest(c, "extra_hours должен быть положительным")
		return
	}

	extra := time.Duration(req.ExtraHours) * time.Hour
	d, err := h.deadlines.ExtendDeadline(c.Request.Context(), deadlineID, userID, role, extra, req.Reason)
	if err != nil {
		common.Fail(c, err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "дедлайн продлён", d)
}
