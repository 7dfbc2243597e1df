package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// EscrowHandler отвечает за операции леджера: открытие, освобождение
// и возврат escrow транзакций.
type EscrowHandler struct {
	ledger *service.LedgerService
	jobs   *repository.JobRepository
	users  *repository.UserRepository
}

// NewEscrowHandler создаёт новый хэндлер.
func NewEscrowHandler(ledger *service.LedgerService, jobs *repository.JobRepository, users *repository.UserRepository) *EscrowHandler {
	return &EscrowHandler{ledger: ledger, jobs: jobs, users: users}
}

// Create обрабатывает POST /api/escrow.
func (h *EscrowHandler) Create(c *gin.Context) {
	clientID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateEscrowRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	in, err := h.buildCreateInput(clientID, &req)
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	tx, result, err := h.ledger.Create(c.Request.Context(), *in)
	if err != nil {
		common.Fail(c, err)
		return
	}

	common.RespondJSON(c, http.StatusCreated, dto.EscrowResponse{
		EscrowTransaction: tx,
		Warnings:          result.Warnings,
	})
}

// Preview обрабатывает POST /api/escrow/preview: проверка платежа и
// расчёт комиссии без создания транзакции.
func (h *EscrowHandler) Preview(c *gin.Context) {
	clientID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.PreviewEscrowRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		common.RespondBadRequest(c, "job_id должен быть валидным UUID")
		return
	}
	workerID, err := uuid.Parse(req.WorkerID)
	if err != nil {
		common.RespondBadRequest(c, "worker_id должен быть валидным UUID")
		return
	}
	var milestoneID *uuid.UUID
	if req.MilestoneID != nil {
		parsed, err := uuid.Parse(*req.MilestoneID)
		if err != nil {
			common.RespondBadRequest(c, "milestone_id должен быть валидным UUID")
			return
		}
		milestoneID = &parsed
	}

	ctx := c.Request.Context()
	job, _ := h.jobs.GetByID(ctx, jobID)
	client, _ := h.users.GetByID(ctx, clientID)
	worker, _ := h.users.GetByID(ctx, workerID)

	result := h.ledger.Validate(ctx, job, client, worker, req.Amount, milestoneID)

	resp := dto.PreviewResponse{
		Valid:    result.OK(),
		Errors:   result.Errors,
		Warnings: result.Warnings,
	}
	if worker != nil {
		recurring, err := h.ledger.IsRecurringClient(ctx, clientID)
		if err != nil {
			common.Fail(c, err)
			return
		}
		fee := h.ledger.ComputeFee(req.Amount, recurring, worker.Tier)
		resp.Fee = fee.Fee
		resp.WorkerNet = fee.WorkerNet
		resp.EffectiveRate = fee.EffectiveRate
	}

	common.RespondJSON(c, http.StatusOK, resp)
}

// Get обрабатывает GET /api/escrow/:id.
func (h *EscrowHandler) Get(c *gin.Context) {
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

	common.RespondJSON(c, http.StatusOK, tx)
}

// List обрабатывает GET /api/escrow.
func (h *EscrowHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	txs, err := h.ledger.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"transactions": txs})
}

// Timeline обрабатывает GET /api/escrow/:id/timeline.
func (h *EscrowHandler) Timeline(c *gin.Context) {
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

	events, phase, err := h.ledger.Timeline(c.Request.Context(), txID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	common.RespondJSON(c, http.StatusOK, dto.TimelineResponse{
		TransactionID: txID.String(),
		Phase:         phase,
		Events:        events,
	})
}

// Release обрабатывает POST /api/escrow/:id/release.
func (h *EscrowHandler) Release(c *gin.Context) {
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

	var req dto.ReleaseEscrowRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	// Форсировать релиз может только администратор.
	force := role == models.RoleAdmin
	tx, err := h.ledger.Release(c.Request.Context(), txID, userID, req.Reason, force)
	if err != nil {
		common.Fail(c, err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "средства освобождены", tx)
}

// Refund обрабатывает POST /api/escrow/:id/refund.
func (h *EscrowHandler) Refund(c *gin.Context) {
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

	var req dto.RefundEscrowRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	tx, err := h.ledger.Refund(c.Request.Context(), txID, userID, role, req.Reason, req.PartialAmount)
	if err != nil {
		common.Fail(c, err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "средства возвращены", tx)
}

func (h *EscrowHandler) buildCreateInput(clientID uuid.UUID, req *dto.CreateEscrowRequest) (*service.CreateEscrowInput, error) {
	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		return nil, common.ErrInvalidUUID
	}
	workerID, err := uuid.Parse(req.WorkerID)
	if err != nil {
		return nil, common.ErrInvalidUUID
	}

	in := &service.CreateEscrowInput{
		JobID:         jobID,
		ClientID:      clientID,
		WorkerID:      workerID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	}
	if req.MilestoneID != nil {
		milestoneID, err := uuid.Parse(*req.MilestoneID)
		if err != nil {
			return nil, common.ErrInvalidUUID
		}
		in.MilestoneID = &milestoneID
	}
	return in, nil
}
