package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/service"
	"github.com/ignatzorin/escrow-backend/internal/storage"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

// DisputeHandler отвечает за жизненный цикл споров.
type DisputeHandler struct {
	disputes *service.DisputeService
	evidence *storage.EvidenceStorage
}

// NewDisputeHandler создаёт новый хэндлер.
func NewDisputeHandler(disputes *service.DisputeService, evidence *storage.EvidenceStorage) *DisputeHandler {
	return &DisputeHandler{disputes: disputes, evidence: evidence}
}

// File обрабатывает POST /api/disputes.
func (h *DisputeHandler) File(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.FileDisputeRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := validation.ValidateDisputeTitle(req.Title); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateDisputeDescription(req.Description); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	txID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		common.RespondBadRequest(c, "transaction_id должен быть валидным UUID")
		return
	}

	d, err := h.disputes.File(c.Request.Context(), service.FileDisputeInput{
		TransactionID:  txID,
		InitiatorID:    userID,
		Type:           req.Type,
		Title:          req.Title,
		Description:    req.Description,
		AmountDisputed: req.AmountDisputed,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	common.RespondJSON(c, http.StatusCreated, d)
}

// List обрабатывает GET /api/disputes.
func (h *DisputeHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	disputes, err := h.disputes.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"disputes": disputes})
}

// Get обрабатывает GET /api/disputes/:id: спор вместе с перепиской
// и доказательствами.
func (h *DisputeHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	d, err := h.disputes.Get(ctx, disputeID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	if role != models.RoleAdmin && userID != d.ClientID && userID != d.WorkerID {
		common.RespondError(c, http.StatusForbidden, "спор недоступен")
		return
	}

	messages, err := h.disputes.Messages(ctx, disputeID, userID, role)
	if err != nil {
		common.Fail(c, err)
		return
	}
	evidence, err := h.disputes.Evidence(ctx, disputeID, userID, role)
	if err != nil {
		common.Fail(c, err)
		return
	}

	common.RespondJSON(c, http.StatusOK, dto.DisputeDetailResponse{
		DisputeCase: d,
		Messages:    messages,
		Evidence:    evidence,
	})
}

// Respond обрабатывает POST /api/disputes/:id/respond.
func (h *DisputeHandler) Respond(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.RespondDisputeRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateMessage(req.Message); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.disputes.Respond(c.Request.Context(), disputeID, userID, req.Message, req.CounterOffer, req.IsAgreement, nil); err != nil {
		common.Fail(c, err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "ответ записан", nil)
}

// Escalate обрабатывает POST /api/disputes/:id/escalate.
func (h *DisputeHandler) Escalate(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.EscalateDisputeRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.disputes.EscalateToMediation(c.Request.Context(), disputeID, &userID, req.Reason); err != nil {
		common.Fail(c, err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "спор передан медиатору", nil)
}

// Resolve обрабатывает POST /api/disputes/:id/resolve.
func (h *DisputeHandler) Resolve(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.ResolveDisputeRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.disputes.Resolve(c.Request.Context(), disputeID, userID, role, req.ResolutionType, req.Amount, req.Notes); err != nil {
		common.Fail(c, err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "спор разрешён", nil)
}

// UploadEvidence обрабатывает POST /api/disputes/:id/evidence
// (multipart/form-data, поле file, опционально description).
func (h *DisputeHandler) UploadEvidence(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.RespondBadRequest(c, "файл обязателен")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		common.RespondBadRequest(c, "не удалось прочитать файл")
		return
	}
	defer file.Close()

	relPath, mime, _, err := h.evidence.Save(c.Request.Context(), disputeID, fileHeader.Filename, file)
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var description *string
	if v := c.PostForm("description"); v != "" {
		description = &v
	}

	evidence, err := h.disputes.AttachEvidence(c.Request.Context(), disputeID, userID, service.EvidenceInput{
		FileName:    fileHeader.Filename,
		FilePath:    relPath,
		MimeType:    &mime,
		Description: description,
	})
	if err != nil {
		// Запись не создана, файл на диске не нужен.
		_ = h.evidence.Delete(c.Request.Context(), relPath)
		common.Fail(c, err)
		return
	}

	common.RespondJSON(c, http.StatusCreated, evidence)
}
