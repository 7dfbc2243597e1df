package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// MonitorHandler отвечает за метрики и алерты. Все endpoint'ы
// доступны только администраторам.
type MonitorHandler struct {
	monitor   *service.MonitorService
	deadlines *service.DeadlineService
	disputes  *service.DisputeService
}

// NewMonitorHandler создаёт новый хэндлер.
func NewMonitorHandler(monitor *service.MonitorService, deadlines *service.DeadlineService, disputes *service.DisputeService) *MonitorHandler {
	return &MonitorHandler{monitor: monitor, deadlines: deadlines, disputes: disputes}
}

// Metrics обрабатывает GET /api/admin/metrics.
func (h *MonitorHandler) Metrics(c *gin.Context) {
	metrics, err := h.monitor.Metrics(c.Request.Context())
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.RespondJSON(c, http.StatusOK, metrics)
}

// ListAlerts обрабатывает GET /api/admin/alerts.
func (h *MonitorHandler) ListAlerts(c *gin.Context) {
	limit, offset := common.GetPagination(c)
	alerts, err := h.monitor.ListAlerts(c.Request.Context(), limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.RespondJSON(c, http.StatusOK, gin.H{"alerts": alerts})
}

// ResolveAlert обрабатывает POST /api/admin/alerts/:id/resolve.
func (h *MonitorHandler) ResolveAlert(c *gin.Context) {
	alertID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.monitor.ResolveAlert(c.Request.Context(), alertID); err != nil {
		common.Fail(c, err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "алерт закрыт", nil)
}

// RunSweep обрабатывает POST /api/admin/sweep: ручной запуск одного
// прохода планировщика вне расписания.
func (h *MonitorHandler) RunSweep(c *gin.Context) {
	ctx := c.Request.Context()

	reminders, actions := h.deadlines.Sweep(ctx)
	escalations := h.disputes.EscalationSweep(ctx)
	alerts := h.monitor.Sweep(ctx)

	common.RespondJSON(c, http.StatusOK, dto.SweepReportResponse{
		Reminders:   reminders,
		Actions:     actions,
		Escalations: escalations,
		Alerts:      alerts,
	})
}
