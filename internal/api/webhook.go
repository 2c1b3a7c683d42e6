package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vpn-backend/internal/service"
)

type webhookObject struct {
	ID     string `json:"id" binding:"required"`
	Status string `json:"status" binding:"required"`
}

type webhookNotification struct {
	Type   string        `json:"type"`
	Event  string        `json:"event"`
	Object webhookObject `json:"object" binding:"required"`
}

// paymentWebhook принимает уведомления платежного шлюза. Повторные и
// промежуточные события подтверждаются без побочных эффектов, чтобы
// шлюз не ставил их в повтор.
func (h *Handler) paymentWebhook(c *gin.Context) {
	var req webhookNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, materialized, err := h.reconciler.ApplyWebhook(c.Request.Context(), service.WebhookEvent{
		Type:  req.Type,
		Event: req.Event,
		Object: service.WebhookObject{
			ID:     req.Object.ID,
			Status: req.Object.Status,
		},
	})
	if err != nil {
		if service.IsKind(err, service.KindNotFound) {
			// Неизвестная операция: подтверждаем и отбрасываем.
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "received", "materialized": materialized})
}
