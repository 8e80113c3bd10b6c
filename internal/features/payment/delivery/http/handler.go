package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"outlivion-contest-backend/internal/common/middleware"
	"outlivion-contest-backend/internal/features/payment/models"
	paymentservice "outlivion-contest-backend/internal/features/payment/service"
)

type PaymentHandler struct {
	service       paymentservice.PaymentEventService
	webhookSecret string
}

func NewPaymentHandler(service paymentservice.PaymentEventService, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{
		service:       service,
		webhookSecret: webhookSecret,
	}
}

func (h *PaymentHandler) RegisterRoutes(router *gin.RouterGroup) {
	payments := router.Group("/payments")
	payments.Use(middleware.RequireWebhookSecret(h.webhookSecret))
	{
		payments.POST("/webhook", h.webhook)
	}
}

// @Summary Payment provider webhook
// @Description Accepts payment.completed and payment.refunded signals. Duplicate deliveries are no-op successes.
// @Tags payments
// @Accept json
// @Produce json
// @Param input body models.WebhookEvent true "Payment event"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 401 {object} map[string]string "Invalid webhook secret"
// @Router /payments/webhook [post]
func (h *PaymentHandler) webhook(c *gin.Context) {
	var event models.WebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.Process(c.Request.Context(), &event); err != nil {
		c.Error(err)
		return
	}

	// Повторные доставки тоже отвечают 200: провайдер не должен ретраить
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
