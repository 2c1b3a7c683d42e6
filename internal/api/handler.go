package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"vpn-backend/internal/service"
)

// Handler держит сервисы оркестратора для HTTP-слоя.
type Handler struct {
	users      *service.UserService
	orch       *service.SubscriptionOrchestrator
	reconciler *service.PaymentReconciler
	bonuses    *service.ReferralBonusEngine
	prices     service.PriceStore
	userStore  service.UserStore
}

func NewHandler(
	users *service.UserService,
	orch *service.SubscriptionOrchestrator,
	reconciler *service.PaymentReconciler,
	bonuses *service.ReferralBonusEngine,
	prices service.PriceStore,
	userStore service.UserStore,
) *Handler {
	return &Handler{
		users:      users,
		orch:       orch,
		reconciler: reconciler,
		bonuses:    bonuses,
		prices:     prices,
		userStore:  userStore,
	}
}

// Register вешает маршруты на gin-движок.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/users", h.createUser)

	r.GET("/subscriptions/price", h.listPrices)
	r.POST("/subscriptions", h.createSubscription)
	r.GET("/subscriptions/:tg_id", h.getSubscriptions)
	r.PATCH("/subscriptions", h.updateSubscription)
	r.POST("/subscriptions/answer", h.paymentWebhook)
	r.POST("/subscriptions/sweep", h.sweep)

	r.GET("/referral/:tg_id", h.referralSummary)
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case service.KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		c.JSON(statusFor(svcErr.Kind), gin.H{"error": svcErr.Message})
		return
	}
	slog.Error("Request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
