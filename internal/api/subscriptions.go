package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"vpn-backend/internal/db"
	"vpn-backend/internal/service"
)

type subscriptionRequest struct {
	TgID       int64               `json:"tg_id" binding:"required"`
	SubID      *uint               `json:"sub_id"`
	Type       db.SubscriptionType `json:"type"`
	Duration   db.Duration         `json:"duration"`
	RegionCode string              `json:"region_code"`
	Protocol   db.Protocol         `json:"protocol"`
}

type certificateResponse struct {
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url,omitempty"`
	ConnURL     string `json:"conn_url,omitempty"`
}

type subscriptionResponse struct {
	ID           uint                  `json:"id"`
	Type         db.SubscriptionType   `json:"type"`
	Protocol     db.Protocol           `json:"protocol"`
	RegionCode   string                `json:"region_code"`
	Active       bool                  `json:"active"`
	EndDate      time.Time             `json:"end_date"`
	Certificates []certificateResponse `json:"certificates"`
}

func toSubscriptionResponse(sub *db.Subscription) subscriptionResponse {
	resp := subscriptionResponse{
		ID:           sub.ID,
		Type:         sub.Type,
		Protocol:     sub.Protocol,
		RegionCode:   sub.Region.Code,
		Active:       sub.Active,
		EndDate:      sub.EndDate,
		Certificates: make([]certificateResponse, 0, len(sub.Certificates)),
	}
	for _, cert := range sub.Certificates {
		resp.Certificates = append(resp.Certificates, certificateResponse{
			Filename:    cert.Filename,
			DownloadURL: cert.DownloadURL,
			ConnURL:     cert.ConnURL,
		})
	}
	return resp
}

func (r subscriptionRequest) toServiceRequest() (service.SubscriptionRequest, bool) {
	if !r.Type.IsValid() || !r.Protocol.IsValid() {
		return service.SubscriptionRequest{}, false
	}
	if r.Duration != "" && !r.Duration.IsValid() {
		return service.SubscriptionRequest{}, false
	}
	return service.SubscriptionRequest{
		TgID:       r.TgID,
		SubID:      r.SubID,
		Type:       r.Type,
		Duration:   r.Duration,
		RegionCode: r.RegionCode,
		Protocol:   r.Protocol,
	}, true
}

// createSubscription - пробная подписка сразу (201) либо ссылка на
// оплату платного тарифа (200).
func (h *Handler) createSubscription(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	svcReq, ok := req.toServiceRequest()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown type, protocol or duration"})
		return
	}
	if len(svcReq.RegionCode) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "region_code must be a two-letter code"})
		return
	}

	sub, answer, err := h.orch.TrialOrPay(c.Request.Context(), svcReq)
	if err != nil {
		writeError(c, err)
		return
	}
	if sub != nil {
		c.JSON(http.StatusCreated, toSubscriptionResponse(sub))
		return
	}
	c.JSON(http.StatusOK, answer)
}

// updateSubscription - продление или изменение: всегда отвечает
// ссылкой на оплату, мутация откладывается до вебхука.
func (h *Handler) updateSubscription(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Type != "" && !req.Type.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown subscription type"})
		return
	}
	if req.Protocol != "" && !req.Protocol.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown protocol"})
		return
	}
	if req.Duration != "" && !req.Duration.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown duration"})
		return
	}
	if req.RegionCode != "" && len(req.RegionCode) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "region_code must be a two-letter code"})
		return
	}

	answer, err := h.orch.RenewOrUpdate(c.Request.Context(), service.SubscriptionRequest{
		TgID:       req.TgID,
		SubID:      req.SubID,
		Type:       req.Type,
		Duration:   req.Duration,
		RegionCode: req.RegionCode,
		Protocol:   req.Protocol,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

func (h *Handler) getSubscriptions(c *gin.Context) {
	tgID, err := strconv.ParseInt(c.Param("tg_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid telegram id"})
		return
	}

	subs, err := h.orch.Subscriptions(c.Request.Context(), tgID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]subscriptionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, toSubscriptionResponse(&subs[i]))
	}
	c.JSON(http.StatusOK, out)
}

type priceResponse struct {
	Type     db.SubscriptionType `json:"type"`
	Duration db.Duration         `json:"duration"`
	Price    int                 `json:"price"`
}

func (h *Handler) listPrices(c *gin.Context) {
	prices, err := h.prices.ListPrices()
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]priceResponse, 0, len(prices))
	for _, p := range prices {
		out = append(out, priceResponse{Type: p.Type, Duration: p.Duration, Price: p.Amount})
	}
	c.JSON(http.StatusOK, out)
}

// sweep - внешний триггер планового прохода; безопасен к повторным
// вызовам за период.
func (h *Handler) sweep(c *gin.Context) {
	report, err := h.orch.Sweep(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
