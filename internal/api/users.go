package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type createUserRequest struct {
	TgID         int64  `json:"tg_id" binding:"required"`
	ReferrerTgID *int64 `json:"referrer_tg_id"`
}

type userResponse struct {
	TgID     int64 `json:"tg_id"`
	RefCount int   `json:"ref_count"`
}

// createUser - регистрация при первом контакте; повторный вызов
// возвращает существующего пользователя.
func (h *Handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetOrCreate(c.Request.Context(), req.TgID, req.ReferrerTgID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userResponse{TgID: user.TgID, RefCount: user.RefCount})
}

// referralSummary - сводка бонусов пользователя как пригласившего.
func (h *Handler) referralSummary(c *gin.Context) {
	tgID, err := strconv.ParseInt(c.Param("tg_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid telegram id"})
		return
	}

	user, err := h.userStore.UserByTgID(tgID)
	if err != nil {
		writeError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	summary, err := h.bonuses.Summary(user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
