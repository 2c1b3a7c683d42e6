package service

import (
	"context"
	"log/slog"

	"vpn-backend/internal/db"
)

const defaultBonusAmount = 100

// ReferralBonusEngine начисляет пригласившему разовый бонус за первую
// успешную оплату приглашенного.
type ReferralBonusEngine struct {
	bonuses BonusStore
	amount  int
}

func NewReferralBonusEngine(bonuses BonusStore) *ReferralBonusEngine {
	return &ReferralBonusEngine{
		bonuses: bonuses,
		amount:  defaultBonusAmount,
	}
}

// OnFirstSuccessfulPayment создает бонус (пригласивший, приглашенный),
// если у плательщика есть пригласивший и бонуса за него еще нет.
// Сбой создания (например, гонка с дублем) логируется и не повторяется:
// платеж от этого не откатывается.
func (e *ReferralBonusEngine) OnFirstSuccessfulPayment(ctx context.Context, user *db.User) {
	if user.ReferrerID == nil {
		return
	}

	existing, err := e.bonuses.BonusByInvited(user.ID)
	if err != nil {
		slog.Error("Referral bonus lookup failed", "user_id", user.ID, "error", err)
		return
	}
	if existing != nil {
		return
	}

	bonus := db.ReferralBonus{
		InviterID: *user.ReferrerID,
		InvitedID: user.ID,
		Amount:    e.amount,
	}
	if err := e.bonuses.CreateBonus(&bonus); err != nil {
		slog.Error("Referral bonus creation failed",
			"inviter_id", *user.ReferrerID,
			"invited_id", user.ID,
			"error", err,
		)
		return
	}

	slog.Info("Referral bonus awarded",
		"inviter_id", *user.ReferrerID,
		"invited_id", user.ID,
		"amount", e.amount,
	)
}

// BonusSummary - сводка бонусов пользователя как пригласившего.
type BonusSummary struct {
	Count int64 `json:"count"`
	Total int   `json:"total"`
}

func (e *ReferralBonusEngine) Summary(inviterID uint) (BonusSummary, error) {
	count, total, err := e.bonuses.BonusSummary(inviterID)
	if err != nil {
		return BonusSummary{}, err
	}
	return BonusSummary{Count: count, Total: total}, nil
}
