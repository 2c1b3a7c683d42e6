package service

import (
	"fmt"
	"time"

	"vpn-backend/internal/db"
)

const trialDays = 3

// DeviceCount - количество устройств для типа подписки.
// Типы проверяются на границе API; неизвестный тип сюда не доходит.
func DeviceCount(t db.SubscriptionType) int {
	switch t {
	case db.TypeTrial:
		return 1
	case db.TypeDevices2:
		return 2
	case db.TypeDevices4:
		return 4
	}
	panic(fmt.Sprintf("unknown subscription type %q", t))
}

// durationDays - длительность подписки в днях.
// Длительности проверяются на границе API вместе с типами.
func durationDays(d db.Duration) int {
	switch d {
	case db.DurationMonth1:
		return 30
	case db.DurationMonth6:
		return 182
	case db.DurationYear1:
		return 365
	}
	panic(fmt.Sprintf("unknown duration %q", d))
}

// ExtendEndDate продлевает срок подписки. Отсчет всегда идет от
// max(now, текущий срок): продление истекшей подписки начинается
// с момента оплаты, а не от устаревшей даты.
func ExtendEndDate(current, now time.Time, d db.Duration) time.Time {
	base := now
	if current.After(now) {
		base = current
	}
	return base.AddDate(0, 0, durationDays(d))
}

// TrialEndDate - срок пробной подписки.
func TrialEndDate(now time.Time) time.Time {
	return now.AddDate(0, 0, trialDays)
}
