package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"vpn-backend/internal/db"
)

const providerName = "yookassa"

// SubscriptionRequest - запрос на оформление, продление или изменение
// подписки, приходит от чат-фронтенда.
type SubscriptionRequest struct {
	TgID       int64
	SubID      *uint
	Type       db.SubscriptionType
	Duration   db.Duration
	RegionCode string
	Protocol   db.Protocol
}

// PaymentIntent - содержимое платежа: что именно оплачено.
// Сохраняется в Payment.Intent и разбирается при материализации.
type PaymentIntent struct {
	SubID      *uint               `json:"sub_id,omitempty"`
	Type       db.SubscriptionType `json:"type,omitempty"`
	Duration   db.Duration         `json:"duration"`
	RegionCode string              `json:"region_code,omitempty"`
	Protocol   db.Protocol         `json:"protocol,omitempty"`
}

// PaymentAnswer - ссылка на оплату для фронтенда.
type PaymentAnswer struct {
	Amount int    `json:"amount"`
	URL    string `json:"url"`
}

// SweepReport - итог планового прохода по подпискам.
type SweepReport struct {
	Deactivated int `json:"deactivated"`
	Expiring    int `json:"expiring"`
	Failed      int `json:"failed"`
}

// SubscriptionOrchestrator - ядро жизненного цикла подписок: пробные,
// платные, продление, смена параметров, материализация оплаты и
// плановая деактивация.
type SubscriptionOrchestrator struct {
	store       Store
	selector    *NodeSelector
	provisioner *CertificateProvisioner
	gateway     PaymentGateway
	notifier    Notifier

	now func() time.Time
}

func NewSubscriptionOrchestrator(
	store Store,
	selector *NodeSelector,
	provisioner *CertificateProvisioner,
	gateway PaymentGateway,
	notifier Notifier,
) *SubscriptionOrchestrator {
	return &SubscriptionOrchestrator{
		store:       store,
		selector:    selector,
		provisioner: provisioner,
		gateway:     gateway,
		notifier:    notifier,
		now:         time.Now,
	}
}

// TrialOrPay оформляет пробную подписку сразу либо создает платежное
// намерение для платного тарифа. Подписка по платному тарифу
// материализуется только после подтверждения оплаты вебхуком.
func (o *SubscriptionOrchestrator) TrialOrPay(ctx context.Context, req SubscriptionRequest) (*db.Subscription, *PaymentAnswer, error) {
	user, err := o.store.UserByTgID(req.TgID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, NotFoundf("user %d not found", req.TgID)
	}

	if req.Type == db.TypeTrial {
		if req.Duration != "" {
			return nil, nil, Validationf("duration is not applicable to a trial subscription")
		}
		sub, err := o.createTrial(ctx, user, req)
		return sub, nil, err
	}

	if req.Duration == "" {
		return nil, nil, Validationf("duration is required for paid subscriptions")
	}

	intent := PaymentIntent{
		Type:       req.Type,
		Duration:   req.Duration,
		RegionCode: req.RegionCode,
		Protocol:   req.Protocol,
	}
	answer, err := o.createPaymentIntent(ctx, user, intent)
	return nil, answer, err
}

// createTrial выдает пробную подписку. Пробный период одноразовый:
// любая существующая подписка пользователя блокирует выдачу.
func (o *SubscriptionOrchestrator) createTrial(ctx context.Context, user *db.User, req SubscriptionRequest) (*db.Subscription, error) {
	existing, err := o.store.SubscriptionsByUser(user.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, Conflictf("user %d already has a subscription", user.TgID)
	}

	region, err := o.store.RegionByCode(req.RegionCode)
	if err != nil {
		return nil, err
	}
	if region == nil {
		return nil, NotFoundf("region %q not found", req.RegionCode)
	}

	devices := DeviceCount(db.TypeTrial)
	node, err := o.selector.Select(ctx, req.Protocol, req.RegionCode, devices)
	if err != nil {
		return nil, err
	}

	// Сначала удаленный выпуск, потом записи: при сбое выпуска не
	// остается подписки без сертификатов.
	issued, err := o.provisioner.Issue(ctx, node, CertNames(user.TgID, devices))
	if err != nil {
		return nil, err
	}

	sub := db.Subscription{
		UserID:   user.ID,
		Type:     db.TypeTrial,
		Protocol: req.Protocol,
		RegionID: region.ID,
		Active:   true,
		EndDate:  TrialEndDate(o.now()),
	}
	if err := o.store.CreateSubscription(&sub); err != nil {
		return nil, err
	}

	certs, err := o.provisioner.Bind(sub.ID, node, issued)
	if err != nil {
		return nil, err
	}
	sub.Certificates = certs
	sub.Region = *region

	slog.Info("Trial subscription created",
		"user_tg_id", user.TgID,
		"subscription_id", sub.ID,
		"server_id", node.ID,
	)
	return &sub, nil
}

// RenewOrUpdate создает платежное намерение на продление или изменение
// существующей подписки. Сама подписка не меняется до вебхука.
func (o *SubscriptionOrchestrator) RenewOrUpdate(ctx context.Context, req SubscriptionRequest) (*PaymentAnswer, error) {
	if req.SubID == nil {
		return nil, Validationf("subscription id is required")
	}
	if req.Duration == "" {
		return nil, Validationf("duration is required")
	}

	user, err := o.store.UserByTgID(req.TgID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NotFoundf("user %d not found", req.TgID)
	}

	sub, err := o.store.SubscriptionByID(*req.SubID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.UserID != user.ID {
		return nil, NotFoundf("subscription %d not found", *req.SubID)
	}

	intent := PaymentIntent{
		SubID:    req.SubID,
		Duration: req.Duration,
	}
	// В платеж попадают только реально запрошенные изменения: пустой
	// intent с sub_id означает чистое продление.
	if req.Type != "" && req.Type != sub.Type {
		intent.Type = req.Type
	}
	if req.RegionCode != "" && req.RegionCode != sub.Region.Code {
		intent.RegionCode = req.RegionCode
	}
	if req.Protocol != "" && req.Protocol != sub.Protocol {
		intent.Protocol = req.Protocol
	}

	if intent.Type == db.TypeTrial {
		return nil, Validationf("cannot change a subscription to trial")
	}

	return o.createPaymentIntent(ctx, user, intent)
}

// createPaymentIntent подбирает цену, регистрирует платеж у шлюза и
// сохраняет pending-платеж с вложенным intent.
func (o *SubscriptionOrchestrator) createPaymentIntent(ctx context.Context, user *db.User, intent PaymentIntent) (*PaymentAnswer, error) {
	priceType := intent.Type
	if priceType == "" && intent.SubID != nil {
		sub, err := o.store.SubscriptionByID(*intent.SubID)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, NotFoundf("subscription %d not found", *intent.SubID)
		}
		priceType = sub.Type
	}

	price, err := o.store.PriceFor(priceType, intent.Duration)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return nil, Conflictf("no price for %s / %s", priceType, intent.Duration)
	}

	operationID, confirmationURL, err := o.gateway.CreateIntent(ctx, price.Amount,
		fmt.Sprintf("VPN subscription for client %d", user.TgID))
	if err != nil {
		return nil, Upstream("payment intent creation failed", err)
	}

	payload, err := json.Marshal(intent)
	if err != nil {
		return nil, err
	}
	payment := db.Payment{
		UserID:      user.ID,
		Amount:      price.Amount,
		Provider:    providerName,
		Status:      db.PaymentPending,
		OperationID: operationID,
		Intent:      string(payload),
	}
	if err := o.store.CreatePayment(&payment); err != nil {
		return nil, err
	}

	slog.Info("Payment intent created",
		"user_tg_id", user.TgID,
		"operation_id", operationID,
		"amount", price.Amount,
	)
	return &PaymentAnswer{Amount: price.Amount, URL: confirmationURL}, nil
}

// Materialize превращает подтвержденный платеж в подписку: создание,
// чистое продление либо смена параметров — ровно один из трех случаев.
func (o *SubscriptionOrchestrator) Materialize(ctx context.Context, payment *db.Payment) error {
	var intent PaymentIntent
	if err := json.Unmarshal([]byte(payment.Intent), &intent); err != nil {
		return fmt.Errorf("decode payment %d intent: %w", payment.ID, err)
	}

	user, err := o.store.UserByID(payment.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return NotFoundf("user %d not found", payment.UserID)
	}

	if intent.SubID == nil {
		return o.materializeNew(ctx, user, intent)
	}

	sub, err := o.store.SubscriptionByID(*intent.SubID)
	if err != nil {
		return err
	}
	if sub == nil {
		return NotFoundf("subscription %d not found", *intent.SubID)
	}

	if intent.Type == "" && intent.RegionCode == "" && intent.Protocol == "" {
		return o.materializeRenewal(ctx, user, sub, intent)
	}
	return o.materializeChange(ctx, user, sub, intent)
}

// materializeNew - первая платная подписка: тот же путь, что и
// пробная, но с оплаченной длительностью.
func (o *SubscriptionOrchestrator) materializeNew(ctx context.Context, user *db.User, intent PaymentIntent) error {
	region, err := o.store.RegionByCode(intent.RegionCode)
	if err != nil {
		return err
	}
	if region == nil {
		return NotFoundf("region %q not found", intent.RegionCode)
	}

	devices := DeviceCount(intent.Type)
	node, err := o.selector.Select(ctx, intent.Protocol, intent.RegionCode, devices)
	if err != nil {
		return err
	}
	issued, err := o.provisioner.Issue(ctx, node, CertNames(user.TgID, devices))
	if err != nil {
		return err
	}

	sub := db.Subscription{
		UserID:   user.ID,
		Type:     intent.Type,
		Protocol: intent.Protocol,
		RegionID: region.ID,
		Active:   true,
		EndDate:  ExtendEndDate(time.Time{}, o.now(), intent.Duration),
	}
	if err := o.store.CreateSubscription(&sub); err != nil {
		return err
	}
	if _, err := o.provisioner.Bind(sub.ID, node, issued); err != nil {
		return err
	}

	slog.Info("Paid subscription materialized",
		"user_tg_id", user.TgID,
		"subscription_id", sub.ID,
		"type", intent.Type,
	)
	return nil
}

// materializeRenewal - чистое продление: двигается только срок,
// сертификаты выпускаются заново лишь если их нет совсем.
func (o *SubscriptionOrchestrator) materializeRenewal(ctx context.Context, user *db.User, sub *db.Subscription, intent PaymentIntent) error {
	sub.EndDate = ExtendEndDate(sub.EndDate, o.now(), intent.Duration)
	sub.Active = true
	if err := o.store.SaveSubscription(sub); err != nil {
		return err
	}

	if len(sub.Certificates) == 0 {
		devices := DeviceCount(sub.Type)
		node, err := o.selector.Select(ctx, sub.Protocol, sub.Region.Code, devices)
		if err != nil {
			return err
		}
		issued, err := o.provisioner.Issue(ctx, node, CertNames(user.TgID, devices))
		if err != nil {
			return err
		}
		if _, err := o.provisioner.Bind(sub.ID, node, issued); err != nil {
			return err
		}
	}

	slog.Info("Subscription renewed",
		"user_tg_id", user.TgID,
		"subscription_id", sub.ID,
		"end_date", sub.EndDate,
	)
	return nil
}

// materializeChange - смена параметров подписки. Перенос в другой
// регион или на другой протокол пересоздает все сертификаты на новой
// ноде; смена только тарифа выпускает недостающие или отзывает лишние.
func (o *SubscriptionOrchestrator) materializeChange(ctx context.Context, user *db.User, sub *db.Subscription, intent PaymentIntent) error {
	newType := sub.Type
	if intent.Type != "" {
		newType = intent.Type
	}
	newProtocol := sub.Protocol
	if intent.Protocol != "" {
		newProtocol = intent.Protocol
	}
	newRegionCode := sub.Region.Code
	if intent.RegionCode != "" {
		newRegionCode = intent.RegionCode
	}

	moved := newProtocol != sub.Protocol || newRegionCode != sub.Region.Code
	devices := DeviceCount(newType)

	if moved {
		region, err := o.store.RegionByCode(newRegionCode)
		if err != nil {
			return err
		}
		if region == nil {
			return NotFoundf("region %q not found", newRegionCode)
		}

		node, err := o.selector.Select(ctx, newProtocol, newRegionCode, devices)
		if err != nil {
			return err
		}
		// Сбой отзыва оставляет хвост на старой ноде до повторного
		// запуска — сверки нет, это осознанный пробел.
		if err := o.provisioner.RevokeAll(ctx, sub); err != nil {
			return err
		}
		issued, err := o.provisioner.Issue(ctx, node, CertNames(user.TgID, devices))
		if err != nil {
			return err
		}

		sub.Type = newType
		sub.Protocol = newProtocol
		sub.RegionID = region.ID
		sub.EndDate = ExtendEndDate(sub.EndDate, o.now(), intent.Duration)
		sub.Active = true
		if err := o.store.SaveSubscription(sub); err != nil {
			return err
		}
		if _, err := o.provisioner.Bind(sub.ID, node, issued); err != nil {
			return err
		}
	} else {
		current := len(sub.Certificates)
		switch {
		case devices > current:
			node, err := o.selector.Select(ctx, sub.Protocol, sub.Region.Code, devices-current)
			if err != nil {
				return err
			}
			issued, err := o.provisioner.Issue(ctx, node, CertNames(user.TgID, devices-current))
			if err != nil {
				return err
			}
			if _, err := o.provisioner.Bind(sub.ID, node, issued); err != nil {
				return err
			}
		case devices < current:
			if err := o.provisioner.RevokeSurplus(ctx, sub, current-devices); err != nil {
				return err
			}
		}

		sub.Type = newType
		sub.EndDate = ExtendEndDate(sub.EndDate, o.now(), intent.Duration)
		sub.Active = true
		if err := o.store.SaveSubscription(sub); err != nil {
			return err
		}
	}

	slog.Info("Subscription updated",
		"user_tg_id", user.TgID,
		"subscription_id", sub.ID,
		"type", newType,
		"protocol", newProtocol,
		"region", newRegionCode,
	)
	return nil
}

// Subscriptions выдает подписки пользователя с сертификатами.
func (o *SubscriptionOrchestrator) Subscriptions(ctx context.Context, tgID int64) ([]db.Subscription, error) {
	user, err := o.store.UserByTgID(tgID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NotFoundf("user %d not found", tgID)
	}
	return o.store.SubscriptionsByUser(user.ID)
}

// Sweep - плановый проход: деактивация истекших подписок с отзывом
// сертификатов и уведомления об истечении завтра. Ошибка на одной
// подписке логируется и не прерывает остальные; повторный запуск
// безопасен.
func (o *SubscriptionOrchestrator) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := o.now()

	expired, err := o.store.ExpiredSubscriptions(now)
	if err != nil {
		return report, err
	}
	for i := range expired {
		sub := &expired[i]
		if err := o.expireOne(ctx, sub); err != nil {
			slog.Error("Sweep: failed to expire subscription",
				"subscription_id", sub.ID,
				"error", err,
			)
			report.Failed++
			continue
		}
		report.Deactivated++
	}

	expiring, err := o.store.ExpiringSubscriptions(now)
	if err != nil {
		return report, err
	}
	for i := range expiring {
		sub := &expiring[i]
		err := o.notifier.SubscriptionExpiring(ctx, Event{
			Type:       sub.Type,
			Region:     sub.Region.Name,
			Protocol:   sub.Protocol,
			TelegramID: sub.User.TgID,
		})
		if err != nil {
			slog.Error("Sweep: failed to publish expiring notification",
				"subscription_id", sub.ID,
				"error", err,
			)
			continue
		}
		report.Expiring++
	}

	slog.Info("Sweep completed",
		"deactivated", report.Deactivated,
		"expiring", report.Expiring,
		"failed", report.Failed,
	)
	return report, nil
}

func (o *SubscriptionOrchestrator) expireOne(ctx context.Context, sub *db.Subscription) error {
	// Отзыв раньше деактивации: при сбое подписка остается активной
	// и попадет в следующий проход.
	if err := o.provisioner.RevokeAll(ctx, sub); err != nil {
		return err
	}
	sub.Active = false
	if err := o.store.SaveSubscription(sub); err != nil {
		return err
	}

	err := o.notifier.SubscriptionExpired(ctx, Event{
		Type:       sub.Type,
		Region:     sub.Region.Name,
		Protocol:   sub.Protocol,
		TelegramID: sub.User.TgID,
	})
	if err != nil {
		// Подписка уже деактивирована, недоставленное уведомление
		// не повод гонять отзыв повторно.
		slog.Error("Failed to publish expired notification",
			"subscription_id", sub.ID,
			"error", err,
		)
	}
	return nil
}
