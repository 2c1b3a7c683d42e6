package service

import (
	"context"
	"log/slog"

	"vpn-backend/internal/db"
)

// Статусы платежного шлюза.
const (
	GatewaySucceeded         = "succeeded"
	GatewayPending           = "pending"
	GatewayCanceled          = "canceled"
	GatewayWaitingForCapture = "waiting_for_capture"
)

// WebhookEvent - уведомление шлюза о смене статуса платежа.
type WebhookEvent struct {
	Type   string
	Event  string
	Object WebhookObject
}

type WebhookObject struct {
	ID     string
	Status string
}

// Materializer - путь материализации подтвержденного платежа.
type Materializer interface {
	Materialize(ctx context.Context, payment *db.Payment) error
}

// PaymentReconciler применяет вебхуки шлюза к сохраненным платежам
// ровно один раз и запускает материализацию на переходе в success.
type PaymentReconciler struct {
	payments     PaymentStore
	users        UserStore
	materializer Materializer
	bonuses      *ReferralBonusEngine
}

func NewPaymentReconciler(payments PaymentStore, users UserStore, materializer Materializer, bonuses *ReferralBonusEngine) *PaymentReconciler {
	return &PaymentReconciler{
		payments:     payments,
		users:        users,
		materializer: materializer,
		bonuses:      bonuses,
	}
}

// statusFromGateway переводит словарь шлюза во внутренний статус.
// waiting_for_capture - промежуточный статус, он не применяется.
func statusFromGateway(status string) (db.PaymentStatus, bool) {
	switch status {
	case GatewaySucceeded:
		return db.PaymentSuccess, true
	case GatewayPending:
		return db.PaymentPending, true
	case GatewayCanceled:
		return db.PaymentFailed, true
	}
	return "", false
}

// ApplyWebhook применяет событие шлюза. Возвращает платеж и признак
// материализации. Событие по уже успешному платежу - no-op; событие
// по неизвестной операции отбрасывается как NotFound без побочных
// эффектов.
func (r *PaymentReconciler) ApplyWebhook(ctx context.Context, ev WebhookEvent) (*db.Payment, bool, error) {
	status, applicable := statusFromGateway(ev.Object.Status)
	if !applicable {
		return nil, false, nil
	}

	payment, err := r.payments.PaymentByOperationID(ev.Object.ID)
	if err != nil {
		return nil, false, err
	}
	if payment == nil {
		return nil, false, NotFoundf("payment with operation id %q not found", ev.Object.ID)
	}

	if payment.Status == db.PaymentSuccess {
		slog.Info("Duplicate webhook for settled payment dropped",
			"operation_id", payment.OperationID,
			"payment_id", payment.ID,
		)
		return payment, false, nil
	}

	if err := r.payments.UpdatePaymentStatus(payment.ID, status); err != nil {
		return nil, false, err
	}
	payment.Status = status

	if status != db.PaymentSuccess {
		return payment, false, nil
	}

	if err := r.materializer.Materialize(ctx, payment); err != nil {
		return payment, false, err
	}

	user, err := r.users.UserByID(payment.UserID)
	if err != nil {
		return payment, true, err
	}
	if user != nil {
		r.bonuses.OnFirstSuccessfulPayment(ctx, user)
	}

	return payment, true, nil
}
