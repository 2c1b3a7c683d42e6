package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpn-backend/internal/db"
)

func (e *testEnv) seedPendingPayment(t *testing.T, user *db.User, intent PaymentIntent, operationID string) *db.Payment {
	t.Helper()
	payload, err := json.Marshal(intent)
	require.NoError(t, err)
	payment := db.Payment{
		UserID:      user.ID,
		Amount:      450,
		Provider:    providerName,
		Status:      db.PaymentPending,
		OperationID: operationID,
		Intent:      string(payload),
	}
	require.NoError(t, e.repo.CreatePayment(&payment))
	return &payment
}

func TestWebhookIdempotence(t *testing.T) {
	env := newTestEnv(t)
	region := env.seedRegion(t, "EU", "Europe")
	server := env.seedServer(t, region.ID, "eu1.vpn.example.com", db.ProtocolOpenVPN, 10)
	user := env.seedUser(t, 100, nil)

	env.seedPendingPayment(t, user, PaymentIntent{
		Type:       db.TypeDevices4,
		Duration:   db.DurationMonth1,
		RegionCode: "EU",
		Protocol:   db.ProtocolOpenVPN,
	}, "op-abc")

	ev := WebhookEvent{Object: WebhookObject{ID: "op-abc", Status: GatewaySucceeded}}

	payment, materialized, err := env.reconciler.ApplyWebhook(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, materialized)
	assert.Equal(t, db.PaymentSuccess, payment.Status)

	subs, err := env.repo.SubscriptionsByUser(user.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	// Повторный вебхук по той же операции ничего не меняет
	payment, materialized, err = env.reconciler.ApplyWebhook(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, materialized)
	assert.Equal(t, db.PaymentSuccess, payment.Status)

	subs, err = env.repo.SubscriptionsByUser(user.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
	assert.Equal(t, 4, env.serverByID(t, server.ID).CertCount)
}

func TestWebhookWaitingForCaptureIgnored(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, 100, nil)
	env.seedPendingPayment(t, user, PaymentIntent{Duration: db.DurationMonth1}, "op-abc")

	payment, materialized, err := env.reconciler.ApplyWebhook(context.Background(), WebhookEvent{
		Object: WebhookObject{ID: "op-abc", Status: GatewayWaitingForCapture},
	})
	require.NoError(t, err)
	assert.Nil(t, payment)
	assert.False(t, materialized)

	stored, err := env.repo.PaymentByOperationID("op-abc")
	require.NoError(t, err)
	assert.Equal(t, db.PaymentPending, stored.Status)
}

func TestWebhookCanceledMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, 100, nil)
	env.seedPendingPayment(t, user, PaymentIntent{Duration: db.DurationMonth1}, "op-abc")

	payment, materialized, err := env.reconciler.ApplyWebhook(context.Background(), WebhookEvent{
		Object: WebhookObject{ID: "op-abc", Status: GatewayCanceled},
	})
	require.NoError(t, err)
	assert.False(t, materialized)
	assert.Equal(t, db.PaymentFailed, payment.Status)

	subs, err := env.repo.SubscriptionsByUser(user.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestWebhookUnknownOperationDropped(t *testing.T) {
	env := newTestEnv(t)

	_, materialized, err := env.reconciler.ApplyWebhook(context.Background(), WebhookEvent{
		Object: WebhookObject{ID: "op-unknown", Status: GatewaySucceeded},
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
	assert.False(t, materialized)
}

func TestReferralBonusAwardedOnce(t *testing.T) {
	env := newTestEnv(t)
	region := env.seedRegion(t, "EU", "Europe")
	env.seedServer(t, region.ID, "eu1.vpn.example.com", db.ProtocolOpenVPN, 20)

	inviter := env.seedUser(t, 100, nil)
	invited := env.seedUser(t, 200, &inviter.ID)

	env.seedPendingPayment(t, invited, PaymentIntent{
		Type:       db.TypeDevices2,
		Duration:   db.DurationMonth1,
		RegionCode: "EU",
		Protocol:   db.ProtocolOpenVPN,
	}, "op-1")
	env.seedPendingPayment(t, invited, PaymentIntent{
		Type:       db.TypeDevices2,
		Duration:   db.DurationMonth1,
		RegionCode: "EU",
		Protocol:   db.ProtocolOpenVPN,
	}, "op-2")

	_, _, err := env.reconciler.ApplyWebhook(context.Background(), WebhookEvent{
		Object: WebhookObject{ID: "op-1", Status: GatewaySucceeded},
	})
	require.NoError(t, err)

	// Вторая успешная оплата бонуса не добавляет
	_, _, err = env.reconciler.ApplyWebhook(context.Background(), WebhookEvent{
		Object: WebhookObject{ID: "op-2", Status: GatewaySucceeded},
	})
	require.NoError(t, err)

	summary, err := env.bonuses.Summary(inviter.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Count)
	assert.Equal(t, defaultBonusAmount, summary.Total)
}

func TestNoBonusWithoutReferrer(t *testing.T) {
	env := newTestEnv(t)
	region := env.seedRegion(t, "EU", "Europe")
	env.seedServer(t, region.ID, "eu1.vpn.example.com", db.ProtocolOpenVPN, 10)
	user := env.seedUser(t, 100, nil)

	env.seedPendingPayment(t, user, PaymentIntent{
		Type:       db.TypeDevices2,
		Duration:   db.DurationMonth1,
		RegionCode: "EU",
		Protocol:   db.ProtocolOpenVPN,
	}, "op-1")

	_, _, err := env.reconciler.ApplyWebhook(context.Background(), WebhookEvent{
		Object: WebhookObject{ID: "op-1", Status: GatewaySucceeded},
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, env.repo.DB().Model(&db.ReferralBonus{}).Count(&count).Error)
	assert.Zero(t, count)
}
