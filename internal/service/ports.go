package service

import (
	"context"
	"time"

	"vpn-backend/internal/db"
)

// Узкие порты хранилища, по одному на агрегат.
// Все реализуются db.Repository.

type UserStore interface {
	UserByTgID(tgID int64) (*db.User, error)
	UserByID(id uint) (*db.User, error)
	CreateUser(user *db.User) error
	IncrementRefCount(userID uint) error
}

type ServerStore interface {
	RegionByCode(code string) (*db.Region, error)
	ActiveServers(regionCode string, protocol db.Protocol, slots int) ([]db.Server, error)
	AllActiveServers() ([]db.Server, error)
	ServerByID(id uint) (*db.Server, error)
}

type SubscriptionStore interface {
	SubscriptionsByUser(userID uint) ([]db.Subscription, error)
	SubscriptionByID(id uint) (*db.Subscription, error)
	CreateSubscription(sub *db.Subscription) error
	SaveSubscription(sub *db.Subscription) error
	ExpiredSubscriptions(now time.Time) ([]db.Subscription, error)
	ExpiringSubscriptions(now time.Time) ([]db.Subscription, error)
}

type CertificateStore interface {
	AddCertificate(cert *db.Certificate) error
	RemoveCertificate(cert *db.Certificate) error
}

type PriceStore interface {
	PriceFor(subType db.SubscriptionType, duration db.Duration) (*db.Price, error)
	ListPrices() ([]db.Price, error)
}

type PaymentStore interface {
	CreatePayment(payment *db.Payment) error
	PaymentByOperationID(operationID string) (*db.Payment, error)
	UpdatePaymentStatus(paymentID uint, status db.PaymentStatus) error
}

type BonusStore interface {
	BonusByInvited(invitedID uint) (*db.ReferralBonus, error)
	CreateBonus(bonus *db.ReferralBonus) error
	BonusSummary(inviterID uint) (count int64, total int, err error)
}

// Store - составной порт для компонентов, которым нужно несколько агрегатов.
type Store interface {
	UserStore
	ServerStore
	SubscriptionStore
	CertificateStore
	PriceStore
	PaymentStore
	BonusStore
}

// IssuedCert - результат выпуска сертификата на ноде.
type IssuedCert struct {
	Name        string
	DownloadURL string
	ConnURL     string
}

// CertAPI - клиент API сертификатов на нодах.
type CertAPI interface {
	Issue(ctx context.Context, addr, name string) (*IssuedCert, error)
	Revoke(ctx context.Context, addr, name string) error
	Health(ctx context.Context, addr string) error
}

// PaymentGateway - платежный шлюз: создание намерения на оплату.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount int, description string) (operationID, confirmationURL string, err error)
}

// Event - событие о состоянии подписки для чат-фронтенда.
type Event struct {
	Type       db.SubscriptionType
	Region     string
	Protocol   db.Protocol
	TelegramID int64
}

// Notifier - шлюз уведомлений об истечении подписок.
type Notifier interface {
	SubscriptionExpiring(ctx context.Context, ev Event) error
	SubscriptionExpired(ctx context.Context, ev Event) error
}
