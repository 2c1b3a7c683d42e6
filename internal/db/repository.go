package db

import (
	"errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ErrNoCapacity возвращается при попытке превысить лимит сертификатов ноды.
var ErrNoCapacity = errors.New("server certificate capacity exceeded")

// ErrRegionNotFound возвращается при регистрации ноды в неизвестном регионе.
var ErrRegionNotFound = errors.New("region with given code not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(dsn string) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	return &Repository{db: db}, nil
}

func (r *Repository) DB() *gorm.DB {
	return r.db
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&Region{},
		&Server{},
		&User{},
		&Subscription{},
		&Certificate{},
		&Price{},
		&Payment{},
		&ReferralBonus{},
	)
}

// --- Users ---

func (r *Repository) UserByTgID(tgID int64) (*User, error) {
	var user User
	err := r.db.Where("tg_id = ?", tgID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) UserByID(id uint) (*User, error) {
	var user User
	err := r.db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) CreateUser(user *User) error {
	return r.db.Create(user).Error
}

func (r *Repository) IncrementRefCount(userID uint) error {
	return r.db.Model(&User{}).Where("id = ?", userID).
		Update("ref_count", gorm.Expr("ref_count + 1")).Error
}

// --- Regions / Servers ---

func (r *Repository) RegionByCode(code string) (*Region, error) {
	var region Region
	err := r.db.Where("code = ?", code).First(&region).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &region, nil
}

// ActiveServers выдает активные ноды региона с нужным протоколом,
// у которых хватает свободных слотов под slots сертификатов.
func (r *Repository) ActiveServers(regionCode string, protocol Protocol, slots int) ([]Server, error) {
	var servers []Server
	err := r.db.Joins("JOIN regions ON regions.id = servers.region_id").
		Where("regions.code = ? AND servers.protocol = ? AND servers.active = ?", regionCode, protocol, true).
		Where("servers.cert_count + ? <= servers.max_certs", slots).
		Preload("Region").
		Find(&servers).Error
	return servers, err
}

func (r *Repository) AllActiveServers() ([]Server, error) {
	var servers []Server
	err := r.db.Where("active = ?", true).Preload("Region").Find(&servers).Error
	return servers, err
}

func (r *Repository) ServerByID(id uint) (*Server, error) {
	var server Server
	err := r.db.Preload("Region").First(&server, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// CreateServer регистрирует ноду в регионе по его коду.
// Используется операционным инструментарием при вводе нод в строй.
func (r *Repository) CreateServer(server *Server, regionCode string) error {
	region, err := r.RegionByCode(regionCode)
	if err != nil {
		return err
	}
	if region == nil {
		return ErrRegionNotFound
	}
	server.RegionID = region.ID
	return r.db.Create(server).Error
}

// DeleteServer удаляет запись ноды. Сертификаты остаются привязанными
// к подпискам и добираются плановым проходом.
func (r *Repository) DeleteServer(id uint) error {
	res := r.db.Delete(&Server{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// --- Subscriptions ---

func (r *Repository) SubscriptionsByUser(userID uint) ([]Subscription, error) {
	var subs []Subscription
	err := r.db.Where("user_id = ?", userID).
		Preload("Certificates").
		Preload("Region").
		Find(&subs).Error
	return subs, err
}

func (r *Repository) SubscriptionByID(id uint) (*Subscription, error) {
	var sub Subscription
	err := r.db.Preload("Certificates").Preload("Region").Preload("User").
		First(&sub, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *Repository) CreateSubscription(sub *Subscription) error {
	return r.db.Create(sub).Error
}

func (r *Repository) SaveSubscription(sub *Subscription) error {
	return r.db.Omit("Certificates", "Region", "User").Save(sub).Error
}

// ExpiredSubscriptions выдает активные подписки, срок которых уже прошел.
func (r *Repository) ExpiredSubscriptions(now time.Time) ([]Subscription, error) {
	var subs []Subscription
	err := r.db.Where("active = ? AND end_date < ?", true, now).
		Preload("Certificates").
		Preload("Region").
		Preload("User").
		Find(&subs).Error
	return subs, err
}

// ExpiringSubscriptions выдает активные подписки, срок которых
// истекает завтра (по календарной дате).
func (r *Repository) ExpiringSubscriptions(now time.Time) ([]Subscription, error) {
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")

	var subs []Subscription
	err := r.db.Where("active = ? AND date(end_date) = ?", true, tomorrow).
		Preload("Region").
		Preload("User").
		Find(&subs).Error
	return subs, err
}

// --- Certificates ---

// AddCertificate создает запись сертификата и увеличивает счетчик
// занятых слотов ноды в одной транзакции.
func (r *Repository) AddCertificate(cert *Certificate) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var server Server
		if err := tx.First(&server, cert.ServerID).Error; err != nil {
			return err
		}
		if server.CertCount >= server.MaxCerts {
			return ErrNoCapacity
		}
		if err := tx.Create(cert).Error; err != nil {
			return err
		}
		return tx.Model(&Server{}).Where("id = ?", cert.ServerID).
			Update("cert_count", gorm.Expr("cert_count + 1")).Error
	})
}

// RemoveCertificate удаляет запись сертификата и уменьшает счетчик
// занятых слотов ноды в одной транзакции.
func (r *Repository) RemoveCertificate(cert *Certificate) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Certificate{}, cert.ID).Error; err != nil {
			return err
		}
		return tx.Model(&Server{}).Where("id = ? AND cert_count > 0", cert.ServerID).
			Update("cert_count", gorm.Expr("cert_count - 1")).Error
	})
}

// --- Prices ---

func (r *Repository) PriceFor(subType SubscriptionType, duration Duration) (*Price, error) {
	var price Price
	err := r.db.Where("type = ? AND duration = ?", subType, duration).First(&price).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &price, nil
}

func (r *Repository) ListPrices() ([]Price, error) {
	var prices []Price
	err := r.db.Order("type, duration").Find(&prices).Error
	return prices, err
}

// --- Payments ---

func (r *Repository) CreatePayment(payment *Payment) error {
	return r.db.Create(payment).Error
}

func (r *Repository) PaymentByOperationID(operationID string) (*Payment, error) {
	var payment Payment
	err := r.db.Where("operation_id = ?", operationID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *Repository) UpdatePaymentStatus(paymentID uint, status PaymentStatus) error {
	return r.db.Model(&Payment{}).Where("id = ?", paymentID).
		Update("status", status).Error
}

// --- Referral bonuses ---

func (r *Repository) BonusByInvited(invitedID uint) (*ReferralBonus, error) {
	var bonus ReferralBonus
	err := r.db.Where("invited_id = ?", invitedID).First(&bonus).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bonus, nil
}

func (r *Repository) CreateBonus(bonus *ReferralBonus) error {
	return r.db.Create(bonus).Error
}

// BonusSummary считает количество и сумму бонусов пригласившего.
func (r *Repository) BonusSummary(inviterID uint) (count int64, total int, err error) {
	err = r.db.Model(&ReferralBonus{}).Where("inviter_id = ?", inviterID).Count(&count).Error
	if err != nil {
		return 0, 0, err
	}
	var sum struct{ Total int }
	err = r.db.Model(&ReferralBonus{}).Select("COALESCE(SUM(amount), 0) AS total").
		Where("inviter_id = ?", inviterID).Scan(&sum).Error
	if err != nil {
		return 0, 0, err
	}
	return count, sum.Total, nil
}
