package db

import "time"

// SubscriptionType - тип подписки (количество устройств)
type SubscriptionType string

const (
	TypeTrial    SubscriptionType = "trial"
	TypeDevices2 SubscriptionType = "2_devices"
	TypeDevices4 SubscriptionType = "4_devices"
)

func (t SubscriptionType) IsValid() bool {
	switch t {
	case TypeTrial, TypeDevices2, TypeDevices4:
		return true
	}
	return false
}

// Duration - длительность оплачиваемой подписки
type Duration string

const (
	DurationMonth1 Duration = "1_month"
	DurationMonth6 Duration = "6_months"
	DurationYear1  Duration = "1_year"
)

func (d Duration) IsValid() bool {
	switch d {
	case DurationMonth1, DurationMonth6, DurationYear1:
		return true
	}
	return false
}

// Protocol - протокол VPN-соединения
type Protocol string

const (
	ProtocolOpenVPN Protocol = "openvpn"
	ProtocolVless   Protocol = "vless"
)

func (p Protocol) IsValid() bool {
	switch p {
	case ProtocolOpenVPN, ProtocolVless:
		return true
	}
	return false
}

// PaymentStatus - внутренний статус платежа
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// Region - регионы размещения серверов
type Region struct {
	ID   uint   `gorm:"primaryKey"`
	Code string `gorm:"size:2;uniqueIndex;not null"`
	Name string `gorm:"size:64;uniqueIndex;not null"`
}

// Server - VPN-ноды
type Server struct {
	ID        uint     `gorm:"primaryKey"`
	Address   string   `gorm:"size:64;uniqueIndex;not null"`
	Protocol  Protocol `gorm:"size:16;not null"`
	Active    bool     `gorm:"default:false"`
	MaxCerts  int      `gorm:"default:10;not null"`
	CertCount int      `gorm:"default:0;not null"`
	RegionID  uint     `gorm:"not null"`
	CreatedAt time.Time

	// Relations
	Region Region `gorm:"foreignKey:RegionID"`
}

// User - пользователи
type User struct {
	ID         uint  `gorm:"primaryKey"`
	TgID       int64 `gorm:"uniqueIndex;not null"`
	RefCount   int   `gorm:"default:0;not null"`
	ReferrerID *uint
	CreatedAt  time.Time `gorm:"default:CURRENT_TIMESTAMP"`

	// Relations
	Referrer *User `gorm:"foreignKey:ReferrerID"`
}

// Subscription - подписки
type Subscription struct {
	ID        uint             `gorm:"primaryKey"`
	UserID    uint             `gorm:"not null;index"`
	Type      SubscriptionType `gorm:"size:64;not null"`
	Protocol  Protocol         `gorm:"size:16;not null"`
	RegionID  uint             `gorm:"not null"`
	Active    bool             `gorm:"default:true"`
	EndDate   time.Time        `gorm:"not null"`
	CreatedAt time.Time        `gorm:"default:CURRENT_TIMESTAMP"`

	// Relations
	User         User          `gorm:"foreignKey:UserID"`
	Region       Region        `gorm:"foreignKey:RegionID"`
	Certificates []Certificate `gorm:"foreignKey:SubscriptionID"`
}

// Certificate - выданные клиентские сертификаты
type Certificate struct {
	ID             uint   `gorm:"primaryKey"`
	SubscriptionID uint   `gorm:"not null;index"`
	ServerID       uint   `gorm:"not null;index"`
	Filename       string `gorm:"size:255;uniqueIndex;not null"`
	DownloadURL    string `gorm:"type:text"`
	ConnURL        string `gorm:"type:text"`
	CreatedAt      time.Time

	// Relations
	Server Server `gorm:"foreignKey:ServerID"`
}

// Price - цены на подписки, уникальны по (тип, длительность)
type Price struct {
	ID       uint             `gorm:"primaryKey"`
	Type     SubscriptionType `gorm:"size:64;not null;uniqueIndex:idx_price_type_duration"`
	Duration Duration         `gorm:"size:16;not null;uniqueIndex:idx_price_type_duration"`
	Amount   int              `gorm:"not null"`
}

// Payment - платежи
type Payment struct {
	ID          uint          `gorm:"primaryKey"`
	UserID      uint          `gorm:"not null;index"`
	Amount      int           `gorm:"not null"`
	Provider    string        `gorm:"size:64;not null"`
	Status      PaymentStatus `gorm:"size:16;not null"`
	OperationID string        `gorm:"size:128;uniqueIndex;not null"`
	Intent      string        `gorm:"type:text"`
	CreatedAt   time.Time     `gorm:"default:CURRENT_TIMESTAMP"`

	// Relations
	User User `gorm:"foreignKey:UserID"`
}

// ReferralBonus - бонусы за приглашенных пользователей,
// уникальны по паре (пригласивший, приглашенный)
type ReferralBonus struct {
	ID        uint `gorm:"primaryKey"`
	InviterID uint `gorm:"not null;uniqueIndex:idx_bonus_inviter_invited"`
	InvitedID uint `gorm:"not null;uniqueIndex:idx_bonus_inviter_invited"`
	Amount    int  `gorm:"default:100;not null"`
	Given     bool `gorm:"default:false"`
	CreatedAt time.Time
}
