package service

import (
	"context"
	"log/slog"

	"vpn-backend/internal/db"
)

// UserService - регистрация пользователей при первом контакте.
type UserService struct {
	users UserStore
}

func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

// GetOrCreate возвращает пользователя по telegram id, создавая его при
// первом обращении. Недействительный реферальный id логируется и
// отбрасывается; после создания привязка к пригласившему не меняется.
func (s *UserService) GetOrCreate(ctx context.Context, tgID int64, referrerTgID *int64) (*db.User, error) {
	user, err := s.users.UserByTgID(tgID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	var referrerID *uint
	if referrerTgID != nil && *referrerTgID != tgID {
		referrer, err := s.users.UserByTgID(*referrerTgID)
		if err != nil {
			return nil, err
		}
		if referrer == nil {
			slog.Warn("Invalid referrer id dropped", "referrer_tg_id", *referrerTgID)
		} else {
			referrerID = &referrer.ID
		}
	}

	user = &db.User{TgID: tgID, ReferrerID: referrerID}
	if err := s.users.CreateUser(user); err != nil {
		return nil, err
	}
	if referrerID != nil {
		if err := s.users.IncrementRefCount(*referrerID); err != nil {
			slog.Error("Failed to increment referrer counter",
				"referrer_id", *referrerID, "error", err)
		}
	}

	slog.Info("User registered", "tg_id", tgID, "has_referrer", referrerID != nil)
	return user, nil
}
