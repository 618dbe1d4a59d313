package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"expense-bot/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertFromTelegram finds or creates a user by Telegram id and refreshes the
// profile. created is true when a new row was inserted.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, telegramID int64, displayName, username string) (user *model.User, created bool, err error) {
	var u model.User
	db := r.db.WithContext(ctx)
	err = db.Where("telegram_id = ?", telegramID).First(&u).Error
	switch {
	case err == nil:
		if u.DisplayName == displayName && u.Username == username {
			return &u, false, nil
		}
		updates := map[string]interface{}{
			"display_name": displayName,
			"username":     username,
		}
		if err := db.Model(&u).Updates(updates).Error; err != nil {
			return nil, false, fmt.Errorf("update user: %w", err)
		}
		return &u, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		u = model.User{
			TelegramID:  &telegramID,
			DisplayName: displayName,
			Username:    username,
		}
		if err := db.Create(&u).Error; err != nil {
			return nil, false, fmt.Errorf("create user: %w", err)
		}
		return &u, true, nil
	default:
		return nil, false, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// First returns the oldest user.
func (r *UserRepository) First(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// ListTelegram returns users reachable through the bot.
func (r *UserRepository) ListTelegram(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Where("telegram_id IS NOT NULL").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
