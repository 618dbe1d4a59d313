package service

import (
	"context"
	"errors"
	"fmt"

	"expense-bot/internal/model"
	"expense-bot/internal/repository"
)

// UserService resolves the acting user for the bot and the API.
type UserService struct {
	users         *repository.UserRepository
	categories    *repository.CategoryRepository
	defaultUserID uint
}

func NewUserService(users *repository.UserRepository, categories *repository.CategoryRepository, defaultUserID uint) *UserService {
	return &UserService{users: users, categories: categories, defaultUserID: defaultUserID}
}

// EnsureTelegramUser upserts the user and seeds default categories the first
// time the user is seen.
func (s *UserService) EnsureTelegramUser(ctx context.Context, telegramID int64, displayName, username string) (*model.User, error) {
	user, created, err := s.users.UpsertFromTelegram(ctx, telegramID, displayName, username)
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.SeedDefaults(ctx, user.ID); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (s *UserService) SeedDefaults(ctx context.Context, userID uint) error {
	cats := make([]model.Category, 0, len(model.DefaultCategories))
	for _, c := range model.DefaultCategories {
		c.UserID = userID
		cats = append(cats, c)
	}
	if err := s.categories.CreateMany(ctx, cats); err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	return nil
}

// ActiveUser is the configured default user or, failing that, the oldest one.
// The API has no authentication and acts on behalf of this user.
func (s *UserService) ActiveUser(ctx context.Context) (*model.User, error) {
	if s.defaultUserID != 0 {
		user, err := s.users.FindByID(ctx, s.defaultUserID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(translate(err), ErrNotFound) {
			return nil, err
		}
	}
	user, err := s.users.First(ctx)
	if err != nil {
		if errors.Is(translate(err), ErrNotFound) {
			return nil, ErrNoActiveUser
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) TelegramUsers(ctx context.Context) ([]model.User, error) {
	return s.users.ListTelegram(ctx)
}
