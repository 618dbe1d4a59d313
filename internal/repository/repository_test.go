package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"expense-bot/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := NewDB("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func amount(v float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(v))
}

func TestUpsertFromTelegram(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	user, created, err := repo.UpsertFromTelegram(ctx, 42, "Ion", "ion")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := repo.UpsertFromTelegram(ctx, 42, "Ion Popescu", "ion")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)

	found, err := repo.FindByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Ion Popescu", found.DisplayName)

	first, err := repo.First(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.ID, first.ID)

	require.NoError(t, repo.Create(ctx, &model.User{DisplayName: "api"}))
	tg, err := repo.ListTelegram(ctx)
	require.NoError(t, err)
	assert.Len(t, tg, 1)
}

func TestCategoryUniquePerUser(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	repo := NewCategoryRepository(db)

	u1 := &model.User{DisplayName: "a"}
	u2 := &model.User{DisplayName: "b"}
	require.NoError(t, users.Create(ctx, u1))
	require.NoError(t, users.Create(ctx, u2))

	require.NoError(t, repo.Create(ctx, &model.Category{UserID: u1.ID, Name: "Transport"}))
	require.NoError(t, repo.Create(ctx, &model.Category{UserID: u2.ID, Name: "Transport"}))

	err := repo.Create(ctx, &model.Category{UserID: u1.ID, Name: "Transport"})
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	cat, err := repo.FindByName(ctx, u1.ID, "Transport")
	require.NoError(t, err)
	_, err = repo.GetByID(ctx, u2.ID, cat.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestExpenseListFilters(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	cats := NewCategoryRepository(db)
	repo := NewExpenseRepository(db)

	user := &model.User{DisplayName: "a"}
	require.NoError(t, users.Create(ctx, user))
	food := &model.Category{UserID: user.ID, Name: "Food"}
	require.NoError(t, cats.Create(ctx, food))

	require.NoError(t, repo.CreateBatch(ctx, []model.Expense{
		{UserID: user.ID, Source: model.SourcePhoto, Amount: amount(10), PurchaseDate: day("2025-01-01"), CategoryID: &food.ID},
		{UserID: user.ID, Source: model.SourceManual, Amount: amount(50), PurchaseDate: day("2025-01-15")},
		{UserID: user.ID, Source: model.SourceVoice, Amount: amount(99.5), PurchaseDate: day("2025-02-01"), CategoryID: &food.ID},
	}))

	all, total, err := repo.List(ctx, user.ID, ExpenseFilter{SortBy: "amount", Order: "asc"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, all, 3)
	assert.True(t, all[0].Amount.Decimal.Equal(decimal.NewFromInt(10)))
	assert.True(t, all[2].Amount.Decimal.Equal(decimal.NewFromFloat(99.5)))

	byCat, total, err := repo.List(ctx, user.ID, ExpenseFilter{CategoryID: &food.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, byCat, 2)

	minAmount, maxAmount := 20.0, 60.0
	ranged, _, err := repo.List(ctx, user.ID, ExpenseFilter{MinAmount: &minAmount, MaxAmount: &maxAmount})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, model.SourceManual, ranged[0].Source)

	dated, _, err := repo.List(ctx, user.ID, ExpenseFilter{DateFrom: day("2025-01-10"), DateTo: day("2025-01-31")})
	require.NoError(t, err)
	assert.Len(t, dated, 1)

	voice, _, err := repo.List(ctx, user.ID, ExpenseFilter{Source: model.SourceVoice})
	require.NoError(t, err)
	assert.Len(t, voice, 1)

	page, total, err := repo.List(ctx, user.ID, ExpenseFilter{SortBy: "amount", Order: "desc", Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, page, 1)
	assert.True(t, page[0].Amount.Decimal.Equal(decimal.NewFromInt(50)))
}

func TestExpenseDeleteScopedToUser(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	repo := NewExpenseRepository(db)

	owner := &model.User{DisplayName: "owner"}
	other := &model.User{DisplayName: "other"}
	require.NoError(t, users.Create(ctx, owner))
	require.NoError(t, users.Create(ctx, other))

	e := &model.Expense{UserID: owner.ID, Source: model.SourceManual}
	require.NoError(t, repo.Create(ctx, e))

	assert.ErrorIs(t, repo.Delete(ctx, other.ID, e.ID), gorm.ErrRecordNotFound)
	require.NoError(t, repo.Delete(ctx, owner.ID, e.ID))
	_, err := repo.FindByID(ctx, owner.ID, e.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestMigrateAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	cats := NewCategoryRepository(db)
	repo := NewExpenseRepository(db)

	user := &model.User{DisplayName: "a"}
	require.NoError(t, users.Create(ctx, user))
	from := &model.Category{UserID: user.ID, Name: "Old"}
	to := &model.Category{UserID: user.ID, Name: "New"}
	require.NoError(t, cats.Create(ctx, from))
	require.NoError(t, cats.Create(ctx, to))

	e1 := &model.Expense{UserID: user.ID, Source: model.SourceManual, CategoryID: &from.ID, Payload: "p1"}
	e2 := &model.Expense{UserID: user.ID, Source: model.SourceManual, Payload: "p2"}
	require.NoError(t, repo.Create(ctx, e1))
	require.NoError(t, repo.Create(ctx, e2))

	require.NoError(t, cats.MigrateAndDelete(ctx, user.ID, from.ID, to.ID, map[uint]string{e2.ID: "p2-new"}))

	got1, err := repo.FindByID(ctx, user.ID, e1.ID)
	require.NoError(t, err)
	require.NotNil(t, got1.CategoryID)
	assert.Equal(t, to.ID, *got1.CategoryID)

	got2, err := repo.FindByID(ctx, user.ID, e2.ID)
	require.NoError(t, err)
	assert.Equal(t, "p2-new", got2.Payload)
	require.NotNil(t, got2.CategoryID)
	assert.Equal(t, to.ID, *got2.CategoryID)

	_, err = cats.GetByID(ctx, user.ID, from.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCategoryDeleteDetachesExpenses(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	cats := NewCategoryRepository(db)
	repo := NewExpenseRepository(db)

	user := &model.User{DisplayName: "a"}
	require.NoError(t, users.Create(ctx, user))
	cat := &model.Category{UserID: user.ID, Name: "Gone"}
	require.NoError(t, cats.Create(ctx, cat))
	e := &model.Expense{UserID: user.ID, Source: model.SourceManual, CategoryID: &cat.ID}
	require.NoError(t, repo.Create(ctx, e))

	require.NoError(t, cats.Delete(ctx, user.ID, cat.ID))
	got, err := repo.FindByID(ctx, user.ID, e.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CategoryID)

	assert.ErrorIs(t, cats.Delete(ctx, user.ID, cat.ID), gorm.ErrRecordNotFound)
}
