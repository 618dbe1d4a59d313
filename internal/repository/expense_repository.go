package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"expense-bot/internal/model"
)

// ExpenseFilter narrows List queries. Zero values mean "no constraint";
// Limit <= 0 returns every matching row.
type ExpenseFilter struct {
	DateFrom   *time.Time
	DateTo     *time.Time
	CategoryID *uint
	MinAmount  *float64
	MaxAmount  *float64
	Source     model.Source
	SortBy     string
	Order      string
	Offset     int
	Limit      int
}

var sortColumns = map[string]string{
	"created_at":    "created_at",
	"purchase_date": "purchase_date",
	"amount":        "amount",
	"vendor":        "vendor",
}

// SortColumn maps a public sort key to a column, defaulting to created_at.
func SortColumn(key string) string {
	if col, ok := sortColumns[key]; ok {
		return col
	}
	return "created_at"
}

// ExpenseRepository persists expenses.
type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) Create(ctx context.Context, expense *model.Expense) error {
	if err := r.db.WithContext(ctx).Create(expense).Error; err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	return nil
}

// CreateBatch inserts all expenses or none.
func (r *ExpenseRepository) CreateBatch(ctx context.Context, expenses []model.Expense) error {
	if len(expenses) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&expenses).Error
	})
	if err != nil {
		return fmt.Errorf("create expenses: %w", err)
	}
	return nil
}

func (r *ExpenseRepository) FindByID(ctx context.Context, userID, id uint) (*model.Expense, error) {
	var expense model.Expense
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&expense, id).Error; err != nil {
		return nil, err
	}
	return &expense, nil
}

// List returns one page of matching expenses and the total number of matches.
func (r *ExpenseRepository) List(ctx context.Context, userID uint, f ExpenseFilter) ([]model.Expense, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Expense{}).Where("user_id = ?", userID)
	query = applyFilter(query, f)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}

	direction := "DESC"
	if strings.EqualFold(f.Order, "asc") {
		direction = "ASC"
	}
	query = query.Order(fmt.Sprintf("%s %s, id %s", SortColumn(f.SortBy), direction, direction))
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	var expenses []model.Expense
	if err := query.Find(&expenses).Error; err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, total, nil
}

func applyFilter(query *gorm.DB, f ExpenseFilter) *gorm.DB {
	if f.DateFrom != nil {
		query = query.Where("purchase_date >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		query = query.Where("purchase_date <= ?", *f.DateTo)
	}
	if f.CategoryID != nil {
		query = query.Where("category_id = ?", *f.CategoryID)
	}
	if f.MinAmount != nil {
		query = query.Where("amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		query = query.Where("amount <= ?", *f.MaxAmount)
	}
	if f.Source != "" {
		query = query.Where("source = ?", f.Source)
	}
	return query
}

// ListByUser returns every expense of the user, oldest first.
func (r *ExpenseRepository) ListByUser(ctx context.Context, userID uint) ([]model.Expense, error) {
	var expenses []model.Expense
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&expenses).Error; err != nil {
		return nil, err
	}
	return expenses, nil
}

// Recent returns the newest n expenses.
func (r *ExpenseRepository) Recent(ctx context.Context, userID uint, n int) ([]model.Expense, error) {
	var expenses []model.Expense
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").Limit(n).Find(&expenses).Error; err != nil {
		return nil, err
	}
	return expenses, nil
}

func (r *ExpenseRepository) Save(ctx context.Context, expense *model.Expense) error {
	if err := r.db.WithContext(ctx).Save(expense).Error; err != nil {
		return fmt.Errorf("save expense: %w", err)
	}
	return nil
}

func (r *ExpenseRepository) Delete(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.Expense{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete expense: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
