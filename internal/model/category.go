package model

import "time"

// FallbackCategory is the catch-all category name.
const FallbackCategory = "Alte cheltuieli"

// Category is a user-owned expense category, unique by name per user.
type Category struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"uniqueIndex:idx_user_category_name;not null"`
	Name      string `gorm:"uniqueIndex:idx_user_category_name;size:100;not null"`
	Color     string `gorm:"size:7"`
	Icon      string `gorm:"size:16"`
	IsDefault bool   `gorm:"default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Expenses  []Expense `gorm:"foreignKey:CategoryID"`
}

// DefaultCategories are seeded for every new user.
var DefaultCategories = []Category{
	{Name: "Mâncare & Restaurante", Color: "#FF9800", Icon: "🍔", IsDefault: true},
	{Name: "Transport", Color: "#2196F3", Icon: "🚗", IsDefault: true},
	{Name: "Cumpărături", Color: "#E91E63", Icon: "🛍️", IsDefault: true},
	{Name: "Distracție & Timp liber", Color: "#9C27B0", Icon: "🎬", IsDefault: true},
	{Name: "Sănătate", Color: "#4CAF50", Icon: "💊", IsDefault: true},
	{Name: "Utilități & Locuință", Color: "#607D8B", Icon: "💡", IsDefault: true},
	{Name: FallbackCategory, Color: "#94A3B8", Icon: "🧾", IsDefault: true},
}

// CategoryNames returns names in the given order.
func CategoryNames(categories []Category) []string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return names
}
